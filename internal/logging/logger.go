// Package logging provides the run logger used by the generation pipeline.
// Every line is appended to a log file inside the output directory and,
// unless a TUI owns the terminal, mirrored to the console.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level tags a log line.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes timestamped lines to a file and an optional console writer.
// A nil *Logger is a valid no-op logger.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	console io.Writer
}

// New creates a logger appending to logPath. If logPath is empty only the
// console receives output. Parent directories are created as needed.
func New(logPath string, console io.Writer) (*Logger, error) {
	l := &Logger{console: console}
	if logPath == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.file = f

	l.write(LevelInfo, fmt.Sprintf("=== longform log started at %s ===", time.Now().Format(time.RFC3339)), false)
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{}
}

// Log writes an informational line.
func (l *Logger) Log(format string, args ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, args...), true)
}

// Warn writes a warning line.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, fmt.Sprintf(format, args...), true)
}

// Error writes an error line.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, fmt.Sprintf(format, args...), true)
}

// SetConsole replaces the console writer. Passing nil silences the console,
// which is what the TUI does while it owns the terminal.
func (l *Logger) SetConsole(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = w
}

func (l *Logger) write(level Level, msg string, toConsole bool) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Fprintf(l.file, "[%s] %-5s %s\n", timestamp, level, msg)
	}

	if toConsole && l.console != nil {
		fmt.Fprintf(l.console, "%s %s\n", prefix(level), msg)
	}
}

func prefix(level Level) string {
	switch level {
	case LevelWarn:
		return color.YellowString("⚠")
	case LevelError:
		return color.RedString("✗")
	default:
		return color.CyanString("•")
	}
}

// Close closes the log file.
// Safe to call on nil logger or logger without file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.file.Close()
	l.file = nil
	return err
}
