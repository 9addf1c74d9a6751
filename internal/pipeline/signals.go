package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/longform/internal/oracle"
)

// StopWatcher reports whether the stop signal file has appeared. Events
// from fsnotify set the flag immediately; ShouldStop also checks the file
// directly in case the watcher missed it or could not be started.
type StopWatcher struct {
	path string

	mu      sync.RWMutex
	stopped bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewStopWatcher watches the directory holding path. A failure to start
// the watcher is not an error; polling in ShouldStop still works.
func NewStopWatcher(path string) (*StopWatcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	sw := &StopWatcher{path: path, done: make(chan struct{})}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sw, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return sw, nil
	}
	sw.watcher = watcher

	go sw.watch()
	return sw, nil
}

func (sw *StopWatcher) watch() {
	base := filepath.Base(sw.path)
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == base && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				sw.mu.Lock()
				sw.stopped = true
				sw.mu.Unlock()
			}
		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// ShouldStop reports whether a stop was requested.
func (sw *StopWatcher) ShouldStop() bool {
	if _, err := os.Stat(sw.path); err == nil {
		sw.mu.Lock()
		sw.stopped = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stopped
}

// Clear removes the signal file and resets the flag.
func (sw *StopWatcher) Clear() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.stopped = false
	os.Remove(sw.path)
}

// Close stops the watcher goroutine.
func (sw *StopWatcher) Close() error {
	var err error
	sw.once.Do(func() {
		close(sw.done)
		if sw.watcher != nil {
			err = sw.watcher.Close()
		}
	})
	return err
}

// SendStop writes the stop signal file at path.
func SendStop(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// guarded refuses oracle calls once a stop was requested.
type guarded struct {
	inner oracle.Oracle
	stop  *StopWatcher
}

func (g *guarded) Name() string          { return g.inner.Name() }
func (g *guarded) Available() error      { return g.inner.Available() }
func (g *guarded) Unwrap() oracle.Oracle { return g.inner }

func (g *guarded) Generate(ctx context.Context, model, prompt string) (string, error) {
	if g.stop.ShouldStop() {
		return "", ErrStopped
	}
	return g.inner.Generate(ctx, model, prompt)
}
