package oracle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// CLI implements the cli strategy: the prompt is handed to the claude binary
// in print mode and the final result event of its stream-json output is returned.
type CLI struct {
	path string
	dir  string
}

// NewCLI creates a cli strategy oracle. path defaults to "claude". dir is
// the working directory of the subprocess (empty for the current one).
func NewCLI(path, dir string) *CLI {
	if path == "" {
		path = "claude"
	}
	return &CLI{path: path, dir: dir}
}

// Name implements Oracle.
func (c *CLI) Name() string { return StrategyCLI }

// Available implements Oracle.
func (c *CLI) Available() error {
	if _, err := exec.LookPath(c.path); err != nil {
		return fmt.Errorf("%s not found on PATH", c.path)
	}
	return nil
}

// Generate implements Oracle. The prompt is written to stdin to stay clear
// of argument length limits.
func (c *CLI) Generate(ctx context.Context, model, prompt string) (string, error) {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Dir = c.dir
	cmd.Stdin = strings.NewReader(prompt)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", c.path, err)
	}

	result, parseErr := readResult(stdout)
	// Drain so Wait does not block on a full pipe
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if parseErr != nil {
		return "", parseErr
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s exited: %w", c.path, waitErr)
		}
		return "", fmt.Errorf("%s exited: %w: %s", c.path, waitErr, msg)
	}
	return result, nil
}

// streamEvent is the subset of a stream-json line this adapter reads.
type streamEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// errNoResult is returned when the stream ends without a result event.
var errNoResult = errors.New("stream ended without a result event")

// readResult scans stream-json lines and returns the text of the last
// result event. Lines that are not JSON are ignored.
func readResult(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	// Result events carry the whole response on one line
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var (
		result string
		found  bool
	)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "result":
			if ev.IsError {
				detail := ev.Result
				if detail == "" {
					detail = ev.Subtype
				}
				return "", fmt.Errorf("claude reported an error: %s", detail)
			}
			result = ev.Result
			found = true
		case "error":
			return "", fmt.Errorf("claude stream error: %s", ev.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	if !found {
		return "", errNoResult
	}
	return result, nil
}
