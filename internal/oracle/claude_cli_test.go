package oracle

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestReadResult(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		want    string
		wantErr string
	}{
		{
			name: "result after assistant events",
			stream: `{"type":"system","subtype":"init"}
{"type":"assistant","message":{"content":[{"type":"text","text":"thinking"}]}}
{"type":"result","subtype":"success","is_error":false,"result":"# Heading\n\nBody"}
`,
			want: "# Heading\n\nBody",
		},
		{
			name:   "non json noise ignored",
			stream: "warming up\n{\"type\":\"result\",\"result\":\"ok\"}\n",
			want:   "ok",
		},
		{
			name:    "error result",
			stream:  `{"type":"result","subtype":"error_max_turns","is_error":true}` + "\n",
			wantErr: "error_max_turns",
		},
		{
			name:    "stream error event",
			stream:  `{"type":"error","error":"overloaded"}` + "\n",
			wantErr: "overloaded",
		},
		{
			name:    "no result",
			stream:  `{"type":"system"}` + "\n",
			wantErr: "without a result",
		},
		{
			name:   "empty result is not an error",
			stream: `{"type":"result","result":""}` + "\n",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readResult(strings.NewReader(tt.stream))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCLI_Generate(t *testing.T) {
	// Echo the prompt from stdin back inside the result event
	script := writeScript(t, `prompt=$(cat)
printf '{"type":"system"}\n'
printf '{"type":"result","is_error":false,"result":"got: %s"}\n' "$prompt"
`)

	c := NewCLI(script, "")
	if err := c.Available(); err != nil {
		t.Fatalf("Available() = %v", err)
	}

	out, err := c.Generate(context.Background(), "", "hello")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "got: hello" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCLI_GenerateExitError(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\necho 'boom' >&2\nexit 3\n")

	_, err := NewCLI(script, "").Generate(context.Background(), "m", "p")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCLI_Unavailable(t *testing.T) {
	c := NewCLI(filepath.Join(t.TempDir(), "missing-binary"), "")
	if err := c.Available(); err == nil {
		t.Error("expected Available() to fail for a missing binary")
	}
	if c.Name() != StrategyCLI {
		t.Errorf("Name() = %s", c.Name())
	}
}
