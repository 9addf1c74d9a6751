package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/longform/internal/oracle"
)

func TestStopWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals", "stop")
	sw, err := NewStopWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sw.Close()

	if sw.ShouldStop() {
		t.Fatal("stop reported before any signal")
	}
	if err := SendStop(path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !sw.ShouldStop() {
		if time.Now().After(deadline) {
			t.Fatal("stop signal not observed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sw.Clear()
	if sw.ShouldStop() {
		t.Error("stop still reported after Clear")
	}
	if err := sw.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestGuardedOracle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals", "stop")
	sw, err := NewStopWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sw.Close()

	inner := oracle.NewCounting(oracle.Func(func(ctx context.Context, model, prompt string) (string, error) {
		return "ok", nil
	}))
	g := &guarded{inner: inner, stop: sw}

	if out, err := g.Generate(context.Background(), "m", "p"); err != nil || out != "ok" {
		t.Fatalf("Generate = %q, %v", out, err)
	}
	if err := SendStop(path); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Generate(context.Background(), "m", "p"); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
	if inner.Calls() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.Calls())
	}
	if oracle.TrackerOf(g) != nil {
		t.Error("func oracle has no tracker")
	}
}

func TestStageErrorMessage(t *testing.T) {
	cause := errors.New("empty response")
	tests := []struct {
		err  *StageError
		want string
	}{
		{&StageError{Stage: StageOutline, Err: cause}, "outline stage failed: empty response"},
		{&StageError{Stage: StageSections, Slug: "api", Path: "responses/sections/2_api.md", Err: cause},
			"sections stage failed at section api (responses/sections/2_api.md): empty response"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
		if !errors.Is(tt.err, cause) {
			t.Error("StageError should unwrap to its cause")
		}
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEmitter(1)
	e.Emit(Event{Type: EventState})
	e.Emit(Event{Type: EventState})
	if e.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", e.Dropped())
	}
	e.Close()
	e.Close()
	e.Emit(Event{Type: EventDone})

	n := 0
	for ev := range e.Events() {
		if ev.Timestamp.IsZero() {
			t.Error("event not stamped")
		}
		n++
	}
	if n != 1 {
		t.Errorf("received %d events, want 1", n)
	}

	var nilEmitter *Emitter
	nilEmitter.Emit(Event{})
	nilEmitter.Close()
}

func TestRunConfigRoot(t *testing.T) {
	rc := RunConfig{ProjectRoot: "/proj", OutputBase: ".longform"}
	if got, want := rc.Root("spec"), filepath.Join("/proj", ".longform", "spec"); got != want {
		t.Errorf("Root = %s, want %s", got, want)
	}
	rc.OutputDir = "/elsewhere/out"
	if got := rc.Root("spec"); got != "/elsewhere/out" {
		t.Errorf("Root = %s, want /elsewhere/out", got)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateReviewed, StateReviewSkipped} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StateAssembled.Terminal() {
		t.Error("ASSEMBLED is not terminal")
	}
}
