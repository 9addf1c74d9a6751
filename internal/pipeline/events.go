package pipeline

import (
	"sync/atomic"
	"time"
)

// EventType is the kind of progress event.
type EventType string

const (
	// EventState is emitted on every state transition.
	EventState EventType = "state"
	// EventSection is emitted after each section is processed.
	EventSection EventType = "section"
	// EventWarning carries a non-fatal problem (degraded mode, review failure).
	EventWarning EventType = "warning"
	// EventDone is the last event of a run, successful or not.
	EventDone EventType = "done"
)

// Event reports pipeline progress to the CLI or TUI.
type Event struct {
	Type  EventType
	State State
	Stage Stage

	// Section progress; Index is 0-based in generation order.
	Slug    string
	Title   string
	Index   int
	Total   int
	Outcome string

	Message string
	Err     error

	Calls     int
	TokensIn  int64
	TokensOut int64
	Cost      float64
	Elapsed   time.Duration
	Timestamp time.Time
}

// Emitter delivers events on a buffered channel. When the buffer is full
// the event is dropped after a short wait so a slow reader never stalls
// generation.
type Emitter struct {
	events  chan Event
	dropped atomic.Uint64
	closed  atomic.Bool
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{events: make(chan Event, bufferSize)}
}

// Emit sends ev, stamping it if needed.
func (e *Emitter) Emit(ev Event) {
	if e == nil || e.closed.Load() {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case e.events <- ev:
		return
	default:
	}

	select {
	case e.events <- ev:
	case <-time.After(100 * time.Millisecond):
		e.dropped.Add(1)
	}
}

// Events returns the receive side of the channel.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Dropped returns how many events were discarded.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Close closes the channel. Later Emit calls are ignored.
func (e *Emitter) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	close(e.events)
}
