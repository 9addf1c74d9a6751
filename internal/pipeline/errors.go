package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStopped is returned when a stop signal was found before an oracle
// call. Everything written so far stays valid and the next run resumes.
var ErrStopped = errors.New("stop signal received")

// StageError wraps a hard failure with the stage, section and artifact
// it concerns.
type StageError struct {
	Stage Stage
	Slug  string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s stage failed", e.Stage)
	if e.Slug != "" {
		fmt.Fprintf(&sb, " at section %s", e.Slug)
	}
	if e.Path != "" {
		fmt.Fprintf(&sb, " (%s)", e.Path)
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *StageError) Unwrap() error { return e.Err }
