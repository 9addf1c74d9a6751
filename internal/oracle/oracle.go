// Package oracle adapts external text generation services to a single
// request/response contract used by every pipeline stage.
package oracle

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when no generation strategy can be used.
// Callers treat it as a signal to run in degraded mode.
var ErrUnavailable = errors.New("oracle unavailable")

// Strategy names the supported invocation styles.
const (
	StrategyAuto   = "auto"
	StrategyAPI    = "api"
	StrategyCLI    = "cli"
	StrategyOpenAI = "openai"
	StrategyOllama = "ollama"
)

// Oracle generates text for a single prompt.
type Oracle interface {
	// Name returns the strategy name (api, cli, openai, ollama).
	Name() string
	// Available reports why the strategy cannot be used, or nil if it can.
	// It must not perform network calls.
	Available() error
	// Generate sends one prompt and returns the raw response text.
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, model, prompt string) (string, error)

// Name implements Oracle.
func (f Func) Name() string { return "func" }

// Available implements Oracle.
func (f Func) Available() error { return nil }

// Generate implements Oracle.
func (f Func) Generate(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

// Metered is implemented by oracles that report token usage.
type Metered interface {
	Tracker() *TokenTracker
}

// Wrapper is implemented by oracles that decorate another oracle.
type Wrapper interface {
	Unwrap() Oracle
}

// TrackerOf walks through wrappers and returns the first token tracker found.
func TrackerOf(o Oracle) *TokenTracker {
	for o != nil {
		if m, ok := o.(Metered); ok {
			return m.Tracker()
		}
		w, ok := o.(Wrapper)
		if !ok {
			return nil
		}
		o = w.Unwrap()
	}
	return nil
}

// backendModel picks the model a non-Anthropic backend should request.
// Claude model names (the global default) and empty names fall back to the
// backend's own default; anything else was set on purpose and is kept.
func backendModel(requested, fallback string) string {
	if fallback == "" {
		return requested
	}
	if requested == "" || isClaudeModel(requested) {
		return fallback
	}
	return requested
}

func isClaudeModel(model string) bool {
	return strings.HasPrefix(model, "claude") || strings.Contains(model, "anthropic.claude")
}
