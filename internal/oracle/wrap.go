package oracle

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Paced enforces a minimum interval between consecutive calls.
type Paced struct {
	inner   Oracle
	limiter *rate.Limiter
}

// WithMinInterval wraps o so that calls start at least interval apart.
// A non-positive interval returns o unchanged.
func WithMinInterval(o Oracle, interval time.Duration) Oracle {
	if interval <= 0 {
		return o
	}
	return &Paced{inner: o, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Name implements Oracle.
func (p *Paced) Name() string { return p.inner.Name() }

// Available implements Oracle.
func (p *Paced) Available() error { return p.inner.Available() }

// Unwrap implements Wrapper.
func (p *Paced) Unwrap() Oracle { return p.inner }

// Generate implements Oracle. Waiting honors ctx cancellation.
func (p *Paced) Generate(ctx context.Context, model, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return p.inner.Generate(ctx, model, prompt)
}

// Counting records how many calls reached the wrapped oracle.
type Counting struct {
	inner Oracle
	calls atomic.Int64
}

// NewCounting wraps o with a call counter.
func NewCounting(o Oracle) *Counting {
	return &Counting{inner: o}
}

// Name implements Oracle.
func (c *Counting) Name() string { return c.inner.Name() }

// Available implements Oracle.
func (c *Counting) Available() error { return c.inner.Available() }

// Unwrap implements Wrapper.
func (c *Counting) Unwrap() Oracle { return c.inner }

// Generate implements Oracle.
func (c *Counting) Generate(ctx context.Context, model, prompt string) (string, error) {
	c.calls.Add(1)
	return c.inner.Generate(ctx, model, prompt)
}

// Calls returns the number of Generate calls so far.
func (c *Counting) Calls() int {
	return int(c.calls.Load())
}
