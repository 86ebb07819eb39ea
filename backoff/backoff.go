// Package backoff provides the exponential retry delay used by the
// cache pool's lifecycle worker when a load fails, adapted from the
// teacher's proxy.BackoffStrategy.
package backoff

import (
	"context"
	"time"
)

// Strategy doubles its delay on every call to Next, up to max, and can
// be reset back to initial after a successful attempt.
type Strategy struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// New builds a Strategy starting at initial and capped at max. A zero
// max disables the exponential growth: Next always returns initial.
func New(initial, max time.Duration) *Strategy {
	return &Strategy{initial: initial, max: max, current: initial}
}

// Next returns the delay for the upcoming retry and advances state.
func (b *Strategy) Next() time.Duration {
	if b.max == 0 {
		return b.initial
	}

	current := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return current
}

// Sleep waits for Next's duration or until ctx is done, whichever
// comes first.
func (b *Strategy) Sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(b.Next()):
	}
}

// Reset restores the delay to its initial value.
func (b *Strategy) Reset() {
	if b.max > 0 {
		b.current = b.initial
	}
}
