// Package retry is the single bounded-retry-with-backoff policy applied at
// the snapshot-store and outcome-feed boundaries.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy retries a unit with exponential backoff. Zero-value fields fall
// back to the boundary defaults.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Default is the store-boundary policy used when config is silent.
func Default() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// Exhaustion wraps the last error; cancellation surfaces ctx.Err() so
// callers can tell a superseded run from a degraded unit.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.InitialDelay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
