// Package retry provides the single backoff policy applied at both external
// collaborator boundaries. Factoring retries out of the call sites keeps the
// orchestrator free of ad-hoc loops and makes the budgets configurable in
// one place.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrBudgetExhausted wraps the last attempt error when the policy gives up.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Policy describes a jittered exponential backoff with two hard caps: a
// maximum attempt count and a maximum elapsed time. Whichever is hit first
// ends the retries.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Budget bounds total elapsed time across attempts and waits.
	// Zero means no elapsed-time cap.
	Budget time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		Budget:      2 * time.Minute,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. retryable decides whether an error is worth another attempt;
// a nil retryable retries everything. Context cancellation always stops
// immediately with the context error.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var deadline time.Time
	if p.Budget > 0 {
		deadline = time.Now().Add(p.Budget)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		wait := p.backoff(attempt)
		if !deadline.IsZero() && time.Now().Add(wait).After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return errors.Join(ErrBudgetExhausted, lastErr)
}

// backoff returns the jittered wait before the next attempt: the exponential
// step halved, plus a random amount up to the other half.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	max := p.MaxBackoff
	if max <= 0 {
		max = 30 * time.Second
	}

	step := base << uint(attempt)
	if step > max || step <= 0 {
		step = max
	}

	half := step / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
