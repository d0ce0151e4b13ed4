// Package ratelimit implements the shared call budget applied to each
// external collaborator. One limiter instance is shared by every worker
// talking to the same collaborator, so the aggregate rate stays within the
// declared limit regardless of pool size.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket: burst tokens available immediately, one token
// restored every refill interval. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	refill time.Duration
	last   time.Time
}

// NewLimiter creates a limiter allowing burst immediate calls and a
// sustained rate of one call per refill interval. A non-positive refill
// disables limiting.
func NewLimiter(burst int, refill time.Duration) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		tokens: float64(burst),
		burst:  float64(burst),
		refill: refill,
		last:   time.Now(),
	}
}

// Wait blocks until a token is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.take()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// take consumes a token if one is available; otherwise it returns how long
// to wait before trying again.
func (l *Limiter) take() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refill <= 0 {
		return 0, true
	}

	now := time.Now()
	elapsed := now.Sub(l.last)
	l.last = now

	l.tokens += float64(elapsed) / float64(l.refill)
	if l.tokens > l.burst {
		l.tokens = l.burst
	}

	if l.tokens >= 1 {
		l.tokens--
		return 0, true
	}

	deficit := 1 - l.tokens
	return time.Duration(deficit * float64(l.refill)), false
}
