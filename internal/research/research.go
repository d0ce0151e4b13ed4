// Package research wraps the AI backend that produces raw competitor
// extractions. The model call is a black box to the rest of the system:
// callers receive an untyped field map and an error classified as transient
// or permanent, nothing else.
package research

import (
	"context"
	"errors"
	"time"
)

// RawExtraction is the untyped field map a research call produces,
// keyed by schema attribute name. Validation happens downstream.
type RawExtraction map[string]any

// ErrTransient marks research failures worth retrying: rate limits,
// timeouts, upstream 5xx, transport errors.
var ErrTransient = errors.New("transient research failure")

// IsTransient reports whether the error is retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Researcher produces a raw extraction for one competitor.
type Researcher interface {
	Research(ctx context.Context, displayName string) (RawExtraction, error)
}

// Summarizer condenses a run's field-level changes into prose.
type Summarizer interface {
	Summarize(ctx context.Context, changes []string) (string, error)
}

// Discoverer proposes competitors that are not yet tracked.
type Discoverer interface {
	Discover(ctx context.Context, existing []string, lookback time.Duration) ([]string, error)
}
