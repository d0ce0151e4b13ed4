// Package docstore wraps the external document database that holds the
// published competitor records. Like the research backend it is a black box:
// create/update keyed by an opaque reference, with errors classified as
// transient, permanent, or not-found.
package docstore

import (
	"context"
	"errors"

	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/record"
)

// ExternalRef is the opaque identifier of one row in the external store.
type ExternalRef string

var (
	// ErrTransient marks failures worth retrying.
	ErrTransient = errors.New("transient document store failure")

	// ErrNotFound is returned by Update when the referenced row no longer
	// exists; the row was deleted out-of-band and must be recreated.
	ErrNotFound = errors.New("document not found")
)

// IsTransient reports whether the error is retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNotFound reports whether the referenced row is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DocStore is the external document database client.
type DocStore interface {
	// Find looks up the row for an identity key, returning ErrNotFound
	// when no row exists. Used before create so a crash between an
	// acknowledged create and the local snapshot commit never yields a
	// duplicate row on the next run.
	Find(ctx context.Context, key identity.Key) (ExternalRef, error)

	// Create inserts a new row for the record and returns its reference.
	Create(ctx context.Context, rec *record.Record) (ExternalRef, error)

	// Update rewrites only the given fields of an existing row.
	Update(ctx context.Context, ref ExternalRef, changed record.Fields) error

	// AppendSummary appends a titled text block to the configured summary
	// document.
	AppendSummary(ctx context.Context, title, body string) error
}
