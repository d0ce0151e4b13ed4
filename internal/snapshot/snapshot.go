// Package snapshot persists the last-synced state per competitor identity.
// The store is the system's memory between runs: diffs are computed against
// it, and a snapshot is replaced only after the external store has
// acknowledged the corresponding write.
package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/record"
)

// ErrNotFound is returned by Get when no snapshot exists for the key.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the last known synced state for one identity.
type Snapshot struct {
	Key         identity.Key  `json:"identity_key"`
	DisplayName string        `json:"display_name"`
	Fields      record.Fields `json:"fields"`
	ExternalRef string        `json:"external_ref,omitempty"`
	SyncedAt    time.Time     `json:"synced_at"`
}

// Store is the durable snapshot collection. Exactly one snapshot exists per
// identity key at any time. Put is the sole mutation path for fields and
// external_ref; TouchSyncedAt refreshes the sync timestamp without touching
// either. Implementations must be safe for concurrent calls on different
// keys; callers guarantee single-writer-per-key.
type Store interface {
	Get(ctx context.Context, key identity.Key) (*Snapshot, error)
	Put(ctx context.Context, snap *Snapshot) error
	All(ctx context.Context) ([]Snapshot, error)
	TouchSyncedAt(ctx context.Context, key identity.Key, t time.Time) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats holds aggregate store statistics.
type Stats struct {
	SnapshotCount int64      `json:"snapshot_count"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
}
