package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/record"
	"github.com/brightline/vantage/migrations"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed snapshot store. A single-statement UPSERT
// keyed by identity guarantees exactly one row per key, and WAL journaling
// keeps a crash mid-write from corrupting committed state.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the snapshot database, applies pragmas,
// and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// runMigrations applies all pending migrations using goose with the
// embedded SQL files.
func runMigrations(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the snapshot for the key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key identity.Key) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity_key, display_name, fields, external_ref, synced_at
		FROM snapshots WHERE identity_key = ?
	`, string(key))

	snap, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %q: %w", key, err)
	}
	return snap, nil
}

// Put atomically inserts or replaces the snapshot for its key. The UPSERT
// runs as a single statement, so a crash never leaves two rows for one
// identity or a half-written row.
func (s *SQLiteStore) Put(ctx context.Context, snap *Snapshot) error {
	fieldsJSON, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (identity_key, display_name, fields, external_ref, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity_key) DO UPDATE SET
			display_name = excluded.display_name,
			fields = excluded.fields,
			external_ref = excluded.external_ref,
			synced_at = excluded.synced_at
	`, string(snap.Key), snap.DisplayName, string(fieldsJSON), snap.ExternalRef,
		snap.SyncedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put snapshot %q: %w", snap.Key, err)
	}
	return nil
}

// All returns every snapshot, ordered by identity key.
func (s *SQLiteStore) All(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity_key, display_name, fields, external_ref, synced_at
		FROM snapshots ORDER BY identity_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// TouchSyncedAt refreshes synced_at without altering fields or external_ref.
// Used for UNCHANGED outcomes, where no external write occurs.
func (s *SQLiteStore) TouchSyncedAt(ctx context.Context, key identity.Key, t time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE snapshots SET synced_at = ? WHERE identity_key = ?
	`, t.UTC().Format(time.RFC3339Nano), string(key))
	if err != nil {
		return fmt.Errorf("touch snapshot %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch snapshot %q: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats returns aggregate statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var count int64
	var last sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(synced_at) FROM snapshots").Scan(&count, &last)
	if err != nil {
		return nil, fmt.Errorf("snapshot stats: %w", err)
	}

	stats := &Stats{SnapshotCount: count}
	if last.Valid {
		t, err := time.Parse(time.RFC3339Nano, last.String)
		if err != nil {
			return nil, fmt.Errorf("parse last synced_at: %w", err)
		}
		stats.LastSyncedAt = &t
	}
	return stats, nil
}

// scanSnapshot builds a Snapshot from a row scan function.
func scanSnapshot(scan func(dest ...any) error) (*Snapshot, error) {
	var key, displayName, fieldsJSON, externalRef, syncedAt string
	if err := scan(&key, &displayName, &fieldsJSON, &externalRef, &syncedAt); err != nil {
		return nil, err
	}

	var fields record.Fields
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, syncedAt)
	if err != nil {
		return nil, fmt.Errorf("parse synced_at: %w", err)
	}

	return &Snapshot{
		Key:         identity.Key(key),
		DisplayName: displayName,
		Fields:      fields,
		ExternalRef: externalRef,
		SyncedAt:    t,
	}, nil
}
