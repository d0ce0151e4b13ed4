package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brightline/vantage/internal/record"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSnapshot(ref string) *Snapshot {
	return &Snapshot{
		Key:         "acme",
		DisplayName: "Acme Inc.",
		Fields: record.Fields{
			"pricing":  record.StringValue("$10/seat"),
			"features": record.ListValue([]string{"sso", "audit-log"}),
		},
		ExternalRef: ref,
		SyncedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestGet_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestPut_ThenGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := testSnapshot("ref-1")
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.DisplayName != want.DisplayName || got.ExternalRef != want.ExternalRef {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !got.SyncedAt.Equal(want.SyncedAt) {
		t.Errorf("SyncedAt = %v, want %v", got.SyncedAt, want.SyncedAt)
	}
	if !got.Fields["features"].Equal(want.Fields["features"], true) {
		t.Errorf("fields changed over persistence: %+v", got.Fields)
	}
}

func TestPut_ReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testSnapshot("ref-1")
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	second := testSnapshot("ref-1")
	second.DisplayName = "acme"
	second.Fields["pricing"] = record.StringValue("$12/seat")
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	// Exactly one snapshot per key.
	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 snapshot after replace, got %d", len(all))
	}
	if all[0].Fields["pricing"].Text != "$12/seat" {
		t.Errorf("replace did not apply: %+v", all[0].Fields["pricing"])
	}
}

func TestTouchSyncedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap := testSnapshot("ref-1")
	if err := store.Put(ctx, snap); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	later := snap.SyncedAt.Add(time.Hour)
	if err := store.TouchSyncedAt(ctx, "acme", later); err != nil {
		t.Fatalf("TouchSyncedAt failed: %v", err)
	}

	got, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.SyncedAt.Equal(later) {
		t.Errorf("SyncedAt = %v, want %v", got.SyncedAt, later)
	}
	// Fields and ref untouched.
	if got.ExternalRef != "ref-1" || got.Fields["pricing"].Text != "$10/seat" {
		t.Errorf("touch altered snapshot contents: %+v", got)
	}
}

func TestTouchSyncedAt_Missing(t *testing.T) {
	store := newTestStore(t)

	err := store.TouchSyncedAt(context.Background(), "ghost", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("TouchSyncedAt missing = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.SnapshotCount != 0 || stats.LastSyncedAt != nil {
		t.Errorf("empty stats = %+v", stats)
	}

	snap := testSnapshot("ref-1")
	if err := store.Put(ctx, snap); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.SnapshotCount != 1 {
		t.Errorf("SnapshotCount = %d, want 1", stats.SnapshotCount)
	}
	if stats.LastSyncedAt == nil || !stats.LastSyncedAt.Equal(snap.SyncedAt) {
		t.Errorf("LastSyncedAt = %v, want %v", stats.LastSyncedAt, snap.SyncedAt)
	}
}

func TestDurability_AcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Put(ctx, testSnapshot("ref-1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.ExternalRef != "ref-1" {
		t.Errorf("ExternalRef lost across reopen: %+v", got)
	}
}

func TestExportJSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testSnapshot("ref-1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "snapshots.json")
	n, err := ExportJSON(ctx, store, path)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	if n != 1 {
		t.Errorf("exported %d snapshots, want 1", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var snaps []Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Key != "acme" {
		t.Errorf("export contents = %+v", snaps)
	}

	// No temp file left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read export dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("export dir has %d entries, want 1", len(entries))
	}
}

func TestExportJSON_EmptyStore(t *testing.T) {
	store := newTestStore(t)

	path := filepath.Join(t.TempDir(), "snapshots.json")
	n, err := ExportJSON(context.Background(), store, path)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	if n != 0 {
		t.Errorf("exported %d, want 0", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("empty export = %q, want []", data)
	}
}
