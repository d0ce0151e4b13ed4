package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ExportJSON writes the full snapshot set to path as a flat JSON array, one
// object per identity, for direct inspection or manual recovery. The file is
// written to a temp sibling and renamed so readers never observe a partial
// export.
func ExportJSON(ctx context.Context, store Store, path string) (int, error) {
	snaps, err := store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("export snapshots: %w", err)
	}
	if snaps == nil {
		snaps = []Snapshot{}
	}

	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("export snapshots: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("create export directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return 0, fmt.Errorf("create temp export: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("finalize export: %w", err)
	}

	return len(snaps), nil
}
