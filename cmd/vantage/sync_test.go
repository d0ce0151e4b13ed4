package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brightline/vantage/internal/syncer"
)

func TestReadNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "competitors.txt")
	content := "Acme Inc.\n\n# houses the big fish\nBorealis\n  Cloudpeak  \n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing names file: %v", err)
	}

	names, err := readNamesFile(path)
	if err != nil {
		t.Fatalf("readNamesFile() error = %v", err)
	}

	want := []string{"Acme Inc.", "Borealis", "Cloudpeak"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestReadNamesFile_Missing(t *testing.T) {
	if _, err := readNamesFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPrintReport(t *testing.T) {
	report := &syncer.Report{
		RunID: "01RUN",
		Results: []syncer.Result{
			{DisplayName: "Acme Inc.", Outcome: syncer.OutcomeUpdated, Changed: []string{"pricing"}},
			{DisplayName: "Borealis", Outcome: syncer.OutcomeFailed, Reason: syncer.ReasonResearchUnavailable},
			{DisplayName: "OldCo", Outcome: syncer.OutcomeStale},
		},
		Discovered: []string{"Nimbus Labs"},
	}

	var sb strings.Builder
	printReport(&sb, report)
	out := sb.String()

	for _, want := range []string{"Acme Inc.", "pricing", "research_unavailable", "stale", "Nimbus Labs", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
