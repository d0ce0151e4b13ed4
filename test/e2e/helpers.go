// Package e2e exercises the assembled service: real router, real SQLite
// snapshot store, fake external collaborators.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brightline/vantage/internal/api"
	"github.com/brightline/vantage/internal/archive"
	"github.com/brightline/vantage/internal/docstore"
	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/record"
	"github.com/brightline/vantage/internal/research"
	"github.com/brightline/vantage/internal/retry"
	"github.com/brightline/vantage/internal/schema"
	"github.com/brightline/vantage/internal/snapshot"
	"github.com/brightline/vantage/internal/syncer"
)

const (
	apiKey     = "e2e-api-key"
	schemaYAML = `
attributes:
  - name: pricing
    type: string
    required: true
  - name: features
    type: list
  - name: headcount
    type: number
`
)

// scriptedResearcher serves fixed extractions per display name.
type scriptedResearcher struct {
	mu          sync.Mutex
	extractions map[string]research.RawExtraction
}

func (r *scriptedResearcher) Research(_ context.Context, displayName string) (research.RawExtraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.extractions[displayName]
	if !ok {
		return nil, fmt.Errorf("no extraction scripted for %q: %w", displayName, research.ErrTransient)
	}
	out := make(research.RawExtraction, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out, nil
}

func (r *scriptedResearcher) set(displayName string, raw research.RawExtraction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractions[displayName] = raw
}

// memDocs is an in-memory external document store.
type memDocs struct {
	mu      sync.Mutex
	rows    map[docstore.ExternalRef]record.Fields
	byKey   map[identity.Key]docstore.ExternalRef
	next    int
	creates int
	updates int
}

func newMemDocs() *memDocs {
	return &memDocs{
		rows:  make(map[docstore.ExternalRef]record.Fields),
		byKey: make(map[identity.Key]docstore.ExternalRef),
	}
}

func (d *memDocs) Find(_ context.Context, key identity.Key) (docstore.ExternalRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.byKey[key]
	if !ok {
		return "", docstore.ErrNotFound
	}
	return ref, nil
}

func (d *memDocs) Create(_ context.Context, rec *record.Record) (docstore.ExternalRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	d.next++
	ref := docstore.ExternalRef(fmt.Sprintf("doc-%d", d.next))
	d.rows[ref] = rec.Fields.Clone()
	d.byKey[rec.Key] = ref
	return ref, nil
}

func (d *memDocs) Update(_ context.Context, ref docstore.ExternalRef, changed record.Fields) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates++
	fields, ok := d.rows[ref]
	if !ok {
		return docstore.ErrNotFound
	}
	for name, v := range changed {
		fields[name] = v
	}
	return nil
}

func (d *memDocs) AppendSummary(_ context.Context, title, body string) error {
	return nil
}

func (d *memDocs) createCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creates
}

// testServer assembles the full stack against fakes for the two external
// collaborators.
type testServer struct {
	srv        *httptest.Server
	store      *snapshot.SQLiteStore
	researcher *scriptedResearcher
	docs       *memDocs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s, err := schema.Parse([]byte(schemaYAML))
	if err != nil {
		t.Fatalf("parsing schema: %v", err)
	}

	store, err := snapshot.NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	researcher := &scriptedResearcher{extractions: make(map[string]research.RawExtraction)}
	docs := newMemDocs()

	runner := syncer.New(s, identity.NewResolver(nil), store, docs, researcher, syncer.Options{
		Workers:        2,
		ResearchPolicy: retry.Policy{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		StorePolicy:    retry.Policy{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})

	handler := api.NewHandler(store, runner, &archive.NoopUploader{}, apiKey, "e2e")
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: store, researcher: researcher, docs: docs}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return resp, data
}

// triggerSync posts a sync request, retrying while a previous run is still
// draining (409).
func (ts *testServer) triggerSync(t *testing.T, names ...string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, body := ts.request(t, http.MethodPost, "/api/v1/sync", api.SyncRequest{Names: names})
		if resp.StatusCode == http.StatusAccepted {
			return
		}
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("sync trigger status = %d: %s", resp.StatusCode, body)
		}
		if time.Now().After(deadline) {
			t.Fatal("sync never accepted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitForReportAfter polls runs/latest until a run newer than prevRunID
// lands. Pass the empty string for the first run.
func (ts *testServer) waitForReportAfter(t *testing.T, prevRunID string) *syncer.Report {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, body := ts.request(t, http.MethodGet, "/api/v1/runs/latest", nil)
		if resp.StatusCode == http.StatusOK {
			var report syncer.Report
			if err := json.Unmarshal(body, &report); err != nil {
				t.Fatalf("decoding report: %v", err)
			}
			if report.RunID != prevRunID {
				return &report
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("no new run report became available")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
