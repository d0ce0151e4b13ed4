package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brightline/vantage/internal/archive"
	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/snapshot"
	"github.com/brightline/vantage/internal/syncer"
)

const testAPIKey = "test-api-key-12345"

// stubStore is a minimal snapshot.Store for handler tests.
type stubStore struct {
	snaps    []snapshot.Snapshot
	stats    snapshot.Stats
	statsErr error
	allErr   error
}

func (s *stubStore) Get(context.Context, identity.Key) (*snapshot.Snapshot, error) {
	return nil, snapshot.ErrNotFound
}
func (s *stubStore) Put(context.Context, *snapshot.Snapshot) error { return nil }
func (s *stubStore) All(context.Context) ([]snapshot.Snapshot, error) {
	return s.snaps, s.allErr
}
func (s *stubStore) TouchSyncedAt(context.Context, identity.Key, time.Time) error { return nil }
func (s *stubStore) Stats(context.Context) (*snapshot.Stats, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return &s.stats, nil
}
func (s *stubStore) Close() error { return nil }

var _ snapshot.Store = (*stubStore)(nil)

// stubRunner returns a canned report, optionally blocking until released.
type stubRunner struct {
	report  *syncer.Report
	started chan struct{}
	release chan struct{}
}

func (r *stubRunner) Run(ctx context.Context, names []string) (*syncer.Report, error) {
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		<-r.release
	}
	return r.report, nil
}

func newTestHandler(store snapshot.Store, runner Runner) *Handler {
	return NewHandler(store, runner, &archive.NoopUploader{}, testAPIKey, "test")
}

func doRequest(h *Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)
	return rec
}

func TestHealth_PublicAndReportsStats(t *testing.T) {
	now := time.Now().UTC()
	store := &stubStore{stats: snapshot.Stats{SnapshotCount: 3, LastSyncedAt: &now}}
	h := newTestHandler(store, &stubRunner{})

	rec := doRequest(h, http.MethodGet, "/api/v1/health", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without auth", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "healthy" || resp.SnapshotCount != 3 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProtectedRoutes_RequireAuth(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubRunner{})

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/sync"},
		{http.MethodGet, "/api/v1/runs/latest"},
		{http.MethodGet, "/api/v1/snapshots"},
	} {
		rec := doRequest(h, tc.method, tc.path, `{"names":["Acme"]}`, false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", tc.method, tc.path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("%s %s content type = %q", tc.method, tc.path, ct)
		}
	}
}

func TestAuth_RejectsWrongToken(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if strings.Contains(rec.Body.String(), testAPIKey) {
		t.Error("response leaked the expected API key")
	}
}

func TestTriggerSync_AcceptsAndRecordsReport(t *testing.T) {
	runner := &stubRunner{
		report:  &syncer.Report{RunID: "01RUN", Results: []syncer.Result{{Outcome: syncer.OutcomeCreated}}},
		started: make(chan struct{}),
	}
	h := newTestHandler(&stubStore{}, runner)

	rec := doRequest(h, http.MethodPost, "/api/v1/sync", `{"names":["Acme Inc."]}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	<-runner.started
	// The run finishes asynchronously; poll until the report lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		latest := doRequest(h, http.MethodGet, "/api/v1/runs/latest", "", true)
		if latest.Code == http.StatusOK {
			var report syncer.Report
			if err := json.Unmarshal(latest.Body.Bytes(), &report); err != nil {
				t.Fatalf("decoding report: %v", err)
			}
			if report.RunID != "01RUN" {
				t.Errorf("run id = %q", report.RunID)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("report never became available")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTriggerSync_SingleFlight(t *testing.T) {
	runner := &stubRunner{
		report:  &syncer.Report{RunID: "01RUN"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := newTestHandler(&stubStore{}, runner)

	first := doRequest(h, http.MethodPost, "/api/v1/sync", `{"names":["Acme"]}`, true)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, want 202", first.Code)
	}
	<-runner.started

	second := doRequest(h, http.MethodPost, "/api/v1/sync", `{"names":["Acme"]}`, true)
	if second.Code != http.StatusConflict {
		t.Errorf("second status = %d, want 409 while a run is in progress", second.Code)
	}
	close(runner.release)
}

func TestTriggerSync_RejectsBadRequests(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubRunner{})

	rec := doRequest(h, http.MethodPost, "/api/v1/sync", "{not json", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", rec.Code)
	}

	rec = doRequest(h, http.MethodPost, "/api/v1/sync", `{"names":[]}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty names status = %d, want 400", rec.Code)
	}
}

func TestLatestRun_NotFoundBeforeFirstRun(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubRunner{})

	rec := doRequest(h, http.MethodGet, "/api/v1/runs/latest", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding problem: %v", err)
	}
	if p.Status != http.StatusNotFound || p.Instance != "/api/v1/runs/latest" {
		t.Errorf("problem = %+v", p)
	}
}

func TestSnapshots_ListsAll(t *testing.T) {
	store := &stubStore{snaps: []snapshot.Snapshot{
		{Key: "acme", DisplayName: "Acme Inc."},
		{Key: "borealis", DisplayName: "Borealis"},
	}}
	h := newTestHandler(store, &stubRunner{})

	rec := doRequest(h, http.MethodGet, "/api/v1/snapshots", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp SnapshotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Snapshots) != 2 {
		t.Errorf("snapshots = %d, want 2", len(resp.Snapshots))
	}
}

func TestSnapshots_EmptyStoreReturnsEmptyArray(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubRunner{})

	rec := doRequest(h, http.MethodGet, "/api/v1/snapshots", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"snapshots":[]`) {
		t.Errorf("body = %s, want empty array not null", rec.Body.String())
	}
}
