package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brightline/vantage/internal/archive"
	"github.com/brightline/vantage/internal/snapshot"
	"github.com/brightline/vantage/internal/syncer"
)

// Runner triggers one synchronization run. Implemented by syncer.Syncer.
type Runner interface {
	Run(ctx context.Context, names []string) (*syncer.Report, error)
}

// Handler implements the API handlers.
type Handler struct {
	store    snapshot.Store
	runner   Runner
	uploader archive.Uploader
	apiKey   string
	version  string

	mu         sync.Mutex
	running    bool
	lastReport *syncer.Report
}

// NewHandler creates a new Handler.
func NewHandler(store snapshot.Store, runner Runner, uploader archive.Uploader, apiKey, version string) *Handler {
	return &Handler{
		store:    store,
		runner:   runner,
		uploader: uploader,
		apiKey:   apiKey,
		version:  version,
	}
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	SnapshotCount int64      `json:"snapshot_count"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
}

// Health returns the health status. Public, no auth.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		SnapshotCount: stats.SnapshotCount,
		LastSyncedAt:  stats.LastSyncedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SyncRequest is the POST /sync payload.
type SyncRequest struct {
	Names []string `json:"names"`
}

// SyncAccepted is the POST /sync response.
type SyncAccepted struct {
	Status string `json:"status"`
}

// TriggerSync handles POST /api/v1/sync. Runs are single-flight: a request
// arriving while one is in progress gets 409 rather than a second run racing
// the first over the same snapshots.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if len(req.Names) == 0 {
		WriteProblem(w, r, http.StatusBadRequest, "names must not be empty")
		return
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		WriteProblem(w, r, http.StatusConflict, "A sync run is already in progress")
		return
	}
	h.running = true
	h.mu.Unlock()

	// The run outlives the request; the run timeout lives in the runner.
	go h.runSync(req.Names)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SyncAccepted{Status: "accepted"})
}

func (h *Handler) runSync(names []string) {
	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	report, err := h.runner.Run(context.Background(), names)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		slog.Error("sync run failed", "component", "api", "error", err)
	}
	if report == nil {
		return
	}

	h.mu.Lock()
	h.lastReport = report
	h.mu.Unlock()

	if err := archive.StoreReport(context.Background(), h.uploader, report); err != nil {
		slog.Warn("report archive failed",
			"component", "api",
			"run_id", report.RunID,
			"error", err,
		)
	}
}

// LatestRun handles GET /api/v1/runs/latest.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	report := h.lastReport
	h.mu.Unlock()

	if report == nil {
		WriteProblem(w, r, http.StatusNotFound, "No run has completed yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// SnapshotsResponse is the GET /snapshots payload.
type SnapshotsResponse struct {
	Snapshots []snapshot.Snapshot `json:"snapshots"`
}

// Snapshots handles GET /api/v1/snapshots.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.store.All(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []snapshot.Snapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SnapshotsResponse{Snapshots: snaps})
}
