package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brightline/vantage/internal/snapshot"
)

func TestWriteProblem_KnownStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/latest", nil)
	rec := httptest.NewRecorder()

	WriteProblem(rec, req, http.StatusNotFound, "No run has completed yet")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}

	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding problem: %v", err)
	}
	if p.Type != "https://vantage.dev/errors/not-found" {
		t.Errorf("type = %q", p.Type)
	}
	if p.Title != "Not Found" || p.Detail != "No run has completed yet" {
		t.Errorf("problem = %+v", p)
	}
	if p.Instance != "/api/v1/runs/latest" {
		t.Errorf("instance = %q", p.Instance)
	}
}

func TestWriteProblem_UnknownStatusFallsBack(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	WriteProblem(rec, req, http.StatusTeapot, "short and stout")

	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding problem: %v", err)
	}
	if p.Type != "https://vantage.dev/errors/unknown" {
		t.Errorf("type = %q", p.Type)
	}
	if p.Title != http.StatusText(http.StatusTeapot) {
		t.Errorf("title = %q", p.Title)
	}
}

func TestMapStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", snapshot.ErrNotFound, http.StatusNotFound},
		{"anything else", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			MapStoreError(rec, req, tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMapStoreError_NeverLeaksInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	MapStoreError(rec, req, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "10.0.0.5") || strings.Contains(body, "connection refused") {
		t.Errorf("response leaked internal detail: %s", body)
	}
}
