package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/record"
)

// Compile-time interface check
var _ DocStore = (*HTTPStore)(nil)

// HTTPStore talks to a document database over its JSON REST API.
type HTTPStore struct {
	baseURL       string
	token         string
	databaseID    string
	summaryPageID string
	client        *http.Client
}

// NewHTTPStore creates a client for the document database at baseURL.
// databaseID selects the record collection; summaryPageID the document that
// receives run summaries.
func NewHTTPStore(baseURL, token, databaseID, summaryPageID string) *HTTPStore {
	return &HTTPStore{
		baseURL:       baseURL,
		token:         token,
		databaseID:    databaseID,
		summaryPageID: summaryPageID,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Find looks up a row by identity key.
func (s *HTTPStore) Find(ctx context.Context, key identity.Key) (ExternalRef, error) {
	path := fmt.Sprintf("/v1/databases/%s/records?identity_key=%s",
		s.databaseID, url.QueryEscape(string(key)))

	resp, err := s.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode, "find record"); err != nil {
		return "", err
	}

	var found createResponse
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return "", fmt.Errorf("decode find response: %w", err)
	}
	if found.ID == "" {
		return "", fmt.Errorf("find record: %w", ErrNotFound)
	}
	return ExternalRef(found.ID), nil
}

// createRequest is the body for row creation.
type createRequest struct {
	DisplayName string        `json:"display_name"`
	Fields      record.Fields `json:"fields"`
	ExtractedAt time.Time     `json:"extracted_at"`
}

// createResponse carries the reference assigned by the store.
type createResponse struct {
	ID string `json:"id"`
}

// Create inserts a new row and returns the store-assigned reference.
func (s *HTTPStore) Create(ctx context.Context, rec *record.Record) (ExternalRef, error) {
	body := createRequest{
		DisplayName: rec.DisplayName,
		Fields:      rec.Fields,
		ExtractedAt: rec.ExtractedAt,
	}

	resp, err := s.send(ctx, http.MethodPost,
		fmt.Sprintf("/v1/databases/%s/records", s.databaseID), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode, "create record"); err != nil {
		return "", err
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create response missing record id")
	}
	return ExternalRef(created.ID), nil
}

// Update patches only the changed fields of an existing row.
func (s *HTTPStore) Update(ctx context.Context, ref ExternalRef, changed record.Fields) error {
	body := struct {
		Fields record.Fields `json:"fields"`
	}{Fields: changed}

	resp, err := s.send(ctx, http.MethodPatch,
		fmt.Sprintf("/v1/records/%s", ref), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp.StatusCode, "update record")
}

// AppendSummary appends a titled block to the summary document.
func (s *HTTPStore) AppendSummary(ctx context.Context, title, body string) error {
	payload := struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}{Title: title, Content: body}

	resp, err := s.send(ctx, http.MethodPost,
		fmt.Sprintf("/v1/pages/%s/blocks", s.summaryPageID), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp.StatusCode, "append summary")
}

// send issues an authenticated JSON request. Transport failures are
// transient by definition.
func (s *HTTPStore) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return resp, nil
}

// checkStatus maps HTTP status codes to the error kinds callers branch on.
func checkStatus(status int, op string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s: %w: status %d", op, ErrTransient, status)
	default:
		return fmt.Errorf("%s: status %d", op, status)
	}
}
