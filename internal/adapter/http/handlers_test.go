package adapthttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	adapthttp "mindfulweb/internal/adapter/http"
	"mindfulweb/internal/adapter/memory"
	"mindfulweb/internal/app"
	"mindfulweb/internal/domain"
)

const testUser = "11111111-1111-4111-8111-111111111111"

// ---------------------------------------------------------------------------
// Mocks (function-fields pattern)
// ---------------------------------------------------------------------------

type mockPinger struct {
	pingFn func(ctx context.Context) error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

// failingProvider fails every unit of work with err.
type failingProvider struct{ err error }

func (p failingProvider) WithUnitOfWork(context.Context, func(context.Context, domain.UnitOfWork) error) error {
	return p.err
}

// ---------------------------------------------------------------------------
// Test-server helper
// ---------------------------------------------------------------------------

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, sessions domain.SessionProvider, pinger adapthttp.Pinger) *httptest.Server {
	t.Helper()
	logger := quietLogger()
	srv := adapthttp.New(
		app.NewIngestionService(sessions, logger),
		app.NewHistoryService(sessions),
		pinger,
		logger,
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return m
}

func postEvents(t *testing.T, ts *httptest.Server, userID string, payload any) *http.Response {
	t.Helper()
	var body []byte
	switch p := payload.(type) {
	case string:
		body = []byte(p)
	default:
		var err error
		if body, err = json.Marshal(p); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/events", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(adapthttp.UserIDHeader, userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func eventsPayload(events ...map[string]any) map[string]any {
	data := make([]any, len(events))
	for i, e := range events {
		data[i] = e
	}
	return map[string]any{"data": data}
}

func ev(kind, domainName, ts string) map[string]any {
	return map[string]any{"event": kind, "domain": domainName, "timestamp": ts}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthcheck(t *testing.T) {
	ts := newTestServer(t, memory.New(), &mockPinger{})

	resp, err := http.Get(ts.URL + "/api/v1/healthcheck")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", got)
	}
	body := decodeBody(t, resp)
	if body["status_code"] != float64(200) || body["description"] != "Service is available" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHealthcheck_DatabaseDown(t *testing.T) {
	ts := newTestServer(t, memory.New(), &mockPinger{
		pingFn: func(context.Context) error { return errors.New("connection refused") },
	})

	resp, err := http.Get(ts.URL + "/api/v1/healthcheck")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["code"] != "SERVICE_UNAVAILABLE" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSendEvents_Success(t *testing.T) {
	db := memory.New()
	ts := newTestServer(t, db, nil)

	resp := postEvents(t, ts, testUser, eventsPayload(
		ev("active", "https://www.Reddit.com/r/golang", "2025-04-05T09:00:00Z"),
		ev("inactive", "reddit.com:443", "2025-04-05T09:05:22+02:00"),
	))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["user_id"] != testUser || body["processed"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}

	events := db.Events(uuid.MustParse(testUser))
	if len(events) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(events))
	}
	for _, e := range events {
		if e.Domain != "reddit.com" {
			t.Errorf("domain not normalized: %q", e.Domain)
		}
		if e.Timestamp.Location() != time.UTC {
			t.Errorf("timestamp not UTC: %v", e.Timestamp)
		}
	}
}

func TestSendEvents_AnonymousUser(t *testing.T) {
	db := memory.New()
	ts := newTestServer(t, db, nil)

	resp := postEvents(t, ts, "", eventsPayload(ev("focus", "example.com", "2025-01-01T00:00:00Z")))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	id, err := uuid.Parse(resp.Header.Get(adapthttp.UserIDHeader))
	if err != nil || id.Version() != 4 {
		t.Fatalf("expected a generated UUID4, got %q", resp.Header.Get(adapthttp.UserIDHeader))
	}
	if !db.HasUser(id) {
		t.Fatal("anonymous user was not provisioned")
	}
}

func TestSendEvents_Validation(t *testing.T) {
	future := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	tooMany := make([]map[string]any, adapthttp.MaxBatch+1)
	for i := range tooMany {
		tooMany[i] = ev("focus", "example.com", "2025-01-01T00:00:00Z")
	}

	tests := []struct {
		name       string
		userID     string
		payload    any
		wantStatus int
		wantCode   string
	}{
		{"user id not a uuid", "abc", eventsPayload(ev("focus", "example.com", "2025-01-01T00:00:00Z")), http.StatusBadRequest, "INVALID_USER_ID"},
		{"user id v1", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", eventsPayload(ev("focus", "example.com", "2025-01-01T00:00:00Z")), http.StatusBadRequest, "INVALID_USER_ID"},
		{"malformed json", testUser, `{"data": [`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", testUser, `{"data": [], "extra": 1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty batch", testUser, eventsPayload(), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"too many", testUser, eventsPayload(tooMany...), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"bad kind", testUser, eventsPayload(ev("scroll", "example.com", "2025-01-01T00:00:00Z")), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"domain without dot", testUser, eventsPayload(ev("focus", "localhost", "2025-01-01T00:00:00Z")), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"missing timestamp", testUser, `{"data": [{"event": "focus", "domain": "example.com"}]}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"future timestamp", testUser, eventsPayload(ev("focus", "example.com", future)), http.StatusUnprocessableEntity, "TIMESTAMP_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := memory.New()
			ts := newTestServer(t, db, nil)

			resp := postEvents(t, ts, tc.userID, tc.payload)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.StatusCode)
			}
			body := decodeBody(t, resp)
			if body["code"] != tc.wantCode {
				t.Fatalf("expected code %s, got %v", tc.wantCode, body)
			}
			if msg, _ := body["message"].(string); msg == "" {
				t.Fatal("expected a message")
			}
			if db.UserCount() != 0 {
				t.Fatal("rejected request must not provision a user")
			}
		})
	}
}

func TestSendEvents_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"session", domain.NewError(domain.KindSession, "", errors.New("pool exhausted")), http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create database session"},
		{"unexpected session", domain.NewError(domain.KindUnexpectedSession, "", errors.New("boom")), http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create database session"},
		{"connection", &domain.Error{Kind: domain.KindConnection, Reason: domain.ReasonEngineCreationFailed, Cause: errors.New("refused")}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", ""},
		{"integrity", domain.NewError(domain.KindDataIntegrity, testUser, domain.ErrIntegrityViolation), http.StatusConflict, "CONFLICT", ""},
		{"persistence", domain.NewError(domain.KindDataPersistence, testUser, domain.ErrPersistence), http.StatusInternalServerError, "DATABASE_ERROR", ""},
		{"provisioning", domain.NewError(domain.KindUserProvisioning, testUser, domain.ErrPersistence), http.StatusInternalServerError, "DATABASE_ERROR", ""},
		{"untyped", errors.New("something odd"), http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, failingProvider{err: tc.err}, nil)

			resp := postEvents(t, ts, testUser, eventsPayload(ev("focus", "example.com", "2025-01-01T00:00:00Z")))
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.StatusCode)
			}
			body := decodeBody(t, resp)
			if body["code"] != tc.wantCode {
				t.Fatalf("expected code %s, got %v", tc.wantCode, body["code"])
			}
			if tc.wantMsg != "" && body["message"] != tc.wantMsg {
				t.Fatalf("expected message %q, got %v", tc.wantMsg, body["message"])
			}
		})
	}
}

func TestSendEvents_CommitFailure(t *testing.T) {
	db := memory.New()
	db.FailCommits(fmt.Errorf("%w: disk I/O error", domain.ErrPersistence))
	ts := newTestServer(t, db, nil)

	resp := postEvents(t, ts, testUser, eventsPayload(ev("focus", "example.com", "2025-01-01T00:00:00Z")))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["code"] != "DATABASE_ERROR" {
		t.Fatalf("unexpected body %v", body)
	}
	if strings.Contains(body["message"].(string), "disk") {
		t.Fatal("driver detail leaked to the client")
	}
}

func TestRecentEvents(t *testing.T) {
	db := memory.New()
	ts := newTestServer(t, db, nil)

	postEvents(t, ts, testUser, eventsPayload(
		ev("focus", "a.com", "2025-01-01T00:00:00Z"),
		ev("blur", "a.com", "2025-01-01T00:01:00Z"),
		ev("focus", "b.com", "2025-01-01T00:02:00Z"),
	))

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/events?limit=2", nil)
	req.Header.Set(adapthttp.UserIDHeader, testUser)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		UserID string                  `json:"user_id"`
		Items  []domain.AttentionEvent `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.UserID != testUser || len(body.Items) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Items[0].Domain != "b.com" || body.Items[0].Kind != domain.EventFocus {
		t.Fatalf("expected newest event first, got %+v", body.Items[0])
	}
}

func TestRecentEvents_EmptyForNewUser(t *testing.T) {
	ts := newTestServer(t, memory.New(), nil)

	resp, err := http.Get(ts.URL + "/api/v1/events")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body := decodeBody(t, resp)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty items array, got %v", body["items"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, memory.New(), nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, memory.New(), nil)

	resp, err := http.Get(ts.URL + "/api/v2/nothing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["code"] != "RESOURCE_NOT_FOUND" {
		t.Fatalf("unexpected body %v", body)
	}
}
