package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubReady struct{ err error }

func (s stubReady) Ready(context.Context) error { return s.err }

func newTestHandler(t *testing.T, ready ReadinessChecker, token string) (*Handler, *slog.LevelVar) {
	t.Helper()
	level := new(slog.LevelVar)
	h := NewHandler(ready, level, slog.New(slog.DiscardHandler))
	if err := h.SetAdminToken(token); err != nil {
		t.Fatalf("SetAdminToken() error = %v", err)
	}
	return h, level
}

func serve(h *Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.NewRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		ready      ReadinessChecker
		path       string
		wantStatus int
		wantLedger string
	}{
		{"health", nil, "/health", http.StatusOK, ""},
		{"ready ok", stubReady{}, "/ready", http.StatusOK, "connected"},
		{"ready ledger down", stubReady{err: errors.New("node unhealthy")}, "/ready", http.StatusServiceUnavailable, "unavailable"},
		{"ready not configured", nil, "/ready", http.StatusServiceUnavailable, "not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _ := newTestHandler(t, tt.ready, "")
			rec := serve(h, http.MethodGet, tt.path, "", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["ledger"] != tt.wantLedger {
				t.Errorf("ledger = %q, want %q", body["ledger"], tt.wantLedger)
			}
		})
	}
}

func TestTokenAuthMiddleware(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, nil, "admin-secret-token")

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"valid token", "admin-secret-token", http.StatusOK},
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "guess", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, "/api/whoami", tt.token, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestTokenAuthMiddleware_Disabled(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, nil, "")

	rec := serve(h, http.MethodGet, "/api/whoami", "anything", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when admin API is disabled, got %d", rec.Code)
	}
}

func TestHandleWhoami(t *testing.T) {
	t.Parallel()
	h, level := newTestHandler(t, nil, "tok")
	level.Set(slog.LevelWarn)

	rec := serve(h, http.MethodGet, "/api/whoami", "tok", "")
	var resp WhoamiResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Role != "admin" || resp.LogLevel != "warn" {
		t.Errorf("unexpected whoami %+v", resp)
	}
}

func TestHandleSetLogLevel(t *testing.T) {
	t.Parallel()
	h, level := newTestHandler(t, nil, "tok")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantLevel  slog.Level
	}{
		{"debug", `{"level":"debug"}`, http.StatusOK, slog.LevelDebug},
		{"error", `{"level":"error"}`, http.StatusOK, slog.LevelError},
		{"invalid level", `{"level":"verbose"}`, http.StatusBadRequest, slog.LevelError},
		{"invalid json", `{`, http.StatusBadRequest, slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodPost, "/api/loglevel", "tok", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body)
			}
			if level.Level() != tt.wantLevel {
				t.Errorf("level = %v, want %v", level.Level(), tt.wantLevel)
			}
		})
	}

	rec := serve(h, http.MethodGet, "/api/loglevel", "tok", "")
	var resp LogLevelResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Level != "error" {
		t.Errorf("GET loglevel = %q, want error", resp.Level)
	}
}

func TestHashToken(t *testing.T) {
	t.Parallel()
	a, err := HashToken("same")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := HashToken("same")
	if string(a) == string(b) {
		t.Error("expected salted hashes to differ")
	}
	h := &Handler{tokenHash: a}
	if err := h.verifyToken("same"); err != nil {
		t.Errorf("verifyToken() error = %v", err)
	}
	if err := h.verifyToken("other"); err == nil {
		t.Error("expected mismatch error")
	}
}
