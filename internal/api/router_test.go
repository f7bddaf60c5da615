package api

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sipico/subscription-relay/internal/admin"
	"github.com/sipico/subscription-relay/internal/middleware"
	"github.com/sipico/subscription-relay/internal/testutil/mockrelay"
)

func TestRouter_WriteRateLimitPerOwner(t *testing.T) {
	t.Parallel()
	limiter := middleware.NewRateLimiter(0.001, 1, OwnerKey)
	s := newTestServer(t, nil, RouterConfig{WriteLimiter: limiter})
	alice := s.token(t, testOwner)
	bob := s.token(t, "BE8PNroWQBpof1qctnwzftcFKRRVuqbYQ5Xv1LnREQBc")

	if rec := s.do(http.MethodPost, "/api/subscriptions/1/renew", alice, ""); rec.Code != http.StatusOK {
		t.Fatalf("first write: expected 200, got %d", rec.Code)
	}
	rec := s.do(http.MethodPost, "/api/subscriptions/1/cancel", alice, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second write: expected 429, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "TooManyRequests" {
		t.Errorf("error = %q, want TooManyRequests", resp.Error)
	}

	// Reads and other owners are not charged to alice's bucket.
	if rec := s.do(http.MethodGet, "/api/subscriptions/1", alice, ""); rec.Code != http.StatusOK {
		t.Errorf("read: expected 200, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/api/subscriptions/1/renew", bob, ""); rec.Code != http.StatusOK {
		t.Errorf("other owner: expected 200, got %d", rec.Code)
	}
}

func TestRouter_BodyTooLarge(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, RouterConfig{MaxBodyBytes: 16})

	rec := s.do(http.MethodPost, "/api/subscriptions", s.token(t, testOwner),
		`{"plan_id":1,"duration":2592000,"amount":1000}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", rec.Code)
	}
}

func TestRouter_MountsAdmin(t *testing.T) {
	t.Parallel()
	m := &mockrelay.MockRelay{}
	ah := admin.NewHandler(m, nil, slog.New(slog.DiscardHandler))
	s := newTestServer(t, m, RouterConfig{Admin: ah})

	for _, path := range []string{"/health", "/ready", "/admin/health"} {
		if rec := s.do(http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
	if rec := s.do(http.MethodGet, "/admin/api/whoami", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("admin API without token: expected 404, got %d", rec.Code)
	}
}

func TestRouter_CORSAndRequestID(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, RouterConfig{CORSAllowedOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/subscriptions", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if !strings.Contains(strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "authorization") {
		t.Errorf("Access-Control-Allow-Headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}

	rec = s.do(http.MethodGet, "/auth/challenge", "", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}
