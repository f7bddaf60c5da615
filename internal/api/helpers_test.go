package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/sipico/subscription-relay/internal/auth"
	"github.com/sipico/subscription-relay/internal/testutil/mockrelay"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const testOwner = "3WCHd9Z57YfUFb9kaUkq5nyQjyWMVLVHigvYfvSfsHEG"

type testServer struct {
	relay   *mockrelay.MockRelay
	tokens  *auth.TokenIssuer
	handler http.Handler
}

func newTestServer(t *testing.T, m *mockrelay.MockRelay, cfg RouterConfig) *testServer {
	t.Helper()
	if m == nil {
		m = &mockrelay.MockRelay{}
	}
	tokens := auth.NewTokenIssuer(testSecret)
	if cfg.Authorizer == nil {
		cfg.Authorizer = &auth.BearerAuthorizer{Tokens: tokens}
	}
	logger := slog.New(slog.DiscardHandler)
	h := NewHandler(m, auth.NewAuthenticator(tokens), logger)
	return &testServer{relay: m, tokens: tokens, handler: NewRouter(h, cfg, logger)}
}

func (s *testServer) token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := s.tokens.Issue(owner)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

// signedLogin returns a login body signed by a fresh key for ts.
func signedLogin(t *testing.T, ts int64) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	sig := ed25519.Sign(priv, []byte(auth.ChallengeMessage(ts)))
	body, err := json.Marshal(map[string]any{
		"public_key": base58.Encode(pub),
		"signature":  base58.Encode(sig),
		"timestamp":  ts,
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(body), base58.Encode(pub)
}

func now() int64 { return time.Now().Unix() }
