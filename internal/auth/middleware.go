package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sipico/subscription-relay/internal/metrics"
	"github.com/sipico/subscription-relay/internal/relay"
)

// Authorizer authenticates a request and returns a context carrying the owner.
type Authorizer interface {
	Authorize(r *http.Request) (context.Context, error)
}

// BearerAuthorizer accepts "Authorization: Bearer <session token>".
type BearerAuthorizer struct {
	Tokens *TokenIssuer
}

// Authorize implements Authorizer.
func (b *BearerAuthorizer) Authorize(r *http.Request) (context.Context, error) {
	token := extractBearerToken(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	owner, err := b.Tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return WithOwner(r.Context(), owner), nil
}

// Middleware returns Chi-compatible middleware that rejects unauthenticated
// requests with 401 before any handler runs.
func Middleware(a Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := a.Authorize(r)
			if err != nil {
				metrics.RecordAuthFailure(reason(err))
				writeJSONError(w, http.StatusUnauthorized, Message(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken gets token from "Authorization: Bearer <token>" header
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeJSONError writes an Auth error body.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]string{"error": string(relay.KindAuth), "message": message})
}
