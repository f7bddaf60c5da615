// Package admin provides health probes and the token-guarded operator API of the relay.
package admin

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// ErrAdminDisabled is returned when no admin token is configured.
var ErrAdminDisabled = errors.New("admin API disabled")

// ReadinessChecker reports whether the relay can serve requests.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Handler provides admin endpoints
type Handler struct {
	ready     ReadinessChecker
	logger    *slog.Logger
	logLevel  *slog.LevelVar
	tokenHash []byte
}

// NewHandler creates an admin handler. The admin API stays disabled until
// SetAdminToken is called with a non-empty token.
func NewHandler(ready ReadinessChecker, logLevel *slog.LevelVar, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == nil {
		logLevel = new(slog.LevelVar)
	}

	return &Handler{
		ready:    ready,
		logLevel: logLevel,
		logger:   logger,
	}
}

// SetAdminToken stores a bcrypt hash of token. An empty token disables the API.
func (h *Handler) SetAdminToken(token string) error {
	if token == "" {
		h.tokenHash = nil
		return nil
	}
	hash, err := HashToken(token)
	if err != nil {
		return err
	}
	h.tokenHash = hash
	return nil
}

// HashToken hashes an admin token with bcrypt.
func HashToken(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
}

// verifyToken checks token against the configured hash.
func (h *Handler) verifyToken(token string) error {
	if h.tokenHash == nil {
		return ErrAdminDisabled
	}
	return bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token))
}
