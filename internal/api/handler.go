// Package api implements the relay's HTTP surface: login and subscription endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/subscription-relay/internal/auth"
	"github.com/sipico/subscription-relay/internal/middleware"
	"github.com/sipico/subscription-relay/internal/relay"
)

// Relay defines the subscription operations needed by the handlers.
// This interface enables testing with mock implementations.
type Relay interface {
	// Ready checks that the ledger node is reachable and healthy.
	Ready(ctx context.Context) error

	// Create opens a subscription and pays the first period.
	Create(ctx context.Context, owner string, planID, duration, amount uint64) (string, error)
	// Update changes the duration and amount of an active subscription.
	Update(ctx context.Context, owner string, planID, duration, amount uint64) (string, error)
	// Renew pays the next period of an expired subscription.
	Renew(ctx context.Context, owner string, planID uint64) (string, error)
	// Cancel deactivates a subscription.
	Cancel(ctx context.Context, owner string, planID uint64) (string, error)
	// Close removes an inactive subscription and refunds its rent.
	Close(ctx context.Context, owner string, planID uint64) (string, error)

	// Get fetches and decodes the subscription record.
	Get(ctx context.Context, owner string, planID uint64) (*relay.Subscription, error)
}

// Authenticator verifies signed login challenges.
type Authenticator interface {
	Challenge() auth.Challenge
	Authenticate(req auth.Request) (*auth.Response, error)
}

// Handler handles relay HTTP requests.
type Handler struct {
	relay  Relay
	auth   Authenticator
	logger *slog.Logger
}

// NewHandler creates a new relay handler.
// If logger is nil, slog.Default() will be used.
func NewHandler(r Relay, a Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		relay:  r,
		auth:   a,
		logger: logger,
	}
}

// HandleChallenge returns the message to sign for the current server time.
// GET /auth/challenge
func (h *Handler) HandleChallenge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.auth.Challenge())
}

// HandleAuth exchanges a signed challenge for a session token.
// POST /auth
func (h *Handler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	var req auth.Request
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.auth.Authenticate(req)
	if err != nil {
		h.handleRelayError(w, r, auth.AsRelayError(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCreate opens a subscription for the authenticated owner.
// POST /api/subscriptions
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.relay.Create(r.Context(), auth.OwnerFromContext(r.Context()), *req.PlanID, *req.Duration, *req.Amount)
	h.writeConfirmation(w, r, id, err)
}

// HandleGet returns the subscription record for a plan.
// GET /api/subscriptions/{plan_id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	planID, ok := parsePlanID(w, r)
	if !ok {
		return
	}

	sub, err := h.relay.Get(r.Context(), auth.OwnerFromContext(r.Context()), planID)
	if err != nil {
		h.handleRelayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// HandleUpdate changes the duration and amount of a subscription.
// PUT /api/subscriptions/{plan_id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	planID, ok := parsePlanID(w, r)
	if !ok {
		return
	}
	var req UpdateSubscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.relay.Update(r.Context(), auth.OwnerFromContext(r.Context()), planID, *req.Duration, *req.Amount)
	h.writeConfirmation(w, r, id, err)
}

// HandleRenew pays the next period.
// POST /api/subscriptions/{plan_id}/renew
func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	h.handlePlanOp(w, r, h.relay.Renew)
}

// HandleCancel deactivates a subscription.
// POST /api/subscriptions/{plan_id}/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.handlePlanOp(w, r, h.relay.Cancel)
}

// HandleClose removes an inactive subscription.
// DELETE /api/subscriptions/{plan_id}
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	h.handlePlanOp(w, r, h.relay.Close)
}

func (h *Handler) handlePlanOp(w http.ResponseWriter, r *http.Request, op func(context.Context, string, uint64) (string, error)) {
	planID, ok := parsePlanID(w, r)
	if !ok {
		return
	}
	id, err := op(r.Context(), auth.OwnerFromContext(r.Context()), planID)
	h.writeConfirmation(w, r, id, err)
}

func (h *Handler) writeConfirmation(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil {
		h.handleRelayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfirmationResponse{ConfirmationID: id})
}

func parsePlanID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	planID, err := strconv.ParseUint(chi.URLParam(r, "plan_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, relay.KindBadRequest, "Invalid plan_id")
		return 0, false
	}
	return planID, true
}

// statusFor maps a relay Kind to its HTTP status.
func statusFor(kind relay.Kind) int {
	switch kind {
	case relay.KindAuth:
		return http.StatusUnauthorized
	case relay.KindBadRequest:
		return http.StatusBadRequest
	case relay.KindNotFound:
		return http.StatusNotFound
	case relay.KindLedger:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleRelayError maps relay errors to HTTP responses. Only the error's
// caller-facing message reaches the body; the diagnostic chain is logged.
func (h *Handler) handleRelayError(w http.ResponseWriter, r *http.Request, err error) {
	var rerr *relay.Error
	if !errors.As(err, &rerr) {
		h.logger.Error("unexpected relay error",
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, relay.KindInternal, "Internal server error")
		return
	}

	status := statusFor(rerr.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed",
			"kind", string(rerr.Kind),
			"cause", string(rerr.Cause),
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}
	writeError(w, status, rerr.Kind, rerr.Message)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log encoding errors but don't fail the response
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind relay.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: string(kind), Message: message})
}
