package mockledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/subscription-relay/internal/program"
	"github.com/sipico/subscription-relay/internal/solana"
	"github.com/sipico/subscription-relay/internal/storage"
)

// ClockResponse is the response for GET and POST /admin/clock.
type ClockResponse struct {
	Now  int64  `json:"now"`
	Slot uint64 `json:"slot"`
}

// SetClockRequest is the request body for POST /admin/clock. Advance is in
// seconds; Set is a unix timestamp. Set wins when both are given.
type SetClockRequest struct {
	Advance int64  `json:"advance"`
	Set     *int64 `json:"set"`
}

// FailRequest is the request body for POST /admin/fail.
type FailRequest struct {
	Method  string `json:"method"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// AccountResponse is the response for GET /admin/accounts/{address}.
type AccountResponse struct {
	Address      string                `json:"address"`
	Lamports     uint64                `json:"lamports"`
	Owner        string                `json:"owner"`
	Space        int                   `json:"space"`
	Subscription *SubscriptionSnapshot `json:"subscription,omitempty"`
}

// SubscriptionSnapshot is the decoded record of a program-owned account.
type SubscriptionSnapshot struct {
	Owner     string  `json:"owner"`
	PlanID    uint64  `json:"plan_id"`
	StartTime int64   `json:"start_time"`
	Duration  uint64  `json:"duration"`
	Amount    uint64  `json:"amount"`
	Active    bool    `json:"active"`
	History   []int64 `json:"history"`
}

type adminError struct {
	Error string `json:"error"`
}

func (s *Server) clockResponse() ClockResponse {
	return ClockResponse{Now: s.state.now(), Slot: s.state.currentSlot()}
}

// handleAdminGetClock handles GET /admin/clock
func (s *Server) handleAdminGetClock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.clockResponse())
}

// handleAdminSetClock handles POST /admin/clock
func (s *Server) handleAdminSetClock(w http.ResponseWriter, r *http.Request) {
	var req SetClockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, adminError{Error: "Invalid request body"})
		return
	}
	switch {
	case req.Set != nil:
		s.SetNow(time.Unix(*req.Set, 0))
	case req.Advance != 0:
		s.Advance(time.Duration(req.Advance) * time.Second)
	default:
		writeJSON(w, http.StatusBadRequest, adminError{Error: "advance or set is required"})
		return
	}
	writeJSON(w, http.StatusOK, s.clockResponse())
}

// handleAdminFail handles POST /admin/fail
// Schedules JSON-RPC failures for the next calls of a method.
func (s *Server) handleAdminFail(w http.ResponseWriter, r *http.Request) {
	var req FailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, adminError{Error: "Invalid request body"})
		return
	}
	if req.Code == 0 {
		writeJSON(w, http.StatusBadRequest, adminError{Error: "code is required"})
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	s.SetNextError(req.Method, req.Code, req.Message, req.Count)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminGetAccount handles GET /admin/accounts/{address}
func (s *Server) handleAdminGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := solana.PublicKeyFromBase58(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, adminError{Error: "Invalid address"})
		return
	}
	acct, err := s.store.GetAccount(r.Context(), addr.String())
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, adminError{Error: "Account not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, adminError{Error: err.Error()})
		return
	}

	resp := AccountResponse{
		Address:  acct.Address,
		Lamports: acct.Lamports,
		Owner:    acct.Owner,
		Space:    len(acct.Data),
	}
	if acct.Owner == s.ProgramID().String() {
		var sub program.Subscription
		if err := sub.UnmarshalBinary(acct.Data); err == nil {
			resp.Subscription = &SubscriptionSnapshot{
				Owner:     sub.Owner.String(),
				PlanID:    sub.PlanID,
				StartTime: sub.StartTime,
				Duration:  sub.Duration,
				Amount:    sub.Amount,
				Active:    sub.Active,
				History:   sub.History.Values(),
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAdminAirdrop handles POST /admin/accounts/{address}/airdrop
func (s *Server) handleAdminAirdrop(w http.ResponseWriter, r *http.Request) {
	addr, err := solana.PublicKeyFromBase58(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, adminError{Error: "Invalid address"})
		return
	}
	var req struct {
		Lamports uint64 `json:"lamports"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Lamports == 0 {
		writeJSON(w, http.StatusBadRequest, adminError{Error: "lamports is required"})
		return
	}
	if err := s.Fund(addr, req.Lamports); err != nil {
		writeJSON(w, http.StatusInternalServerError, adminError{Error: err.Error()})
		return
	}
	balance, err := s.Balance(addr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, adminError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"lamports": balance})
}
