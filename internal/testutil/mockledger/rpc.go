package mockledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sipico/subscription-relay/internal/ledger"
)

// JSON-RPC error codes used by the mock.
const (
	codeParseError      = -32700
	codeInvalidRequest  = -32600
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
	codeSigVerifyFailed = -32003
)

type rpcMethod func(ctx context.Context, params []json.RawMessage) (any, *ledger.RPCError)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  any              `json:"result,omitempty"`
	Error   *ledger.RPCError `json:"error,omitempty"`
}

func (s *Server) rpcMethods() map[string]rpcMethod {
	return map[string]rpcMethod{
		"getHealth":            s.getHealth,
		"getLatestBlockhash":   s.getLatestBlockhash,
		"getAccountInfo":       s.getAccountInfo,
		"getBalance":           s.getBalance,
		"sendTransaction":      s.sendTransaction,
		"getSignatureStatuses": s.getSignatureStatuses,
		"requestAirdrop":       s.requestAirdrop,
	}
}

// handleRPC handles POST / with a single JSON-RPC 2.0 request.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, rpcResponse{Error: &ledger.RPCError{Code: codeParseError, Message: "Parse error"}})
		return
	}
	resp := rpcResponse{ID: req.ID}
	if req.JSONRPC != "2.0" || req.Method == "" {
		resp.Error = &ledger.RPCError{Code: codeInvalidRequest, Message: "Invalid request"}
		writeRPC(w, resp)
		return
	}

	if d := s.state.takeLatency(); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	if injected, ok := s.state.takeFailure(req.Method); ok {
		resp.Error = injected
		writeRPC(w, resp)
		return
	}

	method, ok := s.methods[req.Method]
	if !ok {
		resp.Error = &ledger.RPCError{Code: codeMethodNotFound, Message: "Method not found"}
		writeRPC(w, resp)
		return
	}

	result, rpcErr := method(r.Context(), req.Params)
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	writeRPC(w, resp)
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	resp.JSONRPC = "2.0"
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	json.NewEncoder(w).Encode(v)
}

// decodeParam decodes params[i] into out. Missing optional params are left zero.
func decodeParam(params []json.RawMessage, i int, out any, required bool) *ledger.RPCError {
	if i >= len(params) || bytes.Equal(bytes.TrimSpace(params[i]), []byte("null")) {
		if required {
			return invalidParams("missing parameter %d", i)
		}
		return nil
	}
	if err := json.Unmarshal(params[i], out); err != nil {
		return invalidParams("invalid parameter %d: %v", i, err)
	}
	return nil
}

func invalidParams(format string, args ...any) *ledger.RPCError {
	return &ledger.RPCError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// withContext wraps a result the way RPC methods that report a slot do.
func (s *Server) withContext(value any) map[string]any {
	return map[string]any{
		"context": map[string]any{"slot": s.state.currentSlot()},
		"value":   value,
	}
}
