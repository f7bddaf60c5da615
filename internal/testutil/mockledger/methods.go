package mockledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/sipico/subscription-relay/internal/ledger"
	"github.com/sipico/subscription-relay/internal/solana"
	"github.com/sipico/subscription-relay/internal/storage"
)

func (s *Server) getHealth(ctx context.Context, _ []json.RawMessage) (any, *ledger.RPCError) {
	s.state.mu.Lock()
	unhealthy := s.state.unhealthy
	s.state.mu.Unlock()

	if unhealthy {
		return nil, &ledger.RPCError{Code: ledger.CodeNodeUnhealthy, Message: "Node is unhealthy"}
	}
	if err := s.store.Ping(ctx); err != nil {
		return nil, &ledger.RPCError{Code: ledger.CodeNodeUnhealthy, Message: "Node is unhealthy: " + err.Error()}
	}
	return "ok", nil
}

func (s *Server) getLatestBlockhash(_ context.Context, _ []json.RawMessage) (any, *ledger.RPCError) {
	hash, slot, lastValid := s.state.newBlockhash()
	return map[string]any{
		"context": map[string]any{"slot": slot},
		"value": map[string]any{
			"blockhash":            hash.String(),
			"lastValidBlockHeight": lastValid,
		},
	}, nil
}

func parseAddress(params []json.RawMessage) (solana.PublicKey, *ledger.RPCError) {
	var addr string
	if rpcErr := decodeParam(params, 0, &addr, true); rpcErr != nil {
		return solana.PublicKey{}, rpcErr
	}
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, invalidParams("Invalid param: %v", err)
	}
	return pk, nil
}

func (s *Server) getAccountInfo(ctx context.Context, params []json.RawMessage) (any, *ledger.RPCError) {
	pk, rpcErr := parseAddress(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var cfg struct {
		Encoding string `json:"encoding"`
	}
	if rpcErr := decodeParam(params, 1, &cfg, false); rpcErr != nil {
		return nil, rpcErr
	}
	if cfg.Encoding != "base64" {
		return nil, invalidParams("unsupported encoding %q, only base64 is supported", cfg.Encoding)
	}

	acct, err := s.store.GetAccount(ctx, pk.String())
	if errors.Is(err, storage.ErrNotFound) {
		return s.withContext(nil), nil
	}
	if err != nil {
		return nil, internalError(err)
	}

	return s.withContext(map[string]any{
		"lamports":   acct.Lamports,
		"owner":      acct.Owner,
		"data":       []string{base64.StdEncoding.EncodeToString(acct.Data), "base64"},
		"executable": false,
		"rentEpoch":  uint64(18446744073709551615),
		"space":      len(acct.Data),
	}), nil
}

func (s *Server) getBalance(ctx context.Context, params []json.RawMessage) (any, *ledger.RPCError) {
	pk, rpcErr := parseAddress(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acct, err := s.store.GetAccount(ctx, pk.String())
	if errors.Is(err, storage.ErrNotFound) {
		return s.withContext(0), nil
	}
	if err != nil {
		return nil, internalError(err)
	}
	return s.withContext(acct.Lamports), nil
}

func (s *Server) requestAirdrop(ctx context.Context, params []json.RawMessage) (any, *ledger.RPCError) {
	pk, rpcErr := parseAddress(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var lamports uint64
	if rpcErr := decodeParam(params, 1, &lamports, true); rpcErr != nil {
		return nil, rpcErr
	}

	sig := randomSignature()
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := (&ledgerAccounts{ctx: ctx, tx: tx}).credit(pk, lamports); err != nil {
			return err
		}
		return tx.RecordSignature(ctx, &storage.SignatureRecord{
			Signature: sig.String(),
			Slot:      s.state.nextSlot(),
		})
	})
	if err != nil {
		return nil, internalError(err)
	}
	return sig.String(), nil
}

func (s *Server) getSignatureStatuses(ctx context.Context, params []json.RawMessage) (any, *ledger.RPCError) {
	var sigs []string
	if rpcErr := decodeParam(params, 0, &sigs, true); rpcErr != nil {
		return nil, rpcErr
	}
	if len(sigs) > 256 {
		return nil, invalidParams("Too many inputs provided; max 256")
	}

	s.state.mu.Lock()
	hold := s.state.holdConfirmations
	s.state.mu.Unlock()

	// Each poll stands in for one block of progress.
	current := s.state.nextSlot()

	statuses := make([]any, len(sigs))
	for i, sig := range sigs {
		if hold {
			continue
		}
		rec, err := s.store.GetSignature(ctx, sig)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, internalError(err)
		}

		depth := current - rec.Slot
		status := map[string]any{
			"slot":               rec.Slot,
			"confirmations":      depth,
			"err":                ledger.TransactionError(rec.Err),
			"confirmationStatus": ledger.CommitmentConfirmed,
		}
		if depth >= finalitySlots {
			status["confirmations"] = nil
			status["confirmationStatus"] = ledger.CommitmentFinalized
		}
		statuses[i] = status
	}
	return s.withContext(statuses), nil
}

func (s *Server) sendTransaction(ctx context.Context, params []json.RawMessage) (any, *ledger.RPCError) {
	var encoded string
	if rpcErr := decodeParam(params, 0, &encoded, true); rpcErr != nil {
		return nil, rpcErr
	}
	var cfg struct {
		Encoding      string `json:"encoding"`
		SkipPreflight bool   `json:"skipPreflight"`
	}
	if rpcErr := decodeParam(params, 1, &cfg, false); rpcErr != nil {
		return nil, rpcErr
	}
	if cfg.Encoding != "base64" {
		return nil, invalidParams("unsupported encoding %q, only base64 is supported", cfg.Encoding)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, invalidParams("invalid transaction: %v", err)
	}
	tx, err := solana.ParseTransaction(raw)
	if err != nil {
		return nil, invalidParams("failed to deserialize transaction: %v", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, &ledger.RPCError{Code: codeSigVerifyFailed, Message: "Transaction signature verification failure"}
	}

	res, err := s.execute(ctx, tx, cfg.SkipPreflight)
	if err != nil {
		return nil, internalError(err)
	}
	if res.rejected() {
		return nil, res.simulationFailure()
	}
	return tx.ID().String(), nil
}

func internalError(err error) *ledger.RPCError {
	return &ledger.RPCError{Code: -32603, Message: "Internal error: " + err.Error()}
}
