// Package ledger provides a JSON-RPC client for a Solana-style ledger node.
package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sipico/subscription-relay/internal/metrics"
	"github.com/sipico/subscription-relay/internal/solana"
)

const (
	// DefaultEndpoint is the public devnet RPC endpoint.
	DefaultEndpoint = "https://api.devnet.solana.com"

	defaultPollInterval   = 500 * time.Millisecond
	defaultConfirmTimeout = 30 * time.Second
)

// Commitment is the ledger's finality level for reads and confirmations.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment validates a commitment name.
func ParseCommitment(s string) (Commitment, error) {
	switch c := Commitment(s); c {
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return c, nil
	}
	return "", fmt.Errorf("invalid commitment %q (must be processed, confirmed, or finalized)", s)
}

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	}
	return 0
}

// Reached reports whether a status at level c satisfies the target commitment.
func (c Commitment) Reached(target Commitment) bool {
	return c.rank() >= target.rank() && c.rank() > 0
}

// Client is a JSON-RPC 2.0 client for the ledger node.
type Client struct {
	endpoint       string
	httpClient     *http.Client
	commitment     Commitment
	pollInterval   time.Duration
	confirmTimeout time.Duration
	logger         *slog.Logger
	nextID         atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCommitment sets the commitment used for reads, preflight and confirmation.
func WithCommitment(commitment Commitment) Option {
	return func(c *Client) {
		c.commitment = commitment
	}
}

// WithPollInterval sets the delay between getSignatureStatuses polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithConfirmTimeout bounds how long ConfirmTransaction waits.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.confirmTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a ledger client for the given RPC endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:       endpoint,
		httpClient:     http.DefaultClient,
		commitment:     CommitmentConfirmed,
		pollInterval:   defaultPollInterval,
		confirmTimeout: defaultConfirmTimeout,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Commitment returns the configured commitment.
func (c *Client) Commitment() Commitment { return c.commitment }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Call performs one JSON-RPC request and decodes the result into result
// (which may be nil). Preflight failures come back as *SimulationError.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerCall(method, outcome(err), time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: %s: unexpected status %d", ErrTransport, method, resp.StatusCode)
		}
		return fmt.Errorf("%w: %s: failed to decode response: %w", ErrTransport, method, err)
	}

	if rpcResp.Error != nil {
		if sim, ok := asSimulationError(rpcResp.Error); ok {
			return sim
		}
		return rpcResp.Error
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: unexpected status %d", ErrTransport, method, resp.StatusCode)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("%w: %s: failed to decode result: %w", ErrTransport, method, err)
	}
	return nil
}

// outcome classifies an error for the ledger call metric.
func outcome(err error) string {
	var rpcErr *RPCError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSimulation):
		return "simulation"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	case errors.Is(err, ErrTransport):
		return "transport"
	}
	return "error"
}

// GetHealth returns nil when the node reports "ok".
func (c *Client) GetHealth(ctx context.Context) error {
	var status string
	if err := c.Call(ctx, "getHealth", nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("ledger: node unhealthy: %s", status)
	}
	return nil
}

// Blockhash is a recent blockhash and the last block height it is valid for.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// GetLatestBlockhash fetches a recent blockhash at the client commitment.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	var res struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	params := []any{map[string]any{"commitment": c.commitment}}
	if err := c.Call(ctx, "getLatestBlockhash", params, &res); err != nil {
		return Blockhash{}, err
	}
	hash, err := solana.HashFromBase58(res.Value.Blockhash)
	if err != nil {
		return Blockhash{}, fmt.Errorf("%w: getLatestBlockhash: %w", ErrTransport, err)
	}
	return Blockhash{Hash: hash, LastValidBlockHeight: res.Value.LastValidBlockHeight}, nil
}

// AccountInfo is the decoded result of getAccountInfo.
type AccountInfo struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Data       []byte
	Executable bool
}

type accountInfoJSON struct {
	Lamports   uint64    `json:"lamports"`
	Owner      string    `json:"owner"`
	Data       [2]string `json:"data"`
	Executable bool      `json:"executable"`
	RentEpoch  uint64    `json:"rentEpoch"`
	Space      uint64    `json:"space"`
}

// GetAccountInfo fetches an account with base64 data.
// Returns ErrAccountNotFound when the address holds no account.
func (c *Client) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	var res struct {
		Value *accountInfoJSON `json:"value"`
	}
	params := []any{
		address.String(),
		map[string]any{"encoding": "base64", "commitment": c.commitment},
	}
	if err := c.Call(ctx, "getAccountInfo", params, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, ErrAccountNotFound
	}

	if res.Value.Data[1] != "base64" {
		return nil, fmt.Errorf("%w: getAccountInfo: unexpected encoding %q", ErrTransport, res.Value.Data[1])
	}
	data, err := base64.StdEncoding.DecodeString(res.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: getAccountInfo: %w", ErrTransport, err)
	}
	owner, err := solana.PublicKeyFromBase58(res.Value.Owner)
	if err != nil {
		return nil, fmt.Errorf("%w: getAccountInfo: %w", ErrTransport, err)
	}

	return &AccountInfo{
		Lamports:   res.Value.Lamports,
		Owner:      owner,
		Data:       data,
		Executable: res.Value.Executable,
	}, nil
}

// GetBalance returns the lamport balance of an address (0 if it holds no account).
func (c *Client) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var res struct {
		Value uint64 `json:"value"`
	}
	params := []any{address.String(), map[string]any{"commitment": c.commitment}}
	if err := c.Call(ctx, "getBalance", params, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// SendTransaction submits a signed transaction with preflight simulation.
// A preflight failure is a *SimulationError; any other rejection wraps ErrBroadcast.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	params := []any{
		base64.StdEncoding.EncodeToString(tx.Serialize()),
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": c.commitment,
		},
	}

	var sigStr string
	if err := c.Call(ctx, "sendTransaction", params, &sigStr); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return solana.Signature{}, fmt.Errorf("%w: %w", ErrBroadcast, err)
		}
		return solana.Signature{}, err
	}

	sig, err := solana.SignatureFromBase58(sigStr)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: sendTransaction: %w", ErrTransport, err)
	}
	return sig, nil
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64           `json:"slot"`
	Confirmations      *uint64          `json:"confirmations"`
	Err                TransactionError `json:"err"`
	ConfirmationStatus Commitment       `json:"confirmationStatus"`
}

// GetSignatureStatuses returns one status per signature; nil entries are unknown.
func (c *Client) GetSignatureStatuses(ctx context.Context, sigs ...solana.Signature) ([]*SignatureStatus, error) {
	encoded := make([]string, len(sigs))
	for i, s := range sigs {
		encoded[i] = s.String()
	}
	var res struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{encoded, map[string]any{"searchTransactionHistory": true}}
	if err := c.Call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, err
	}
	if len(res.Value) != len(sigs) {
		return nil, fmt.Errorf("%w: getSignatureStatuses: got %d statuses for %d signatures",
			ErrTransport, len(res.Value), len(sigs))
	}
	return res.Value, nil
}

// ConfirmTransaction polls until sig reaches the client commitment.
// It returns a *TransactionFailedError if the transaction landed with an error
// and ErrConfirmationTimeout when the confirm timeout elapses first.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := c.GetSignatureStatuses(ctx, sig)
		switch {
		case err == nil:
			if st := statuses[0]; st != nil {
				if !st.Err.IsZero() {
					return &TransactionFailedError{Signature: sig.String(), Err: st.Err}
				}
				if st.ConfirmationStatus.Reached(c.commitment) {
					return nil
				}
			}
		case ctx.Err() == nil:
			// Transient poll failures are retried until the deadline.
			c.logger.Debug("signature status poll failed", "signature", sig.String(), "error", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrConfirmationTimeout, sig, c.confirmTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SendAndConfirmTransaction submits tx and waits for confirmation.
// The signature is returned even when confirmation fails, since the
// transaction may still land.
func (c *Client) SendAndConfirmTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, c.ConfirmTransaction(ctx, sig)
}

// RequestAirdrop asks the node to fund address. Only test ledgers honor it.
func (c *Client) RequestAirdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (solana.Signature, error) {
	var sigStr string
	params := []any{address.String(), lamports, map[string]any{"commitment": c.commitment}}
	if err := c.Call(ctx, "requestAirdrop", params, &sigStr); err != nil {
		return solana.Signature{}, err
	}
	sig, err := solana.SignatureFromBase58(sigStr)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: requestAirdrop: %w", ErrTransport, err)
	}
	return sig, nil
}
