package mockledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sipico/subscription-relay/internal/ledger"
	"github.com/sipico/subscription-relay/internal/program"
	"github.com/sipico/subscription-relay/internal/solana"
	"github.com/sipico/subscription-relay/internal/storage"
)

// Now returns the ledger clock in unix seconds.
func (s *Server) Now() int64 {
	return s.state.now()
}

// Advance moves the ledger clock forward by d.
func (s *Server) Advance(d time.Duration) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.skew += d
}

// SetNow pins the ledger clock to t relative to the base clock.
func (s *Server) SetNow(t time.Time) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.skew = t.Sub(s.state.clock())
}

// SetNextError makes the next count calls to method fail with the given
// JSON-RPC error. An empty method matches any call.
func (s *Server) SetNextError(method string, code int, message string, count int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for i := 0; i < count; i++ {
		s.state.failures = append(s.state.failures, injectedError{
			method: method,
			err:    ledger.RPCError{Code: code, Message: message},
		})
	}
}

// SetLatency delays the next count requests by d.
func (s *Server) SetLatency(d time.Duration, count int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.latency = d
	s.state.latencyCount = count
}

// HoldConfirmations makes getSignatureStatuses report every signature as
// unknown, as if the transaction never landed.
func (s *Server) HoldConfirmations(hold bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.holdConfirmations = hold
}

// SetUnhealthy makes getHealth fail.
func (s *Server) SetUnhealthy(unhealthy bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.unhealthy = unhealthy
}

// Fund credits lamports to address directly, bypassing the RPC surface.
func (s *Server) Fund(address solana.PublicKey, lamports uint64) error {
	ctx := context.Background()
	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return (&ledgerAccounts{ctx: ctx, tx: tx}).credit(address, lamports)
	})
}

// Balance returns the lamports held by address, or 0 if it has no account.
func (s *Server) Balance(address solana.PublicKey) (uint64, error) {
	acct, err := s.store.GetAccount(context.Background(), address.String())
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// Subscription decodes the record stored at address.
func (s *Server) Subscription(address solana.PublicKey) (*program.Subscription, error) {
	acct, err := s.store.GetAccount(context.Background(), address.String())
	if err != nil {
		return nil, err
	}
	var sub program.Subscription
	if err := sub.UnmarshalBinary(acct.Data); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SetAccountData overwrites the data of address with raw bytes, creating a
// program-owned account if needed. Tests use it to plant corrupt records.
func (s *Server) SetAccountData(address solana.PublicKey, data []byte) error {
	ctx := context.Background()
	acct, err := s.store.GetAccount(ctx, address.String())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		acct = &storage.Account{
			Address:  address.String(),
			Lamports: RentExemptMinimum(uint64(len(data))),
		}
	case err != nil:
		return fmt.Errorf("failed to load account: %w", err)
	}
	acct.Owner = s.ProgramID().String()
	acct.Data = append([]byte(nil), data...)
	return s.store.PutAccount(ctx, acct)
}
