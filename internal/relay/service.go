// Package relay turns authenticated subscription requests into signed ledger
// transactions and reads subscription records back.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sipico/subscription-relay/internal/ledger"
	"github.com/sipico/subscription-relay/internal/metrics"
	"github.com/sipico/subscription-relay/internal/middleware"
	"github.com/sipico/subscription-relay/internal/program"
	"github.com/sipico/subscription-relay/internal/solana"
)

// Ledger is the subset of the ledger client the relay uses.
type Ledger interface {
	GetHealth(ctx context.Context) error
	GetLatestBlockhash(ctx context.Context) (ledger.Blockhash, error)
	GetAccountInfo(ctx context.Context, address solana.PublicKey) (*ledger.AccountInfo, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
}

// Config holds the on-ledger addresses the relay targets.
type Config struct {
	ProgramID solana.PublicKey
	Treasury  solana.PublicKey
}

// Subscription is the caller-facing view of a subscription record.
type Subscription struct {
	ID        string  `json:"id"`
	Owner     string  `json:"owner"`
	PlanID    uint64  `json:"plan_id"`
	StartTime int64   `json:"start_time"`
	Duration  uint64  `json:"duration"`
	Amount    uint64  `json:"amount"`
	Active    bool    `json:"active"`
	History   []int64 `json:"history"`
}

// opGet labels read failures in logs; it is not a program instruction.
const opGet program.Op = "get"

// Service is stateless apart from its immutable configuration, so one
// instance serves all requests concurrently.
type Service struct {
	ledger Ledger
	keys   *Keyring
	cfg    Config
	logger *slog.Logger
}

// NewService creates a relay service. A nil logger uses slog.Default().
func NewService(l Ledger, keys *Keyring, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, keys: keys, cfg: cfg, logger: logger}
}

// Ready reports whether the ledger node is healthy.
func (s *Service) Ready(ctx context.Context) error {
	return s.ledger.GetHealth(ctx)
}

// Create opens a subscription and pays the first period.
func (s *Service) Create(ctx context.Context, owner string, planID, duration, amount uint64) (string, error) {
	return s.submit(ctx, owner, program.Instruction{
		Op: program.OpCreate, PlanID: planID, Duration: duration, Amount: amount,
	})
}

// Update replaces the duration and amount of an active subscription.
func (s *Service) Update(ctx context.Context, owner string, planID, duration, amount uint64) (string, error) {
	return s.submit(ctx, owner, program.Instruction{
		Op: program.OpUpdate, PlanID: planID, Duration: duration, Amount: amount,
	})
}

// Renew pays the next period of an expired, active subscription.
func (s *Service) Renew(ctx context.Context, owner string, planID uint64) (string, error) {
	return s.submit(ctx, owner, program.Instruction{Op: program.OpRenew, PlanID: planID})
}

// Cancel deactivates a subscription.
func (s *Service) Cancel(ctx context.Context, owner string, planID uint64) (string, error) {
	return s.submit(ctx, owner, program.Instruction{Op: program.OpCancel, PlanID: planID})
}

// Close removes a cancelled subscription and refunds its rent to the owner.
func (s *Service) Close(ctx context.Context, owner string, planID uint64) (string, error) {
	return s.submit(ctx, owner, program.Instruction{Op: program.OpClose, PlanID: planID})
}

// Get reads and decodes the subscription record for (owner, planID).
func (s *Service) Get(ctx context.Context, owner string, planID uint64) (*Subscription, error) {
	ownerPK, err := parseOwner(owner)
	if err != nil {
		return nil, err
	}
	pda, _, err := program.SubscriptionAddress(s.cfg.ProgramID, ownerPK, planID)
	if err != nil {
		return nil, NewError(KindInternal, "failed to derive subscription address", err)
	}

	info, err := s.ledger.GetAccountInfo(ctx, pda)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, NewError(KindNotFound, "Subscription not found", err)
	}
	if err != nil {
		return nil, s.ledgerError(ctx, opGet, owner, planID, err)
	}

	if info.Owner != s.cfg.ProgramID {
		s.logger.Error("subscription address not owned by program",
			"address", pda.String(),
			"account_owner", info.Owner.String(),
			"request_id", middleware.GetRequestID(ctx),
		)
		return nil, NewError(KindInternal, "unexpected decode failure", nil)
	}

	var rec program.Subscription
	if err := rec.UnmarshalBinary(info.Data); err != nil {
		s.logger.Error("failed to decode subscription account",
			"address", pda.String(),
			"data_len", len(info.Data),
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		return nil, NewError(KindInternal, "unexpected decode failure", err)
	}
	if rec.Owner != ownerPK || rec.PlanID != planID {
		s.logger.Error("subscription account does not match its address",
			"address", pda.String(),
			"record_owner", rec.Owner.String(),
			"record_plan_id", rec.PlanID,
			"request_id", middleware.GetRequestID(ctx),
		)
		return nil, NewError(KindInternal, "unexpected decode failure", nil)
	}

	return &Subscription{
		ID:        pda.String(),
		Owner:     rec.Owner.String(),
		PlanID:    rec.PlanID,
		StartTime: rec.StartTime,
		Duration:  rec.Duration,
		Amount:    rec.Amount,
		Active:    rec.Active,
		History:   rec.History.Values(),
	}, nil
}

// submit builds, signs, sends and confirms one subscription instruction and
// returns the base58 transaction signature.
func (s *Service) submit(ctx context.Context, owner string, ix program.Instruction) (string, error) {
	ownerPK, err := parseOwner(owner)
	if err != nil {
		return "", err
	}
	if !s.keys.Has(ownerPK) {
		return "", NewError(KindAuth, "No custodial key for this public key", nil)
	}

	pda, _, err := program.SubscriptionAddress(s.cfg.ProgramID, ownerPK, ix.PlanID)
	if err != nil {
		return "", NewError(KindInternal, "failed to derive subscription address", err)
	}
	instruction, err := program.NewInstruction(s.cfg.ProgramID, ix, pda, ownerPK, s.cfg.Treasury)
	if err != nil {
		return "", NewError(KindInternal, "failed to encode instruction", err)
	}

	bh, err := s.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return "", s.ledgerError(ctx, ix.Op, owner, ix.PlanID, err)
	}

	msg, err := solana.NewMessage([]solana.Instruction{instruction}, ownerPK, bh.Hash)
	if err != nil {
		return "", NewError(KindInternal, "failed to build transaction", err)
	}
	signers, err := s.keys.signersFor(msg)
	if err != nil {
		return "", NewError(KindInternal, "failed to sign transaction", err)
	}
	tx := solana.NewTransaction(msg)
	if err := tx.Sign(signers...); err != nil {
		return "", NewError(KindInternal, "failed to sign transaction", err)
	}

	// A sent transaction cannot be recalled, so send and confirm outlive the caller.
	sendCtx := context.WithoutCancel(ctx)

	sig, err := s.ledger.SendTransaction(sendCtx, tx)
	if err != nil {
		return "", s.ledgerError(ctx, ix.Op, owner, ix.PlanID, err)
	}
	if err := s.ledger.ConfirmTransaction(sendCtx, sig); err != nil {
		return "", s.ledgerError(ctx, ix.Op, owner, ix.PlanID, err)
	}

	metrics.RecordTransaction(string(ix.Op), "confirmed")
	s.logger.Info("subscription transaction confirmed",
		"op", ix.Op,
		"owner", owner,
		"plan_id", ix.PlanID,
		"signature", sig.String(),
		"request_id", middleware.GetRequestID(ctx),
	)
	return sig.String(), nil
}

func parseOwner(owner string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, NewError(KindBadRequest, "Invalid public key", err)
	}
	return pk, nil
}

// ledgerError classifies a ledger failure, logs the diagnostics, and returns
// an *Error whose message carries no raw ledger output.
func (s *Service) ledgerError(ctx context.Context, op program.Op, owner string, planID uint64, err error) *Error {
	attrs := []any{
		"op", op,
		"owner", owner,
		"plan_id", planID,
		"request_id", middleware.GetRequestID(ctx),
	}

	var (
		sim    *ledger.SimulationError
		failed *ledger.TransactionFailedError
		e      *Error
	)
	switch {
	case errors.As(err, &sim):
		s.logger.Error("transaction simulation failed",
			append(attrs, "error", sim.Err.String(), "logs", sim.Logs)...)
		e = &Error{Kind: KindLedger, Cause: CauseSimulation, Message: describe("transaction rejected", sim.CustomCode)}
	case errors.As(err, &failed):
		s.logger.Error("transaction failed on ledger",
			append(attrs, "signature", failed.Signature, "error", failed.Err.String())...)
		e = &Error{Kind: KindLedger, Cause: CauseConfirmation, Message: describe("transaction failed", failed.CustomCode)}
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		s.logger.Error("transaction not confirmed", append(attrs, "error", err)...)
		e = &Error{Kind: KindLedger, Cause: CauseConfirmation, Message: "transaction was not confirmed in time"}
	case errors.Is(err, ledger.ErrBroadcast):
		s.logger.Error("transaction broadcast rejected", append(attrs, "error", err)...)
		e = &Error{Kind: KindLedger, Cause: CauseBroadcast, Message: "transaction rejected by ledger"}
	default:
		s.logger.Error("ledger request failed", append(attrs, "error", err)...)
		e = &Error{Kind: KindLedger, Cause: CauseRPC, Message: "ledger unavailable"}
	}
	e.Err = err

	if op != opGet {
		metrics.RecordTransaction(string(op), string(e.Cause))
	}
	return e
}

// describe appends the program error message when the failure carries one.
func describe(prefix string, code func() (uint32, bool)) string {
	c, ok := code()
	if !ok {
		return prefix
	}
	if pe, found := program.LookupError(c); found {
		return fmt.Sprintf("%s: %s", prefix, pe.Message)
	}
	if pe, found := program.LookupSystemError(c); found {
		return fmt.Sprintf("%s: %s", prefix, pe.Message)
	}
	return prefix
}
