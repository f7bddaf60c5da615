package mockledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sipico/subscription-relay/internal/ledger"
	"github.com/sipico/subscription-relay/internal/program"
	"github.com/sipico/subscription-relay/internal/solana"
	"github.com/sipico/subscription-relay/internal/storage"
)

// errRollback aborts a store transaction after an instruction failure.
var errRollback = errors.New("mockledger: instruction failed")

// execResult is the outcome of running a transaction.
type execResult struct {
	signature string
	err       ledger.TransactionError
	message   string
	logs      []string
	// landed is set when the failed transaction was still recorded on the
	// ledger, which only happens with skipPreflight.
	landed bool
}

func (r *execResult) rejected() bool { return !r.err.IsZero() && !r.landed }

func (r *execResult) simulationFailure() *ledger.RPCError {
	data, _ := json.Marshal(map[string]any{"err": r.err, "logs": r.logs}) //nolint:errchkjson
	return &ledger.RPCError{
		Code:    ledger.CodeSendTransactionPreflightFailure,
		Message: "Transaction simulation failed: " + r.message,
		Data:    data,
	}
}

func reject(detail, message string) *execResult {
	b, _ := json.Marshal(detail) //nolint:errchkjson
	return &execResult{err: ledger.TransactionError(b), message: message}
}

// execute applies tx to the store. Program failures are reported in the
// result; the returned error is reserved for store failures.
func (s *Server) execute(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (*execResult, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	msg := &tx.Message
	if !s.state.blockhashValid(msg.RecentBlockhash) {
		return reject("BlockhashNotFound", "Blockhash not found"), nil
	}
	sig := tx.ID().String()
	if _, err := s.store.GetSignature(ctx, sig); err == nil {
		return reject("AlreadyProcessed", "This transaction has already been processed"), nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	payer := msg.FeePayer()
	fee := FeePerSignature * uint64(len(tx.Signatures))
	res := &execResult{signature: sig}
	feeFailed := false

	err := s.store.WithTx(ctx, func(stx *storage.Tx) error {
		accts := &ledgerAccounts{ctx: ctx, tx: stx, programID: s.ProgramID(), payer: payer}
		if err := accts.debit(payer, fee); err != nil {
			if errors.Is(err, program.ErrInsufficientFunds) {
				feeFailed = true
				*res = *reject("InsufficientFundsForFee", "Attempt to debit an account but found no record of a prior credit.")
				return errRollback
			}
			return err
		}

		for i, ci := range msg.Instructions {
			txErr, err := s.runInstruction(accts, msg, i, ci, &res.logs)
			if err != nil {
				return err
			}
			if !txErr.IsZero() {
				res.err = txErr
				res.message = describeFailure(i, txErr)
				return errRollback
			}
		}

		return stx.RecordSignature(ctx, &storage.SignatureRecord{Signature: sig, Slot: s.state.nextSlot()})
	})
	if err != nil && !errors.Is(err, errRollback) {
		return nil, err
	}
	if res.err.IsZero() || !skipPreflight || feeFailed {
		if !res.err.IsZero() {
			s.log("transaction rejected", "signature", sig, "err", res.err.String())
		}
		return res, nil
	}

	// Without preflight the failed transaction lands: the fee is charged and
	// the error is recorded against the signature.
	err = s.store.WithTx(ctx, func(stx *storage.Tx) error {
		accts := &ledgerAccounts{ctx: ctx, tx: stx, programID: s.ProgramID(), payer: payer}
		if err := accts.debit(payer, fee); err != nil {
			return err
		}
		return stx.RecordSignature(ctx, &storage.SignatureRecord{
			Signature: sig,
			Slot:      s.state.nextSlot(),
			Err:       res.err.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	res.landed = true
	s.log("failed transaction landed", "signature", sig, "err", res.err.String())
	return res, nil
}

// runInstruction executes one compiled instruction. It returns a non-zero
// TransactionError for a failed instruction and an error for store failures.
func (s *Server) runInstruction(accts *ledgerAccounts, msg *solana.Message, index int, ci solana.CompiledInstruction, logs *[]string) (ledger.TransactionError, error) {
	ix, err := msg.ResolveInstruction(ci)
	if err != nil {
		return ledger.InstructionError(index, "InvalidAccountIndex"), nil
	}
	programID := s.ProgramID()
	if ix.ProgramID != programID {
		return ledger.InstructionError(index, "UnsupportedProgramId"), nil
	}

	logf := func(format string, args ...any) {
		*logs = append(*logs, fmt.Sprintf(format, args...))
	}
	logf("Program %s invoke [1]", programID)

	fail := func(err error) (ledger.TransactionError, error) {
		pe, ok := program.AsError(err)
		if !ok {
			return nil, err
		}
		if pe == program.ErrAccountAlreadyInUse || pe == program.ErrInsufficientFunds {
			logf("Program %s invoke [2]", solana.SystemProgramID)
			logf("%s", pe.Message)
			logf("Program %s failed: custom program error: 0x%x", solana.SystemProgramID, pe.Code)
		} else {
			logf("Program log: AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.", pe.Name, pe.Code, pe.Message)
		}
		logf("Program %s failed: custom program error: 0x%x", programID, pe.Code)
		return ledger.InstructionError(index, pe.Code), nil
	}

	decoded, err := program.DecodeInstruction(ix.Data)
	if err != nil {
		return fail(err)
	}
	logf("Program log: Instruction: %s", instructionName(decoded.Op))

	want := len(program.AccountMetas(decoded.Op, solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{}))
	if len(ix.Accounts) < want {
		logf("Program %s failed: insufficient account keys for instruction", programID)
		return ledger.InstructionError(index, "NotEnoughAccountKeys"), nil
	}
	if !ix.Accounts[0].IsWritable {
		return fail(program.ErrConstraintMut)
	}
	if !ix.Accounts[1].IsSigner {
		return fail(program.ErrAccountNotSigner)
	}

	env := program.Env{
		Address: ix.Accounts[0].PublicKey,
		Caller:  ix.Accounts[1].PublicKey,
		Now:     s.state.now(),
	}
	if len(ix.Accounts) > 2 {
		env.Treasury = ix.Accounts[2].PublicKey
	}

	if err := s.processor.Process(accts, decoded, env); err != nil {
		return fail(err)
	}
	logf("Program %s success", programID)
	return nil, nil
}

// instructionName turns create_subscription into CreateSubscription.
func instructionName(op program.Op) string {
	parts := strings.Split(string(op), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}

func describeFailure(index int, txErr ledger.TransactionError) string {
	if code, ok := txErr.CustomCode(); ok {
		return fmt.Sprintf("Error processing Instruction %d: custom program error: 0x%x", index, code)
	}
	return fmt.Sprintf("Error processing Instruction %d: %s", index, txErr.String())
}

func (s *Server) log(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

// ledgerAccounts implements program.Accounts on top of a store transaction.
type ledgerAccounts struct {
	ctx       context.Context
	tx        *storage.Tx
	programID solana.PublicKey
	payer     solana.PublicKey
}

func (a *ledgerAccounts) Subscription(addr solana.PublicKey) (*program.Subscription, error) {
	acct, err := a.tx.GetAccount(a.ctx, addr.String())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, program.ErrAccountNotInitialized
	}
	if err != nil {
		return nil, err
	}
	if acct.Owner != a.programID.String() {
		return nil, program.ErrAccountNotInitialized
	}
	var sub program.Subscription
	if err := sub.UnmarshalBinary(acct.Data); err != nil {
		return nil, program.ErrAccountDidNotDeserialize
	}
	return &sub, nil
}

// PutSubscription writes the record, allocating a rent-exempt account funded
// by the fee payer the first time.
func (a *ledgerAccounts) PutSubscription(addr solana.PublicKey, sub *program.Subscription) error {
	data, err := sub.MarshalBinary()
	if err != nil {
		return err
	}
	padded := make([]byte, program.SubscriptionSpace)
	copy(padded, data)

	acct, err := a.tx.GetAccount(a.ctx, addr.String())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rent := RentExemptMinimum(program.SubscriptionSpace)
		if err := a.debit(a.payer, rent); err != nil {
			return err
		}
		acct = &storage.Account{Address: addr.String(), Lamports: rent, Owner: a.programID.String()}
	case err != nil:
		return err
	case acct.Owner != a.programID.String():
		return program.ErrAccountAlreadyInUse
	}
	acct.Data = padded
	return a.tx.PutAccount(a.ctx, acct)
}

func (a *ledgerAccounts) CloseSubscription(addr, refundTo solana.PublicKey) error {
	acct, err := a.tx.GetAccount(a.ctx, addr.String())
	if errors.Is(err, storage.ErrNotFound) {
		return program.ErrAccountNotInitialized
	}
	if err != nil {
		return err
	}
	if err := a.tx.DeleteAccount(a.ctx, addr.String()); err != nil {
		return err
	}
	return a.credit(refundTo, acct.Lamports)
}

func (a *ledgerAccounts) Transfer(from, to solana.PublicKey, lamports uint64) error {
	if lamports == 0 {
		return nil
	}
	if err := a.debit(from, lamports); err != nil {
		return err
	}
	return a.credit(to, lamports)
}

func (a *ledgerAccounts) debit(addr solana.PublicKey, lamports uint64) error {
	acct, err := a.tx.GetAccount(a.ctx, addr.String())
	if errors.Is(err, storage.ErrNotFound) {
		return program.ErrInsufficientFunds
	}
	if err != nil {
		return err
	}
	if acct.Lamports < lamports {
		return program.ErrInsufficientFunds
	}
	acct.Lamports -= lamports
	return a.tx.PutAccount(a.ctx, acct)
}

func (a *ledgerAccounts) credit(addr solana.PublicKey, lamports uint64) error {
	acct, err := a.tx.GetAccount(a.ctx, addr.String())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		acct = &storage.Account{Address: addr.String(), Owner: solana.SystemProgramID.String()}
	case err != nil:
		return err
	}
	if acct.Lamports > math.MaxUint64-lamports {
		return storage.ErrLamportsOverflow
	}
	acct.Lamports += lamports
	return a.tx.PutAccount(a.ctx, acct)
}
