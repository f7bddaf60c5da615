package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for ledger failures. Every error returned by Client matches
// exactly one of these with errors.Is, or is an *RPCError.
var (
	ErrTransport           = errors.New("ledger: transport failure")
	ErrSimulation          = errors.New("ledger: transaction simulation failed")
	ErrBroadcast           = errors.New("ledger: transaction rejected")
	ErrTransactionFailed   = errors.New("ledger: transaction failed")
	ErrConfirmationTimeout = errors.New("ledger: confirmation timed out")
	ErrAccountNotFound     = errors.New("ledger: account not found")
)

// JSON-RPC error codes the client interprets.
const (
	CodeSendTransactionPreflightFailure = -32002
	CodeNodeUnhealthy                   = -32005
)

// RPCError is a JSON-RPC error object returned by the ledger node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface for RPCError.
func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger: rpc error %d: %s", e.Code, e.Message)
}

// TransactionError is the raw error value the ledger attaches to a failed
// transaction, e.g. {"InstructionError":[0,{"Custom":6003}]} or "AccountNotFound".
type TransactionError json.RawMessage

// IsZero reports whether the error is absent or JSON null.
func (e TransactionError) IsZero() bool {
	trimmed := bytes.TrimSpace(e)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// MarshalJSON keeps the raw value intact.
func (e TransactionError) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return e, nil
}

// UnmarshalJSON keeps the raw value intact.
func (e *TransactionError) UnmarshalJSON(b []byte) error {
	*e = append((*e)[:0], b...)
	return nil
}

func (e TransactionError) String() string {
	if e.IsZero() {
		return ""
	}
	return string(bytes.TrimSpace(e))
}

// CustomCode extracts the program error code from an InstructionError of the
// form {"InstructionError":[idx,{"Custom":code}]}.
func (e TransactionError) CustomCode() (uint32, bool) {
	if e.IsZero() {
		return 0, false
	}
	var outer struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if err := json.Unmarshal(e, &outer); err != nil || len(outer.InstructionError) != 2 {
		return 0, false
	}
	var inner struct {
		Custom *uint32 `json:"Custom"`
	}
	if err := json.Unmarshal(outer.InstructionError[1], &inner); err != nil || inner.Custom == nil {
		return 0, false
	}
	return *inner.Custom, true
}

// InstructionError builds the TransactionError for a failing instruction.
// detail is either a string such as "InvalidAccountData" or a custom code.
func InstructionError(index int, detail any) TransactionError {
	var v any = detail
	if code, ok := detail.(uint32); ok {
		v = map[string]uint32{"Custom": code}
	}
	b, _ := json.Marshal(map[string][]any{"InstructionError": {index, v}}) //nolint:errchkjson
	return TransactionError(b)
}

// SimulationError is a preflight failure: the node ran the transaction and it
// failed before broadcast. Logs are diagnostic only and never leave the relay.
type SimulationError struct {
	Message string
	Err     TransactionError
	Logs    []string
}

// Error implements the error interface. Logs are deliberately omitted.
func (e *SimulationError) Error() string {
	if e.Err.IsZero() {
		return fmt.Sprintf("ledger: simulation failed: %s", e.Message)
	}
	return fmt.Sprintf("ledger: simulation failed: %s: %s", e.Message, e.Err)
}

// Unwrap lets errors.Is(err, ErrSimulation) match.
func (e *SimulationError) Unwrap() error { return ErrSimulation }

// CustomCode returns the program error code, if any.
func (e *SimulationError) CustomCode() (uint32, bool) { return e.Err.CustomCode() }

// TransactionFailedError is a transaction that landed but failed on-ledger.
type TransactionFailedError struct {
	Signature string
	Err       TransactionError
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("ledger: transaction %s failed: %s", e.Signature, e.Err)
}

// Unwrap lets errors.Is(err, ErrTransactionFailed) match.
func (e *TransactionFailedError) Unwrap() error { return ErrTransactionFailed }

// CustomCode returns the program error code, if any.
func (e *TransactionFailedError) CustomCode() (uint32, bool) { return e.Err.CustomCode() }

// simulationData is the data payload of a -32002 error.
type simulationData struct {
	Err  TransactionError `json:"err"`
	Logs []string         `json:"logs"`
}

// asSimulationError converts a preflight RPC failure into a *SimulationError.
func asSimulationError(e *RPCError) (*SimulationError, bool) {
	if e.Code != CodeSendTransactionPreflightFailure || len(e.Data) == 0 {
		return nil, false
	}
	var data simulationData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, false
	}
	return &SimulationError{Message: e.Message, Err: data.Err, Logs: data.Logs}, true
}
