package relay

import (
	"errors"
	"fmt"
)

// Kind classifies a relay failure for the HTTP layer.
type Kind string

const (
	KindAuth       Kind = "Auth"
	KindBadRequest Kind = "BadRequest"
	KindNotFound   Kind = "NotFound"
	KindLedger     Kind = "LedgerError"
	KindInternal   Kind = "InternalServerError"
)

// Cause is the sub-case of a KindLedger failure.
type Cause string

const (
	CauseNone         Cause = ""
	CauseRPC          Cause = "rpc"
	CauseSimulation   Cause = "simulation"
	CauseBroadcast    Cause = "broadcast"
	CauseConfirmation Cause = "confirmation"
)

// Error is the error type returned by Service. Message is safe to show to
// callers; Err carries the diagnostic chain and is only logged.
type Error struct {
	Kind    Kind
	Cause   Cause
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
