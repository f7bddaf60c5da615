package program

import (
	"errors"
	"fmt"
)

// Error is a program failure as reported by the ledger: a numeric custom error
// code plus a stable name and message.
type Error struct {
	Code    uint32
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("program: %s (%d)", e.Name, e.Code)
	}
	return fmt.Sprintf("program: %s (%d): %s", e.Name, e.Code, e.Message)
}

// Is matches errors by code and name so that decoded copies compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Name == e.Name
}

// Subscription program errors.
var (
	ErrInactiveSubscription = &Error{Code: 6000, Name: "InactiveSubscription", Message: "Subscription is not active"}
	ErrActiveSubscription   = &Error{Code: 6001, Name: "ActiveSubscription", Message: "Subscription is still active"}
	ErrUnauthorized         = &Error{Code: 6002, Name: "Unauthorized", Message: "Unauthorized access to subscription"}
	ErrNotYetExpired        = &Error{Code: 6003, Name: "NotYetExpired", Message: "Subscription has not yet expired"}
	ErrParametersFixed      = &Error{Code: 6004, Name: "ParametersFixed", Message: "Subscription parameters are fixed"}
)

// Framework errors raised before the handler runs.
var (
	ErrInstructionFallbackNotFound  = &Error{Code: 101, Name: "InstructionFallbackNotFound", Message: "Fallback functions are not supported"}
	ErrInstructionDidNotDeserialize = &Error{Code: 102, Name: "InstructionDidNotDeserialize", Message: "The program could not deserialize the given instruction"}
	ErrConstraintMut                = &Error{Code: 2000, Name: "ConstraintMut", Message: "A mut constraint was violated"}
	ErrConstraintSeeds              = &Error{Code: 2006, Name: "ConstraintSeeds", Message: "A seeds constraint was violated"}
	ErrAccountDidNotDeserialize     = &Error{Code: 3003, Name: "AccountDidNotDeserialize", Message: "Failed to deserialize the account"}
	ErrAccountNotSigner             = &Error{Code: 3010, Name: "AccountNotSigner", Message: "The given account did not sign"}
	ErrAccountNotInitialized        = &Error{Code: 3012, Name: "AccountNotInitialized", Message: "The program expected this account to be already initialized"}
)

// System program errors surfaced through the subscription instructions.
var (
	ErrAccountAlreadyInUse = &Error{Code: 0, Name: "AccountAlreadyInUse", Message: "an account with the same address already exists"}
	ErrInsufficientFunds   = &Error{Code: 1, Name: "InsufficientFunds", Message: "insufficient lamports for transfer"}
)

var knownErrors = []*Error{
	ErrInactiveSubscription, ErrActiveSubscription, ErrUnauthorized, ErrNotYetExpired, ErrParametersFixed,
	ErrInstructionFallbackNotFound, ErrInstructionDidNotDeserialize, ErrConstraintMut, ErrConstraintSeeds,
	ErrAccountDidNotDeserialize, ErrAccountNotSigner, ErrAccountNotInitialized,
}

// LookupError returns the subscription program error for a custom error code.
// System program codes are not included since they overlap with other programs.
func LookupError(code uint32) (*Error, bool) {
	for _, e := range knownErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// LookupSystemError returns the system program error for code, as reported
// when the program's create or transfer CPI fails.
func LookupSystemError(code uint32) (*Error, bool) {
	switch code {
	case ErrAccountAlreadyInUse.Code:
		return ErrAccountAlreadyInUse, true
	case ErrInsufficientFunds.Code:
		return ErrInsufficientFunds, true
	}
	return nil, false
}
