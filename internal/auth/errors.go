package auth

import (
	"errors"

	"github.com/sipico/subscription-relay/internal/relay"
)

// Authentication errors. Each maps to a relay Kind and a caller-facing message.
var (
	ErrRequestExpired     = errors.New("auth: request timestamp outside the accepted window")
	ErrMissingTimestamp   = errors.New("auth: missing timestamp")
	ErrMalformedSignature = errors.New("auth: malformed signature")
	ErrMalformedPublicKey = errors.New("auth: malformed public key")
	ErrInvalidSignature   = errors.New("auth: signature verification failed")
	ErrTokenSigning       = errors.New("auth: failed to sign token")
	ErrMissingToken       = errors.New("auth: missing bearer token")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
)

type errorInfo struct {
	kind    relay.Kind
	message string
	reason  string // auth_failures_total label
}

var errorTable = map[error]errorInfo{
	ErrRequestExpired:     {relay.KindAuth, "Authentication request expired", "expired_request"},
	ErrMissingTimestamp:   {relay.KindBadRequest, "Missing timestamp", "malformed"},
	ErrMalformedSignature: {relay.KindBadRequest, "Invalid signature format", "malformed"},
	ErrMalformedPublicKey: {relay.KindBadRequest, "Invalid public key", "malformed"},
	ErrInvalidSignature:   {relay.KindAuth, "Invalid signature", "invalid_signature"},
	ErrTokenSigning:       {relay.KindInternal, "Failed to create token", "token_signing"},
	ErrMissingToken:       {relay.KindAuth, "No token provided", "missing_token"},
	ErrInvalidToken:       {relay.KindAuth, "Invalid token", "invalid_token"},
	ErrTokenExpired:       {relay.KindAuth, "Token expired", "expired_token"},
}

func lookup(err error) (errorInfo, bool) {
	for sentinel, info := range errorTable {
		if errors.Is(err, sentinel) {
			return info, true
		}
	}
	return errorInfo{}, false
}

// Kind maps an auth error to its relay Kind. Unknown errors are internal.
func Kind(err error) relay.Kind {
	if info, ok := lookup(err); ok {
		return info.kind
	}
	return relay.KindInternal
}

// Message returns the caller-facing text for an auth error.
func Message(err error) string {
	if info, ok := lookup(err); ok {
		return info.message
	}
	return "Internal server error"
}

// AsRelayError converts an auth error into a *relay.Error for the HTTP layer.
func AsRelayError(err error) *relay.Error {
	return relay.NewError(Kind(err), Message(err), err)
}

func reason(err error) string {
	if info, ok := lookup(err); ok {
		return info.reason
	}
	return "internal"
}
