// Package auth implements signature-based login and bearer session tokens.
//
// A client signs ChallengeMessage(ts) with its ed25519 key and posts the
// signature, its public key and ts. The relay checks freshness, decodes the
// inputs, verifies the signature, and returns an HS256 token whose subject is
// the public key.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/sipico/subscription-relay/internal/metrics"
)

// ChallengeWindow is how far a request timestamp may drift from server time.
const ChallengeWindow int64 = 86400

// ChallengeMessage is the exact text a client signs for timestamp ts.
func ChallengeMessage(ts int64) string {
	return fmt.Sprintf("Sign in to Subscription Manager: %d", ts)
}

// Request is a login attempt.
type Request struct {
	PublicKey string `json:"public_key" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	Timestamp *int64 `json:"timestamp" validate:"required"`
}

// Response is returned on successful login.
type Response struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	PublicKey string `json:"public_key"`
}

// Challenge is the helper payload served to clients that lack a clock.
type Challenge struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Authenticator verifies signed challenges and issues session tokens.
type Authenticator struct {
	tokens *TokenIssuer
	now    func() time.Time
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithClock overrides the clock used for the freshness check.
func WithClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.now = now
	}
}

// NewAuthenticator creates an Authenticator issuing tokens with tokens.
func NewAuthenticator(tokens *TokenIssuer, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Challenge returns the message to sign for the current server time.
func (a *Authenticator) Challenge() Challenge {
	ts := a.now().Unix()
	return Challenge{Message: ChallengeMessage(ts), Timestamp: ts}
}

// Authenticate runs the checks in order: freshness, decoding, then signature.
// A stale request fails as expired even when its signature is valid.
func (a *Authenticator) Authenticate(req Request) (*Response, error) {
	resp, err := a.authenticate(req)
	if err != nil {
		metrics.RecordAuthFailure(reason(err))
		return nil, err
	}
	return resp, nil
}

func (a *Authenticator) authenticate(req Request) (*Response, error) {
	if req.Timestamp == nil {
		return nil, ErrMissingTimestamp
	}
	ts := *req.Timestamp
	now := a.now().Unix()
	// Compare against shifted bounds; now-ts can overflow for extreme ts.
	if ts < now-ChallengeWindow || ts > now+ChallengeWindow {
		return nil, ErrRequestExpired
	}

	sig, err := base58.Decode(req.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, ErrMalformedSignature
	}
	pub, err := base58.Decode(req.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, ErrMalformedPublicKey
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(ChallengeMessage(ts)), sig) {
		return nil, ErrInvalidSignature
	}

	token, err := a.tokens.Issue(req.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Response{
		Token:     token,
		ExpiresIn: int64(a.tokens.TTL() / time.Second),
		PublicKey: req.PublicKey,
	}, nil
}
