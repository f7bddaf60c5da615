// Package solana implements the small slice of the Solana wire protocol the relay
// needs: base58 keys and signatures, program derived addresses, and legacy
// transaction messages.
package solana

import (
	"bytes"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	// PublicKeyLength is the size of an ed25519 public key.
	PublicKeyLength = 32
	// SignatureLength is the size of an ed25519 signature.
	SignatureLength = 64
)

var (
	// ErrInvalidPublicKey is returned when a key is not valid base58 or not 32 bytes.
	ErrInvalidPublicKey = errors.New("solana: invalid public key")
	// ErrInvalidSignature is returned when a signature is not valid base58 or not 64 bytes.
	ErrInvalidSignature = errors.New("solana: invalid signature")
)

// PublicKey is a 32-byte account address.
type PublicKey [PublicKeyLength]byte

// SystemProgramID is the address of the native system program.
var SystemProgramID = PublicKey{}

// PublicKeyFromBase58 decodes a base58 address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKeyFromBase58 is like PublicKeyFromBase58 but panics on error.
// Intended for package-level constants.
func MustPublicKeyFromBase58(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the key bytes.
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeyLength)
	copy(b, pk[:])
	return b
}

// IsZero reports whether the key is all zeros.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Equals reports whether two keys are identical.
func (pk PublicKey) Equals(other PublicKey) bool {
	return bytes.Equal(pk[:], other[:])
}

// IsOnCurve reports whether the bytes decode to a point on the ed25519 curve.
// Program derived addresses must not be on the curve.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := PublicKeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// Signature is a 64-byte ed25519 signature. The first signature of a
// transaction doubles as its identifier.
type Signature [SignatureLength]byte

// SignatureFromBase58 decodes a base58 signature.
func SignatureFromBase58(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != SignatureLength {
		return sig, fmt.Errorf("%w: got %d bytes", ErrInvalidSignature, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// String returns the base58 form.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// IsZero reports whether the signature slot is still empty.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// Hash is a 32-byte blockhash.
type Hash [32]byte

// HashFromBase58 decodes a base58 blockhash.
func HashFromBase58(s string) (Hash, error) {
	var h Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("solana: invalid hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("solana: invalid hash: got %d bytes", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// String returns the base58 form.
func (h Hash) String() string {
	return base58.Encode(h[:])
}
