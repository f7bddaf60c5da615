package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// ErrInvalidKeypair is returned when keypair material cannot be parsed.
var ErrInvalidKeypair = errors.New("solana: invalid keypair")

// Keypair is an ed25519 signing key in the 64-byte layout wallets export
// (32-byte seed followed by the 32-byte public key).
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a keypair from the given entropy source.
func NewKeypair(rand io.Reader) (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return Keypair{}, fmt.Errorf("solana: generate keypair: %w", err)
	}
	return Keypair{priv: priv}, nil
}

// KeypairFromBytes validates a 64-byte secret key. The embedded public half must
// match the one derived from the seed.
func KeypairFromBytes(b []byte) (Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeypair, len(b), ed25519.PrivateKeySize)
	}
	priv := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !bytes.Equal(priv[ed25519.SeedSize:], b[ed25519.SeedSize:]) {
		return Keypair{}, fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypair)
	}
	return Keypair{priv: priv}, nil
}

// KeypairFromBase58 decodes a base58 64-byte secret key, as exported by Phantom.
func KeypairFromBase58(s string) (Keypair, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	return KeypairFromBytes(b)
}

// PublicKey returns the signer's address.
func (k Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv[ed25519.SeedSize:])
	return pk
}

// Sign signs message.
func (k Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.priv, message))
	return sig
}

// String returns the base58 64-byte secret key. Handle with care.
func (k Keypair) String() string {
	return base58.Encode(k.priv)
}

// Verify checks sig over message against pk.
func Verify(pk PublicKey, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), message, sig[:])
}
