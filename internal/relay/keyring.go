package relay

import (
	"fmt"
	"strings"

	"github.com/sipico/subscription-relay/internal/solana"
)

// Keyring holds the custodial keypairs the relay signs with. It is immutable
// after construction and safe for concurrent use.
type Keyring struct {
	keys  map[solana.PublicKey]solana.Keypair
	order []solana.PublicKey
}

// NewKeyring builds a keyring; duplicate keys are collapsed.
func NewKeyring(keypairs ...solana.Keypair) *Keyring {
	k := &Keyring{keys: make(map[solana.PublicKey]solana.Keypair, len(keypairs))}
	for _, kp := range keypairs {
		pk := kp.PublicKey()
		if _, dup := k.keys[pk]; dup {
			continue
		}
		k.keys[pk] = kp
		k.order = append(k.order, pk)
	}
	return k
}

// ParseKeyring decodes base58 keypairs. Blank entries are skipped.
func ParseKeyring(encoded ...string) (*Keyring, error) {
	var kps []solana.Keypair
	for i, s := range encoded {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		kp, err := solana.KeypairFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("keypair %d: %w", i, err)
		}
		kps = append(kps, kp)
	}
	if len(kps) == 0 {
		return nil, fmt.Errorf("%w: no keypairs configured", solana.ErrInvalidKeypair)
	}
	return NewKeyring(kps...), nil
}

// Signer returns the keypair for pk.
func (k *Keyring) Signer(pk solana.PublicKey) (solana.Signer, bool) {
	kp, ok := k.keys[pk]
	return kp, ok
}

// Has reports whether the keyring can sign for pk.
func (k *Keyring) Has(pk solana.PublicKey) bool {
	_, ok := k.keys[pk]
	return ok
}

// PublicKeys lists the keys in insertion order.
func (k *Keyring) PublicKeys() []solana.PublicKey {
	return append([]solana.PublicKey(nil), k.order...)
}

// signersFor returns a signer for every required signer of msg.
func (k *Keyring) signersFor(msg *solana.Message) ([]solana.Signer, error) {
	required := msg.Signers()
	signers := make([]solana.Signer, 0, len(required))
	for _, pk := range required {
		s, ok := k.Signer(pk)
		if !ok {
			return nil, fmt.Errorf("no custodial key for signer %s", pk)
		}
		signers = append(signers, s)
	}
	return signers, nil
}
