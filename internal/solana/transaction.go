package solana

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSigner is returned when no key is available for a required signer slot.
	ErrMissingSigner = errors.New("solana: missing signer")
	// ErrSignatureVerification is returned when a signature does not verify.
	ErrSignatureVerification = errors.New("solana: signature verification failed")
)

// Signer produces signatures for a single address.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) Signature
}

// Transaction is a message plus one signature per required signer.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction wraps msg with empty signature slots.
func NewTransaction(msg *Message) *Transaction {
	return &Transaction{
		Signatures: make([]Signature, msg.Header.NumRequiredSignatures),
		Message:    *msg,
	}
}

// PartialSign fills the slots belonging to the given signers. Signers that are
// not required by the message are ignored.
func (tx *Transaction) PartialSign(signers ...Signer) {
	payload := tx.Message.Serialize()
	for i, pk := range tx.Message.Signers() {
		for _, s := range signers {
			if s.PublicKey() == pk {
				tx.Signatures[i] = s.Sign(payload)
				break
			}
		}
	}
}

// Sign fills every slot and fails if any required signer is absent.
func (tx *Transaction) Sign(signers ...Signer) error {
	tx.PartialSign(signers...)
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return fmt.Errorf("%w: %s", ErrMissingSigner, tx.Message.AccountKeys[i])
		}
	}
	return nil
}

// ID returns the first signature, which identifies the transaction on the ledger.
func (tx *Transaction) ID() Signature {
	if len(tx.Signatures) == 0 {
		return Signature{}
	}
	return tx.Signatures[0]
}

// VerifySignatures checks every required signature against the message bytes.
func (tx *Transaction) VerifySignatures() error {
	signers := tx.Message.Signers()
	if len(tx.Signatures) != len(signers) {
		return fmt.Errorf("%w: have %d signatures for %d signers", ErrSignatureVerification, len(tx.Signatures), len(signers))
	}
	payload := tx.Message.Serialize()
	for i, pk := range signers {
		if !Verify(pk, payload, tx.Signatures[i]) {
			return fmt.Errorf("%w: %s", ErrSignatureVerification, pk)
		}
	}
	return nil
}

// Serialize encodes the transaction in wire format.
func (tx *Transaction) Serialize() []byte {
	b := AppendCompactU16(nil, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		b = append(b, sig[:]...)
	}
	return append(b, tx.Message.Serialize()...)
}

// ParseTransaction decodes wire bytes. Trailing bytes are rejected.
func ParseTransaction(b []byte) (*Transaction, error) {
	r := reader{buf: b}
	n, err := r.compact()
	if err != nil {
		return nil, err
	}
	tx := &Transaction{Signatures: make([]Signature, n)}
	for i := 0; i < n; i++ {
		raw, err := r.bytes(SignatureLength)
		if err != nil {
			return nil, err
		}
		copy(tx.Signatures[i][:], raw)
	}
	msg, used, err := ParseMessage(b[r.off:])
	if err != nil {
		return nil, err
	}
	if r.off+used != len(b) {
		return nil, fmt.Errorf("solana: %d trailing bytes after transaction", len(b)-r.off-used)
	}
	tx.Message = *msg
	return tx, nil
}
