package solana

import (
	"errors"
	"fmt"
)

// AccountMeta describes how an instruction uses an account.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Writable returns a writable, optionally signing, account meta.
func Writable(pk PublicKey, signer bool) AccountMeta {
	return AccountMeta{PublicKey: pk, IsSigner: signer, IsWritable: true}
}

// ReadOnly returns a read-only, optionally signing, account meta.
func ReadOnly(pk PublicKey, signer bool) AccountMeta {
	return AccountMeta{PublicKey: pk, IsSigner: signer}
}

// Instruction is a single program invocation before compilation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts the signer and read-only accounts at the front of the key list.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into Message.AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// ErrTooManyAccounts is returned when a message would reference more than 256 keys.
var ErrTooManyAccounts = errors.New("solana: too many accounts in message")

type keyMeta struct {
	signer   bool
	writable bool
}

// NewMessage compiles instructions into a message paid for by payer. Keys are
// ordered payer first, then writable signers, read-only signers, writable
// non-signers and read-only non-signers, each group in first-appearance order.
func NewMessage(instructions []Instruction, payer PublicKey, blockhash Hash) (*Message, error) {
	order := []PublicKey{payer}
	metas := map[PublicKey]*keyMeta{payer: {signer: true, writable: true}}

	note := func(pk PublicKey, signer, writable bool) {
		m, ok := metas[pk]
		if !ok {
			m = &keyMeta{}
			metas[pk] = m
			order = append(order, pk)
		}
		m.signer = m.signer || signer
		m.writable = m.writable || writable
	}
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			note(acc.PublicKey, acc.IsSigner, acc.IsWritable)
		}
		note(ix.ProgramID, false, false)
	}
	if len(order) > 256 {
		return nil, ErrTooManyAccounts
	}

	var groups [4][]PublicKey
	for _, pk := range order[1:] {
		m := metas[pk]
		switch {
		case m.signer && m.writable:
			groups[0] = append(groups[0], pk)
		case m.signer:
			groups[1] = append(groups[1], pk)
		case m.writable:
			groups[2] = append(groups[2], pk)
		default:
			groups[3] = append(groups[3], pk)
		}
	}

	keys := make([]PublicKey, 0, len(order))
	keys = append(keys, payer)
	for _, g := range groups {
		keys = append(keys, g...)
	}
	index := make(map[PublicKey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(1 + len(groups[0]) + len(groups[1])),
			NumReadonlySignedAccounts:   uint8(len(groups[1])),
			NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
	}
	for _, ix := range instructions {
		ci := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           append([]byte(nil), ix.Data...),
		}
		for i, acc := range ix.Accounts {
			ci.Accounts[i] = index[acc.PublicKey]
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// Signers returns the keys whose signatures the message requires, in slot order.
func (m *Message) Signers() []PublicKey {
	n := int(m.Header.NumRequiredSignatures)
	if n > len(m.AccountKeys) {
		n = len(m.AccountKeys)
	}
	return m.AccountKeys[:n]
}

// FeePayer returns the first account key.
func (m *Message) FeePayer() PublicKey {
	if len(m.AccountKeys) == 0 {
		return PublicKey{}
	}
	return m.AccountKeys[0]
}

// IsSigner reports whether the key at index i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the key at index i may be mutated.
func (m *Message) IsWritable(i int) bool {
	numSigned := int(m.Header.NumRequiredSignatures)
	if i < numSigned {
		return i < numSigned-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsignedAccounts)
}

// ResolveInstruction expands a compiled instruction back into keys and metas.
func (m *Message) ResolveInstruction(ci CompiledInstruction) (Instruction, error) {
	if int(ci.ProgramIDIndex) >= len(m.AccountKeys) {
		return Instruction{}, fmt.Errorf("solana: program index %d out of range", ci.ProgramIDIndex)
	}
	ix := Instruction{
		ProgramID: m.AccountKeys[ci.ProgramIDIndex],
		Accounts:  make([]AccountMeta, len(ci.Accounts)),
		Data:      ci.Data,
	}
	for i, idx := range ci.Accounts {
		if int(idx) >= len(m.AccountKeys) {
			return Instruction{}, fmt.Errorf("solana: account index %d out of range", idx)
		}
		ix.Accounts[i] = AccountMeta{
			PublicKey:  m.AccountKeys[idx],
			IsSigner:   m.IsSigner(int(idx)),
			IsWritable: m.IsWritable(int(idx)),
		}
	}
	return ix, nil
}

// Serialize encodes the message in the legacy wire format.
func (m *Message) Serialize() []byte {
	b := []byte{
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	}
	b = AppendCompactU16(b, len(m.AccountKeys))
	for _, pk := range m.AccountKeys {
		b = append(b, pk[:]...)
	}
	b = append(b, m.RecentBlockhash[:]...)
	b = AppendCompactU16(b, len(m.Instructions))
	for _, ci := range m.Instructions {
		b = append(b, ci.ProgramIDIndex)
		b = AppendCompactU16(b, len(ci.Accounts))
		b = append(b, ci.Accounts...)
		b = AppendCompactU16(b, len(ci.Data))
		b = append(b, ci.Data...)
	}
	return b
}

// ParseMessage decodes a legacy message and returns the bytes consumed.
func ParseMessage(b []byte) (*Message, int, error) {
	r := reader{buf: b}
	header, err := r.bytes(3)
	if err != nil {
		return nil, 0, err
	}
	if header[0]&0x80 != 0 {
		return nil, 0, fmt.Errorf("solana: versioned messages are not supported")
	}
	msg := &Message{Header: MessageHeader{
		NumRequiredSignatures:       header[0],
		NumReadonlySignedAccounts:   header[1],
		NumReadonlyUnsignedAccounts: header[2],
	}}

	nkeys, err := r.compact()
	if err != nil {
		return nil, 0, err
	}
	for i := 0; i < nkeys; i++ {
		raw, err := r.bytes(PublicKeyLength)
		if err != nil {
			return nil, 0, err
		}
		var pk PublicKey
		copy(pk[:], raw)
		msg.AccountKeys = append(msg.AccountKeys, pk)
	}
	h := msg.Header
	if h.NumRequiredSignatures == 0 ||
		int(h.NumRequiredSignatures) > nkeys ||
		h.NumReadonlySignedAccounts >= h.NumRequiredSignatures ||
		int(h.NumReadonlyUnsignedAccounts) > nkeys-int(h.NumRequiredSignatures) {
		return nil, 0, fmt.Errorf("solana: inconsistent message header")
	}

	raw, err := r.bytes(32)
	if err != nil {
		return nil, 0, err
	}
	copy(msg.RecentBlockhash[:], raw)

	nix, err := r.compact()
	if err != nil {
		return nil, 0, err
	}
	for i := 0; i < nix; i++ {
		prog, err := r.bytes(1)
		if err != nil {
			return nil, 0, err
		}
		nacc, err := r.compact()
		if err != nil {
			return nil, 0, err
		}
		accs, err := r.bytes(nacc)
		if err != nil {
			return nil, 0, err
		}
		ndata, err := r.compact()
		if err != nil {
			return nil, 0, err
		}
		data, err := r.bytes(ndata)
		if err != nil {
			return nil, 0, err
		}
		msg.Instructions = append(msg.Instructions, CompiledInstruction{
			ProgramIDIndex: prog[0],
			Accounts:       append([]uint8(nil), accs...),
			Data:           append([]byte(nil), data...),
		})
	}
	return msg, r.off, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) compact() (int, error) {
	n, used, err := DecodeCompactU16(r.buf[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += used
	return n, nil
}
