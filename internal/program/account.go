package program

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sipico/subscription-relay/internal/solana"
)

// HistoryCapacity bounds the number of payment timestamps kept per record.
const HistoryCapacity = 10

// SubscriptionSpace is the allocation for a record: tag, fixed fields, and a
// history vector at full capacity.
const SubscriptionSpace = 8 + 32 + 8 + 8 + 8 + 8 + 1 + 4 + HistoryCapacity*8

// SubscriptionAccountName is the account type name hashed into its tag.
const SubscriptionAccountName = "Subscription"

// SubscriptionDiscriminator tags subscription account data.
var SubscriptionDiscriminator = AccountDiscriminator(SubscriptionAccountName)

// ErrMalformedAccount is returned when account bytes cannot be decoded.
var ErrMalformedAccount = errors.New("program: malformed subscription account")

// History is a fixed-capacity FIFO of payment timestamps. The zero value is empty.
type History struct {
	buf   [HistoryCapacity]int64
	start int
	n     int
}

// NewHistory returns a history holding ts, keeping only the newest entries when
// more than HistoryCapacity are given.
func NewHistory(ts ...int64) History {
	var h History
	for _, t := range ts {
		h.Push(t)
	}
	return h
}

// Push appends t, evicting the oldest entry when full.
func (h *History) Push(t int64) {
	if h.n < HistoryCapacity {
		h.buf[(h.start+h.n)%HistoryCapacity] = t
		h.n++
		return
	}
	h.buf[h.start] = t
	h.start = (h.start + 1) % HistoryCapacity
}

// Len returns the number of stored timestamps.
func (h History) Len() int { return h.n }

// Values returns the timestamps oldest first.
func (h History) Values() []int64 {
	out := make([]int64, h.n)
	for i := range out {
		out[i] = h.buf[(h.start+i)%HistoryCapacity]
	}
	return out
}

// Subscription is the on-ledger record for one (owner, plan) pair.
type Subscription struct {
	Owner     solana.PublicKey
	PlanID    uint64
	StartTime int64
	Duration  uint64
	Amount    uint64
	Active    bool
	History   History
}

// MarshalBinary encodes the account data including the type tag. The result is
// not padded to SubscriptionSpace.
func (s *Subscription) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, SubscriptionSpace)
	b = append(b, SubscriptionDiscriminator[:]...)
	b = append(b, s.Owner[:]...)
	b = binary.LittleEndian.AppendUint64(b, s.PlanID)
	b = binary.LittleEndian.AppendUint64(b, uint64(s.StartTime))
	b = binary.LittleEndian.AppendUint64(b, s.Duration)
	b = binary.LittleEndian.AppendUint64(b, s.Amount)
	if s.Active {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	values := s.History.Values()
	b = binary.LittleEndian.AppendUint32(b, uint32(len(values)))
	for _, v := range values {
		b = binary.LittleEndian.AppendUint64(b, uint64(v))
	}
	return b, nil
}

// UnmarshalBinary decodes account data including the type tag.
func (s *Subscription) UnmarshalBinary(data []byte) error {
	if len(data) < len(SubscriptionDiscriminator) {
		return fmt.Errorf("%w: %d bytes", ErrMalformedAccount, len(data))
	}
	if Discriminator(data[:8]) != SubscriptionDiscriminator {
		return fmt.Errorf("%w: unexpected account tag %x", ErrMalformedAccount, data[:8])
	}
	return s.decodeFields(data[8:])
}

// DecodeSubscriptionFields decodes data that has already had its 8-byte tag
// stripped. Bytes past the encoded history are ignored.
func DecodeSubscriptionFields(data []byte) (*Subscription, error) {
	var s Subscription
	if err := s.decodeFields(data); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Subscription) decodeFields(data []byte) error {
	const fixed = 32 + 8 + 8 + 8 + 8 + 1 + 4
	if len(data) < fixed {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedAccount, len(data), fixed)
	}
	copy(s.Owner[:], data[:32])
	off := 32
	next := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off:])
		off += 8
		return v
	}
	s.PlanID = next()
	s.StartTime = int64(next())
	s.Duration = next()
	s.Amount = next()

	switch data[off] {
	case 0:
		s.Active = false
	case 1:
		s.Active = true
	default:
		return fmt.Errorf("%w: invalid bool %d", ErrMalformedAccount, data[off])
	}
	off++

	n := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if n > HistoryCapacity {
		return fmt.Errorf("%w: history length %d exceeds %d", ErrMalformedAccount, n, HistoryCapacity)
	}
	if len(data) < off+int(n)*8 {
		return fmt.Errorf("%w: history truncated", ErrMalformedAccount)
	}
	s.History = History{}
	for i := 0; i < int(n); i++ {
		s.History.Push(int64(next()))
	}
	return nil
}
