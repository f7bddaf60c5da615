package mockledger

import (
	"crypto/sha256"
	"crypto/sha512"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sipico/subscription-relay/internal/ledger"
	"github.com/sipico/subscription-relay/internal/solana"
)

const (
	// blockhashValidSlots is how many slots a blockhash stays usable.
	blockhashValidSlots = 150

	// finalitySlots is the slot distance after which a status is finalized.
	finalitySlots = 32

	// FeePerSignature is the flat fee charged to the fee payer.
	FeePerSignature uint64 = 5000
)

// RentExemptMinimum returns the lamports an account of space bytes must hold.
func RentExemptMinimum(space uint64) uint64 {
	const (
		accountStorageOverhead = 128
		lamportsPerByteYear    = 3480
		exemptionYears         = 2
	)
	return (accountStorageOverhead + space) * lamportsPerByteYear * exemptionYears
}

// injectedError is a scheduled JSON-RPC failure.
type injectedError struct {
	method string // empty matches any method
	err    ledger.RPCError
}

// state holds the mutable node state not kept in the store.
type state struct {
	mu sync.Mutex

	clock func() time.Time
	skew  time.Duration

	slot        uint64
	blockhashes map[solana.Hash]uint64 // hash -> last valid slot

	failures          []injectedError
	latency           time.Duration
	latencyCount      int
	holdConfirmations bool
	unhealthy         bool
}

func newState(clock func() time.Time) *state {
	return &state{
		clock:       clock,
		slot:        1,
		blockhashes: make(map[solana.Hash]uint64),
	}
}

func (st *state) now() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.clock().Add(st.skew).Unix()
}

// newBlockhash advances the slot and issues a fresh blockhash.
func (st *state) newBlockhash() (solana.Hash, uint64, uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.slot++
	id := uuid.New()
	h := solana.Hash(sha256.Sum256(id[:]))
	lastValid := st.slot + blockhashValidSlots
	st.blockhashes[h] = lastValid
	return h, st.slot, lastValid
}

func (st *state) blockhashValid(h solana.Hash) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	lastValid, ok := st.blockhashes[h]
	return ok && st.slot <= lastValid
}

// nextSlot advances the slot for a processed transaction.
func (st *state) nextSlot() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.slot++
	return st.slot
}

func (st *state) currentSlot() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.slot
}

// takeFailure pops the next scheduled failure matching method.
func (st *state) takeFailure(method string) (*ledger.RPCError, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, f := range st.failures {
		if f.method == "" || f.method == method {
			st.failures = append(st.failures[:i], st.failures[i+1:]...)
			e := f.err
			return &e, true
		}
	}
	return nil, false
}

// takeLatency returns the delay to apply to the current request.
func (st *state) takeLatency() time.Duration {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.latencyCount == 0 {
		return 0
	}
	st.latencyCount--
	return st.latency
}

// randomSignature fabricates a unique signature for airdrops.
func randomSignature() solana.Signature {
	id := uuid.New()
	return solana.Signature(sha512.Sum512(id[:]))
}
