// Package program defines the subscription program's on-ledger ABI (instruction
// and account layouts, derived addresses) and the state machine that executes it.
package program

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/sipico/subscription-relay/internal/solana"
)

// Op names a program instruction.
type Op string

// Instruction names as registered by the program.
const (
	OpCreate Op = "create_subscription"
	OpUpdate Op = "update_subscription"
	OpRenew  Op = "renew_subscription"
	OpCancel Op = "cancel_subscription"
	OpClose  Op = "close_subscription"
)

// Ops lists every instruction the program understands.
var Ops = []Op{OpCreate, OpUpdate, OpRenew, OpCancel, OpClose}

// SubscriptionSeed is the namespace tag of subscription addresses.
const SubscriptionSeed = "subscription"

// Discriminator is the 8-byte tag in front of instruction and account data.
type Discriminator [8]byte

func sighash(namespace, name string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	copy(d[:], sum[:8])
	return d
}

// InstructionDiscriminator returns sha256("global:<op>")[:8].
func InstructionDiscriminator(op Op) Discriminator {
	return sighash("global", string(op))
}

// AccountDiscriminator returns sha256("account:<name>")[:8].
func AccountDiscriminator(name string) Discriminator {
	return sighash("account", name)
}

var opByDiscriminator = func() map[Discriminator]Op {
	m := make(map[Discriminator]Op, len(Ops))
	for _, op := range Ops {
		m[InstructionDiscriminator(op)] = op
	}
	return m
}()

// Instruction is a decoded program instruction. Args that an op does not take stay zero.
type Instruction struct {
	Op       Op
	PlanID   uint64
	Duration uint64
	Amount   uint64
}

// EncodeCreate encodes create_subscription(plan_id, duration, amount).
func EncodeCreate(planID, duration, amount uint64) []byte {
	return encode(OpCreate, planID, duration, amount)
}

// EncodeUpdate encodes update_subscription(new_duration, new_amount).
func EncodeUpdate(duration, amount uint64) []byte {
	return encode(OpUpdate, duration, amount)
}

// EncodeRenew encodes renew_subscription().
func EncodeRenew() []byte { return encode(OpRenew) }

// EncodeCancel encodes cancel_subscription().
func EncodeCancel() []byte { return encode(OpCancel) }

// EncodeClose encodes close_subscription().
func EncodeClose() []byte { return encode(OpClose) }

// Encode serializes ix according to its op.
func Encode(ix Instruction) ([]byte, error) {
	switch ix.Op {
	case OpCreate:
		return EncodeCreate(ix.PlanID, ix.Duration, ix.Amount), nil
	case OpUpdate:
		return EncodeUpdate(ix.Duration, ix.Amount), nil
	case OpRenew, OpCancel, OpClose:
		return encode(ix.Op), nil
	default:
		return nil, fmt.Errorf("program: unknown op %q", ix.Op)
	}
}

func encode(op Op, args ...uint64) []byte {
	d := InstructionDiscriminator(op)
	b := make([]byte, 0, len(d)+8*len(args))
	b = append(b, d[:]...)
	for _, a := range args {
		b = binary.LittleEndian.AppendUint64(b, a)
	}
	return b
}

// DecodeInstruction parses instruction data. Unknown discriminators and short
// payloads fail with the program errors the ledger reports for them.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) < len(Discriminator{}) {
		return Instruction{}, ErrInstructionFallbackNotFound
	}
	var d Discriminator
	copy(d[:], data)
	op, ok := opByDiscriminator[d]
	if !ok {
		return Instruction{}, ErrInstructionFallbackNotFound
	}

	args := data[len(d):]
	want := map[Op]int{OpCreate: 3, OpUpdate: 2}[op]
	if len(args) < 8*want {
		return Instruction{}, ErrInstructionDidNotDeserialize
	}
	u64 := func(i int) uint64 { return binary.LittleEndian.Uint64(args[8*i:]) }

	ix := Instruction{Op: op}
	switch op {
	case OpCreate:
		ix.PlanID, ix.Duration, ix.Amount = u64(0), u64(1), u64(2)
	case OpUpdate:
		ix.Duration, ix.Amount = u64(0), u64(1)
	}
	return ix, nil
}

// SubscriptionSeeds returns the seeds of the (owner, plan) record address.
func SubscriptionSeeds(owner solana.PublicKey, planID uint64) [][]byte {
	plan := make([]byte, 8)
	binary.LittleEndian.PutUint64(plan, planID)
	return [][]byte{[]byte(SubscriptionSeed), owner.Bytes(), plan}
}

// SubscriptionAddress derives the record address and bump for (owner, plan).
func SubscriptionAddress(programID, owner solana.PublicKey, planID uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(SubscriptionSeeds(owner, planID), programID)
}

// AccountMetas lists the account metas an op expects, in program order.
func AccountMetas(op Op, pda, owner, treasury solana.PublicKey) []solana.AccountMeta {
	switch op {
	case OpCreate, OpRenew:
		return []solana.AccountMeta{
			solana.Writable(pda, false),
			solana.Writable(owner, true),
			solana.Writable(treasury, false),
			solana.ReadOnly(solana.SystemProgramID, false),
		}
	case OpClose:
		return []solana.AccountMeta{
			solana.Writable(pda, false),
			solana.Writable(owner, true),
		}
	default:
		return []solana.AccountMeta{
			solana.Writable(pda, false),
			solana.ReadOnly(owner, true),
		}
	}
}

// NewInstruction builds a ready-to-compile ledger instruction.
func NewInstruction(programID solana.PublicKey, ix Instruction, pda, owner, treasury solana.PublicKey) (solana.Instruction, error) {
	data, err := Encode(ix)
	if err != nil {
		return solana.Instruction{}, err
	}
	return solana.Instruction{
		ProgramID: programID,
		Accounts:  AccountMetas(ix.Op, pda, owner, treasury),
		Data:      data,
	}, nil
}
