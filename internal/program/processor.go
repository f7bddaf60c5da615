package program

import (
	"errors"
	"math"

	"github.com/sipico/subscription-relay/internal/solana"
)

// Accounts is the ledger state the processor reads and writes. Hosts must apply
// all writes from one Process call atomically, or none of them.
type Accounts interface {
	// Subscription returns ErrAccountNotInitialized when addr holds no record.
	Subscription(addr solana.PublicKey) (*Subscription, error)
	PutSubscription(addr solana.PublicKey, s *Subscription) error
	// CloseSubscription deallocates addr and moves its lamports to refundTo.
	CloseSubscription(addr, refundTo solana.PublicKey) error
	// Transfer returns ErrInsufficientFunds when from cannot cover lamports.
	Transfer(from, to solana.PublicKey, lamports uint64) error
}

// Env is the per-instruction execution context supplied by the host.
type Env struct {
	Caller   solana.PublicKey // signer named as the record owner
	Address  solana.PublicKey // record account passed to the instruction
	Treasury solana.PublicKey
	Now      int64
}

// Processor executes subscription instructions.
type Processor struct {
	programID   solana.PublicKey
	fixedParams bool
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithFixedParameters builds the variant that never allows update_subscription.
func WithFixedParameters() ProcessorOption {
	return func(p *Processor) {
		p.fixedParams = true
	}
}

// NewProcessor creates a processor for the program deployed at programID.
func NewProcessor(programID solana.PublicKey, opts ...ProcessorOption) *Processor {
	p := &Processor{programID: programID}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProgramID returns the program address.
func (p *Processor) ProgramID() solana.PublicKey { return p.programID }

// FixedParameters reports whether updates are disabled.
func (p *Processor) FixedParameters() bool { return p.fixedParams }

// Process validates and applies ix. On error the host must discard every write
// made through accts.
func (p *Processor) Process(accts Accounts, ix Instruction, env Env) error {
	switch ix.Op {
	case OpCreate:
		return p.create(accts, ix, env)
	case OpUpdate:
		if p.fixedParams {
			return ErrParametersFixed
		}
		return p.mutate(accts, env, func(s *Subscription) error {
			if !s.Active {
				return ErrInactiveSubscription
			}
			s.Duration = ix.Duration
			s.Amount = ix.Amount
			return nil
		})
	case OpRenew:
		return p.mutate(accts, env, func(s *Subscription) error {
			if !s.Active {
				return ErrInactiveSubscription
			}
			if !Due(s, env.Now) {
				return ErrNotYetExpired
			}
			if err := accts.Transfer(env.Caller, env.Treasury, s.Amount); err != nil {
				return err
			}
			s.History.Push(env.Now)
			s.StartTime = env.Now
			return nil
		})
	case OpCancel:
		return p.mutate(accts, env, func(s *Subscription) error {
			if !s.Active {
				return ErrInactiveSubscription
			}
			s.Active = false
			return nil
		})
	case OpClose:
		s, err := p.load(accts, env)
		if err != nil {
			return err
		}
		if s.Active {
			return ErrActiveSubscription
		}
		return accts.CloseSubscription(env.Address, env.Caller)
	default:
		return ErrInstructionFallbackNotFound
	}
}

func (p *Processor) create(accts Accounts, ix Instruction, env Env) error {
	want, _, err := SubscriptionAddress(p.programID, env.Caller, ix.PlanID)
	if err != nil || want != env.Address {
		return ErrConstraintSeeds
	}
	if _, err := accts.Subscription(env.Address); err == nil {
		return ErrAccountAlreadyInUse
	} else if !errors.Is(err, ErrAccountNotInitialized) {
		return err
	}

	s := &Subscription{
		Owner:     env.Caller,
		PlanID:    ix.PlanID,
		StartTime: env.Now,
		Duration:  ix.Duration,
		Amount:    ix.Amount,
		Active:    true,
		History:   NewHistory(env.Now),
	}
	if err := accts.PutSubscription(env.Address, s); err != nil {
		return err
	}
	return accts.Transfer(env.Caller, env.Treasury, ix.Amount)
}

// load fetches the record and enforces ownership before any handler guard.
func (p *Processor) load(accts Accounts, env Env) (*Subscription, error) {
	s, err := accts.Subscription(env.Address)
	if err != nil {
		return nil, err
	}
	if s.Owner != env.Caller {
		return nil, ErrUnauthorized
	}
	return s, nil
}

func (p *Processor) mutate(accts Accounts, env Env, fn func(*Subscription) error) error {
	s, err := p.load(accts, env)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return accts.PutSubscription(env.Address, s)
}

// Due reports whether s may be renewed at now. A start_time + duration that
// overflows int64 is never due.
func Due(s *Subscription, now int64) bool {
	if s.Duration > math.MaxInt64 {
		return false
	}
	d := int64(s.Duration)
	if s.StartTime > 0 && d > math.MaxInt64-s.StartTime {
		return false
	}
	return now >= s.StartTime+d
}
