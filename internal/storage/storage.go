// Package storage provides SQLite persistence for ledger accounts and processed
// transaction signatures.
package storage

import (
	"context"
	"time"
)

// Account is a ledger account as stored on disk.
type Account struct {
	Address  string // base58 address
	Lamports uint64
	Owner    string // base58 address of the owning program
	Data     []byte
}

// SignatureRecord is the outcome of a processed transaction.
type SignatureRecord struct {
	Signature string
	Slot      uint64
	Err       string // JSON-encoded transaction error, empty on success
	CreatedAt time.Time
}

// Accounts is the account surface shared by the store and its transactions.
type Accounts interface {
	GetAccount(ctx context.Context, address string) (*Account, error)
	PutAccount(ctx context.Context, acct *Account) error
	DeleteAccount(ctx context.Context, address string) error
}

// Storage defines the persistence operations used by the ledger.
type Storage interface {
	Accounts

	// WithTx runs fn in a single transaction; any error rolls everything back.
	WithTx(ctx context.Context, fn func(tx *Tx) error) error

	RecordSignature(ctx context.Context, rec *SignatureRecord) error
	GetSignature(ctx context.Context, signature string) (*SignatureRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
