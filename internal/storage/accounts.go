package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// GetAccount retrieves an account by address.
// Returns ErrNotFound if the address holds no account.
func (s *SQLiteStorage) GetAccount(ctx context.Context, address string) (*Account, error) {
	return getAccount(ctx, s.db, address)
}

// PutAccount inserts or replaces an account.
func (s *SQLiteStorage) PutAccount(ctx context.Context, acct *Account) error {
	return putAccount(ctx, s.db, acct)
}

// DeleteAccount removes an account.
// Returns ErrNotFound if the address holds no account.
func (s *SQLiteStorage) DeleteAccount(ctx context.Context, address string) error {
	return deleteAccount(ctx, s.db, address)
}

// GetAccount reads an account inside the transaction.
func (t *Tx) GetAccount(ctx context.Context, address string) (*Account, error) {
	return getAccount(ctx, t.tx, address)
}

// PutAccount writes an account inside the transaction.
func (t *Tx) PutAccount(ctx context.Context, acct *Account) error {
	return putAccount(ctx, t.tx, acct)
}

// DeleteAccount removes an account inside the transaction.
func (t *Tx) DeleteAccount(ctx context.Context, address string) error {
	return deleteAccount(ctx, t.tx, address)
}

func getAccount(ctx context.Context, q querier, address string) (*Account, error) {
	var (
		a        Account
		lamports int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT address, lamports, owner, data FROM accounts WHERE address = ?",
		address).
		Scan(&a.Address, &lamports, &a.Owner, &a.Data)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Lamports = uint64(lamports)
	return &a, nil
}

func putAccount(ctx context.Context, q querier, acct *Account) error {
	if acct.Lamports > math.MaxInt64 {
		return ErrLamportsOverflow
	}
	data := acct.Data
	if data == nil {
		data = []byte{}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO accounts (address, lamports, owner, data, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(address) DO UPDATE SET
			lamports = excluded.lamports,
			owner = excluded.owner,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		acct.Address, int64(acct.Lamports), acct.Owner, data)
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

func deleteAccount(ctx context.Context, q querier, address string) error {
	result, err := q.ExecContext(ctx, "DELETE FROM accounts WHERE address = ?", address)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
