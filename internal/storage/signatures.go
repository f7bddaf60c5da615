package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RecordSignature stores the outcome of a processed transaction.
// Returns ErrDuplicate if the signature was already recorded, which is how the
// ledger rejects replays.
func (s *SQLiteStorage) RecordSignature(ctx context.Context, rec *SignatureRecord) error {
	return recordSignature(ctx, s.db, rec)
}

// RecordSignature stores a transaction outcome inside the transaction, so the
// signature lands together with the account writes it describes.
func (t *Tx) RecordSignature(ctx context.Context, rec *SignatureRecord) error {
	return recordSignature(ctx, t.tx, rec)
}

func recordSignature(ctx context.Context, q querier, rec *SignatureRecord) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO signatures (signature, slot, err) VALUES (?, ?, ?)",
		rec.Signature, int64(rec.Slot), rec.Err)

	if err != nil {
		// The extended error code for UNIQUE/PRIMARY KEY violations is 2067/1555;
		// both share the base constraint code.
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code()&0xFF) == sqlite3.SQLITE_CONSTRAINT {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to record signature: %w", err)
	}
	return nil
}

// GetSignature retrieves a processed transaction by signature.
// Returns ErrNotFound if the signature is unknown.
func (s *SQLiteStorage) GetSignature(ctx context.Context, signature string) (*SignatureRecord, error) {
	var (
		rec  SignatureRecord
		slot int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT signature, slot, err, created_at FROM signatures WHERE signature = ?",
		signature).
		Scan(&rec.Signature, &slot, &rec.Err, &rec.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get signature: %w", err)
	}
	rec.Slot = uint64(slot)
	return &rec, nil
}
