package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	ddlStatements := []string{
		// accounts: one row per funded or allocated ledger address
		`CREATE TABLE IF NOT EXISTS accounts (
			address TEXT PRIMARY KEY,
			lamports INTEGER NOT NULL DEFAULT 0 CHECK (lamports >= 0),
			owner TEXT NOT NULL,
			data BLOB NOT NULL DEFAULT x'',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner)`,

		// signatures: processed transactions, keyed by their first signature
		`CREATE TABLE IF NOT EXISTS signatures (
			signature TEXT PRIMARY KEY,
			slot INTEGER NOT NULL,
			err TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
