package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_FileDatabase(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.PutAccount(ctx, &Account{Address: "A", Lamports: 7, Owner: "sys"}))
	require.NoError(t, s.Close())

	// Reopening applies the schema again and keeps existing rows.
	s, err = New(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.GetAccount(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Lamports)
}

func TestAccounts_CRUD(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	acct := &Account{Address: "PDA", Lamports: 1000, Owner: "program", Data: []byte{1, 2, 3}}
	require.NoError(t, s.PutAccount(ctx, acct))

	got, err := s.GetAccount(ctx, "PDA")
	require.NoError(t, err)
	assert.Equal(t, acct, got)

	acct.Lamports = 2000
	acct.Data = []byte{9}
	require.NoError(t, s.PutAccount(ctx, acct))
	got, err = s.GetAccount(ctx, "PDA")
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), got.Lamports)
	assert.Equal(t, []byte{9}, got.Data)

	require.NoError(t, s.DeleteAccount(ctx, "PDA"))
	assert.ErrorIs(t, s.DeleteAccount(ctx, "PDA"), ErrNotFound)
	_, err = s.GetAccount(ctx, "PDA")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutAccount_NilDataAndOverflow(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.PutAccount(ctx, &Account{Address: "W", Lamports: 5, Owner: "sys"}))
	got, err := s.GetAccount(ctx, "W")
	require.NoError(t, err)
	assert.Empty(t, got.Data)

	err = s.PutAccount(ctx, &Account{Address: "X", Lamports: math.MaxInt64 + 1, Owner: "sys"})
	assert.ErrorIs(t, err, ErrLamportsOverflow)
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.PutAccount(ctx, &Account{Address: "payer", Lamports: 100, Owner: "sys"}))

	err := s.WithTx(ctx, func(tx *Tx) error {
		payer, err := tx.GetAccount(ctx, "payer")
		if err != nil {
			return err
		}
		payer.Lamports -= 40
		if err := tx.PutAccount(ctx, payer); err != nil {
			return err
		}
		return tx.PutAccount(ctx, &Account{Address: "payee", Lamports: 40, Owner: "sys"})
	})
	require.NoError(t, err)

	payee, err := s.GetAccount(ctx, "payee")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), payee.Lamports)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.DeleteAccount(ctx, "payee"); err != nil {
			return err
		}
		if err := tx.PutAccount(ctx, &Account{Address: "payer", Lamports: 0, Owner: "sys"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	payer, err := s.GetAccount(ctx, "payer")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), payer.Lamports, "rolled back write must not persist")
	_, err = s.GetAccount(ctx, "payee")
	assert.NoError(t, err, "rolled back delete must not persist")
}

func TestSignatures(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetSignature(ctx, "sig")
	assert.ErrorIs(t, err, ErrNotFound)

	before := time.Now().Add(-time.Minute)
	require.NoError(t, s.RecordSignature(ctx, &SignatureRecord{Signature: "sig", Slot: 12}))
	assert.ErrorIs(t, s.RecordSignature(ctx, &SignatureRecord{Signature: "sig", Slot: 13}), ErrDuplicate)

	rec, err := s.GetSignature(ctx, "sig")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), rec.Slot)
	assert.Empty(t, rec.Err)
	assert.True(t, rec.CreatedAt.After(before), "created_at %v", rec.CreatedAt)

	failed := `{"InstructionError":[0,{"Custom":6003}]}`
	require.NoError(t, s.RecordSignature(ctx, &SignatureRecord{Signature: "sig2", Slot: 14, Err: failed}))
	rec, err = s.GetSignature(ctx, "sig2")
	require.NoError(t, err)
	assert.Equal(t, failed, rec.Err)
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	require.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
