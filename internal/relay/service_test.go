package relay

import (
	"bytes"
	"context"
	"crypto/rand"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/subscription-relay/internal/ledger"
	"github.com/sipico/subscription-relay/internal/program"
	"github.com/sipico/subscription-relay/internal/solana"
	"github.com/sipico/subscription-relay/internal/testutil/mockledger"
)

var testTreasury = solana.MustPublicKeyFromBase58("3WCHd9Z57YfUFb9kaUkq5nyQjyWMVLVHigvYfvSfsHEG")

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	ledger  *mockledger.Server
	service *Service
	owner   solana.Keypair
	logs    *syncBuffer
}

func (f *fixture) ownerKey() string { return f.owner.PublicKey().String() }

func newFixture(t *testing.T, opts ...mockledger.Option) *fixture {
	t.Helper()
	ml := mockledger.New(opts...)
	t.Cleanup(ml.Close)

	owner, err := solana.NewKeypair(rand.Reader)
	require.NoError(t, err)
	require.NoError(t, ml.Fund(owner.PublicKey(), 1_000_000_000))

	client := ledger.NewClient(ml.URL(),
		ledger.WithPollInterval(time.Millisecond),
		ledger.WithConfirmTimeout(300*time.Millisecond),
	)
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := NewService(client, NewKeyring(owner), Config{ProgramID: ml.ProgramID(), Treasury: testTreasury}, logger)

	return &fixture{ledger: ml, service: svc, owner: owner, logs: logs}
}

func requireRelayError(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, kind, e.Kind, "error: %v", err)
	return e
}

func TestService_Lifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	start := f.ledger.Now()

	sig, err := f.service.Create(ctx, f.ownerKey(), 1, 60, 1000)
	require.NoError(t, err)
	_, err = solana.SignatureFromBase58(sig)
	assert.NoError(t, err, "create must return a base58 signature")

	sub, err := f.service.Get(ctx, f.ownerKey(), 1)
	require.NoError(t, err)
	pda, _, _ := program.SubscriptionAddress(f.ledger.ProgramID(), f.owner.PublicKey(), 1)
	assert.Equal(t, &Subscription{
		ID:        pda.String(),
		Owner:     f.ownerKey(),
		PlanID:    1,
		StartTime: start,
		Duration:  60,
		Amount:    1000,
		Active:    true,
		History:   []int64{start},
	}, sub)

	f.ledger.Advance(60 * time.Second)
	_, err = f.service.Renew(ctx, f.ownerKey(), 1)
	require.NoError(t, err)

	_, err = f.service.Update(ctx, f.ownerKey(), 1, 120, 5)
	require.NoError(t, err)

	sub, err = f.service.Get(ctx, f.ownerKey(), 1)
	require.NoError(t, err)
	assert.Equal(t, start+60, sub.StartTime)
	assert.Equal(t, uint64(120), sub.Duration)
	assert.Equal(t, uint64(5), sub.Amount)
	assert.Equal(t, []int64{start, start + 60}, sub.History)

	_, err = f.service.Cancel(ctx, f.ownerKey(), 1)
	require.NoError(t, err)
	sub, err = f.service.Get(ctx, f.ownerKey(), 1)
	require.NoError(t, err)
	assert.False(t, sub.Active)

	_, err = f.service.Close(ctx, f.ownerKey(), 1)
	require.NoError(t, err)
	_, err = f.service.Get(ctx, f.ownerKey(), 1)
	e := requireRelayError(t, err, KindNotFound)
	assert.Equal(t, "Subscription not found", e.Message)

	assert.Contains(t, f.logs.String(), "subscription transaction confirmed")
}

func TestService_ProgramErrorsStayOutOfMessages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.ownerKey(), 7, 3600, 1)
	require.NoError(t, err)

	_, err = f.service.Renew(ctx, f.ownerKey(), 7)
	e := requireRelayError(t, err, KindLedger)
	assert.Equal(t, CauseSimulation, e.Cause)
	assert.Equal(t, "transaction rejected: Subscription has not yet expired", e.Message)
	assert.NotContains(t, e.Message, "Program")

	// Diagnostics go to the log instead.
	assert.Contains(t, f.logs.String(), "AnchorError occurred")

	_, err = f.service.Close(ctx, f.ownerKey(), 7)
	e = requireRelayError(t, err, KindLedger)
	assert.Equal(t, "transaction rejected: Subscription is still active", e.Message)

	_, err = f.service.Cancel(ctx, f.ownerKey(), 7)
	require.NoError(t, err)
	_, err = f.service.Update(ctx, f.ownerKey(), 7, 1, 1)
	e = requireRelayError(t, err, KindLedger)
	assert.Equal(t, "transaction rejected: Subscription is not active", e.Message)
}

func TestService_CreateTwice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.ownerKey(), 1, 60, 1)
	require.NoError(t, err)
	_, err = f.service.Create(ctx, f.ownerKey(), 1, 60, 1)
	e := requireRelayError(t, err, KindLedger)
	assert.Equal(t, CauseSimulation, e.Cause)
	assert.Equal(t, "transaction rejected: an account with the same address already exists", e.Message)
}

func TestService_FixedParameters(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mockledger.WithFixedParameters())
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.ownerKey(), 1, 60, 1)
	require.NoError(t, err)
	_, err = f.service.Update(ctx, f.ownerKey(), 1, 1, 1)
	e := requireRelayError(t, err, KindLedger)
	assert.Equal(t, "transaction rejected: Subscription parameters are fixed", e.Message)
}

func TestService_InputErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, "not-a-key", 1, 1, 1)
	e := requireRelayError(t, err, KindBadRequest)
	assert.Equal(t, "Invalid public key", e.Message)

	_, err = f.service.Get(ctx, "", 1)
	requireRelayError(t, err, KindBadRequest)

	stranger, err := solana.NewKeypair(rand.Reader)
	require.NoError(t, err)
	_, err = f.service.Renew(ctx, stranger.PublicKey().String(), 1)
	e = requireRelayError(t, err, KindAuth)
	assert.Equal(t, "No custodial key for this public key", e.Message)

	// Reads need no custodial key.
	_, err = f.service.Get(ctx, stranger.PublicKey().String(), 1)
	requireRelayError(t, err, KindNotFound)
}

func TestService_GetUndecodableRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	pda, _, _ := program.SubscriptionAddress(f.ledger.ProgramID(), f.owner.PublicKey(), 3)

	require.NoError(t, f.ledger.SetAccountData(pda, []byte("garbage")))
	_, err := f.service.Get(ctx, f.ownerKey(), 3)
	e := requireRelayError(t, err, KindInternal)
	assert.Equal(t, "unexpected decode failure", e.Message)
	assert.Contains(t, f.logs.String(), "failed to decode subscription account")

	// A well-formed record for a different plan at this address.
	other := &program.Subscription{Owner: f.owner.PublicKey(), PlanID: 4, Active: true, History: program.NewHistory(1)}
	data, err := other.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, f.ledger.SetAccountData(pda, data))
	_, err = f.service.Get(ctx, f.ownerKey(), 3)
	requireRelayError(t, err, KindInternal)
}

func TestService_LedgerFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rpc unavailable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.ledger.SetNextError("getLatestBlockhash", -32000, "node behind", 1)
		_, err := f.service.Create(ctx, f.ownerKey(), 1, 1, 1)
		e := requireRelayError(t, err, KindLedger)
		assert.Equal(t, CauseRPC, e.Cause)
		assert.Equal(t, "ledger unavailable", e.Message)
	})

	t.Run("broadcast rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.ledger.SetNextError("sendTransaction", -32003, "Transaction signature verification failure", 1)
		_, err := f.service.Create(ctx, f.ownerKey(), 1, 1, 1)
		e := requireRelayError(t, err, KindLedger)
		assert.Equal(t, CauseBroadcast, e.Cause)
		assert.Equal(t, "transaction rejected by ledger", e.Message)
	})

	t.Run("confirmation timeout", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.ledger.HoldConfirmations(true)
		_, err := f.service.Create(ctx, f.ownerKey(), 1, 1, 1)
		e := requireRelayError(t, err, KindLedger)
		assert.Equal(t, CauseConfirmation, e.Cause)
		assert.Equal(t, "transaction was not confirmed in time", e.Message)
	})

	t.Run("read failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.ledger.SetNextError("getAccountInfo", -32000, "boom", 1)
		_, err := f.service.Get(ctx, f.ownerKey(), 1)
		e := requireRelayError(t, err, KindLedger)
		assert.Equal(t, CauseRPC, e.Cause)
	})
}

func TestService_SendOutlivesCaller(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.ledger.HoldConfirmations(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := f.service.Create(ctx, f.ownerKey(), 5, 60, 1)
		done <- err
	}()

	// Cancel while confirmation is pending, then let it land.
	time.Sleep(100 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	f.ledger.HoldConfirmations(false)
	require.NoError(t, <-done)

	_, err := f.service.Get(context.Background(), f.ownerKey(), 5)
	assert.NoError(t, err)
}

func TestService_Ready(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.service.Ready(ctx))
	f.ledger.SetUnhealthy(true)
	assert.Error(t, f.service.Ready(ctx))
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, KindNotFound, KindOf(NewError(KindNotFound, "x", nil)))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
	wrapped := NewError(KindAuth, "denied", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.True(t, strings.HasPrefix(wrapped.Error(), "Auth: denied"))
}
