// Package mockrelay provides a configurable mock of the relay service for handler tests.
//
// The MockRelay type uses function fields for each method, allowing tests to customize behavior
// as needed while providing sensible defaults for methods that aren't customized.
package mockrelay

import (
	"context"
	"sync"

	"github.com/sipico/subscription-relay/internal/relay"
)

// DefaultConfirmationID is returned by mutating methods without a custom func.
const DefaultConfirmationID = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

// Call records one invocation.
type Call struct {
	Method   string
	Owner    string
	PlanID   uint64
	Duration uint64
	Amount   uint64
}

// MockRelay is a configurable mock implementation of the api.Relay interface.
// If a function field is nil, the method returns a sensible default value.
type MockRelay struct {
	ReadyFunc  func(ctx context.Context) error
	CreateFunc func(ctx context.Context, owner string, planID, duration, amount uint64) (string, error)
	UpdateFunc func(ctx context.Context, owner string, planID, duration, amount uint64) (string, error)
	RenewFunc  func(ctx context.Context, owner string, planID uint64) (string, error)
	CancelFunc func(ctx context.Context, owner string, planID uint64) (string, error)
	CloseFunc  func(ctx context.Context, owner string, planID uint64) (string, error)
	GetFunc    func(ctx context.Context, owner string, planID uint64) (*relay.Subscription, error)

	mu    sync.Mutex
	calls []Call
}

func (m *MockRelay) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

// Calls returns the recorded invocations in order.
func (m *MockRelay) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Ready reports ledger readiness.
func (m *MockRelay) Ready(ctx context.Context) error {
	if m.ReadyFunc != nil {
		return m.ReadyFunc(ctx)
	}
	return nil
}

// Create opens a subscription.
func (m *MockRelay) Create(ctx context.Context, owner string, planID, duration, amount uint64) (string, error) {
	m.record(Call{Method: "Create", Owner: owner, PlanID: planID, Duration: duration, Amount: amount})
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, owner, planID, duration, amount)
	}
	return DefaultConfirmationID, nil
}

// Update changes duration and amount.
func (m *MockRelay) Update(ctx context.Context, owner string, planID, duration, amount uint64) (string, error) {
	m.record(Call{Method: "Update", Owner: owner, PlanID: planID, Duration: duration, Amount: amount})
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, owner, planID, duration, amount)
	}
	return DefaultConfirmationID, nil
}

// Renew pays for the next period.
func (m *MockRelay) Renew(ctx context.Context, owner string, planID uint64) (string, error) {
	m.record(Call{Method: "Renew", Owner: owner, PlanID: planID})
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, owner, planID)
	}
	return DefaultConfirmationID, nil
}

// Cancel deactivates a subscription.
func (m *MockRelay) Cancel(ctx context.Context, owner string, planID uint64) (string, error) {
	m.record(Call{Method: "Cancel", Owner: owner, PlanID: planID})
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, owner, planID)
	}
	return DefaultConfirmationID, nil
}

// Close removes an inactive subscription.
func (m *MockRelay) Close(ctx context.Context, owner string, planID uint64) (string, error) {
	m.record(Call{Method: "Close", Owner: owner, PlanID: planID})
	if m.CloseFunc != nil {
		return m.CloseFunc(ctx, owner, planID)
	}
	return DefaultConfirmationID, nil
}

// Get fetches a subscription. The default is an active record with one payment.
func (m *MockRelay) Get(ctx context.Context, owner string, planID uint64) (*relay.Subscription, error) {
	m.record(Call{Method: "Get", Owner: owner, PlanID: planID})
	if m.GetFunc != nil {
		return m.GetFunc(ctx, owner, planID)
	}
	return &relay.Subscription{
		ID:        "subscription-address",
		Owner:     owner,
		PlanID:    planID,
		StartTime: 1700000000,
		Duration:  2592000,
		Amount:    1000,
		Active:    true,
		History:   []int64{1700000000},
	}, nil
}
