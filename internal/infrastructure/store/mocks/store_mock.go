package mocks

import (
	"context"
	"sync"

	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/infrastructure/store"
)

// MockStore wraps a real store, usually a MemoryStore, records the calls the
// checkout engine makes and injects failures.
type MockStore struct {
	store.Store

	mu sync.Mutex

	// For tracking calls in tests
	WithinTxCalls    int
	InsertOrderCalls []*order.Order

	// WithinTxErrs are returned, in order, by the first WithinTx calls
	// without running the transaction. A nil entry runs it normally.
	WithinTxErrs     []error
	WithinTxCallback func(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error

	// InsertOrderErr is returned by Tx.InsertOrder instead of writing.
	InsertOrderErr error
	// TxOrderByKeyErr makes the in-transaction idempotency lookup miss,
	// simulating a racing checkout that commits after the pre-check.
	TxOrderByKeyErr error
}

func NewMockStore(inner store.Store) *MockStore {
	return &MockStore{
		Store:            inner,
		InsertOrderCalls: make([]*order.Order, 0),
	}
}

func (m *MockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	m.mu.Lock()
	call := m.WithinTxCalls
	m.WithinTxCalls++
	var injected error
	if call < len(m.WithinTxErrs) {
		injected = m.WithinTxErrs[call]
	}
	callback := m.WithinTxCallback
	m.mu.Unlock()

	if injected != nil {
		return injected
	}
	if callback != nil {
		return callback(ctx, fn)
	}

	return m.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &MockTx{Tx: tx, parent: m})
	})
}

// Calls returns the number of transactions started.
func (m *MockStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WithinTxCalls
}

// MockTx forwards to the wrapped transaction apart from the injected
// failures.
type MockTx struct {
	store.Tx
	parent *MockStore
}

func (t *MockTx) InsertOrder(ctx context.Context, o *order.Order) error {
	t.parent.mu.Lock()
	t.parent.InsertOrderCalls = append(t.parent.InsertOrderCalls, o)
	err := t.parent.InsertOrderErr
	t.parent.mu.Unlock()

	if err != nil {
		return err
	}
	return t.Tx.InsertOrder(ctx, o)
}

func (t *MockTx) OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	t.parent.mu.Lock()
	err := t.parent.TxOrderByKeyErr
	t.parent.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return t.Tx.OrderByIdempotencyKey(ctx, key)
}
