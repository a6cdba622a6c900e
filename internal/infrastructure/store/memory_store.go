package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/loyalty"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/domain/stock"
)

// MemoryStore keeps everything in process. Transactions are serialized by a
// single-slot lock and buffer their writes, which are applied under the
// state mutex on commit so readers never see half a checkout.
type MemoryStore struct {
	lock        chan struct{}
	lockTimeout time.Duration

	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	products       map[string]catalog.Product
	batches        map[int64]stock.Batch
	productBatches map[string][]int64
	orders         map[string]order.Order
	orderByNumber  map[string]string
	orderByKey     map[string]string
	accounts       map[string]loyalty.Account
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &MemoryStore{
		lock:        make(chan struct{}, 1),
		lockTimeout: lockTimeout,
		state: memoryState{
			products:       make(map[string]catalog.Product),
			batches:        make(map[int64]stock.Batch),
			productBatches: make(map[string][]int64),
			orders:         make(map[string]order.Order),
			orderByNumber:  make(map[string]string),
			orderByKey:     make(map[string]string),
			accounts:       make(map[string]loyalty.Account),
		},
	}
}

func (s *MemoryStore) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: lock wait exceeded %s", ErrConflict, s.lockTimeout)
	}
}

func (s *MemoryStore) release() {
	<-s.lock
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	tx := &memoryTx{
		store:    s,
		batches:  make(map[int64]stock.Batch),
		accounts: make(map[string]loyalty.Account),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	tx.apply(&s.state)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Product(ctx context.Context, id string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.state.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return &p, nil
}

func (s *MemoryStore) SaveProduct(ctx context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.products[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Batches(ctx context.Context, productID string) ([]stock.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.state.productBatches[productID]
	out := make([]stock.Batch, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.state.batches[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) OrderByID(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return &o, nil
}

func (s *MemoryStore) OrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	s.mu.RLock()
	id, ok := s.state.orderByNumber[number]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: order number %s", ErrNotFound, number)
	}
	return s.OrderByID(ctx, id)
}

func (s *MemoryStore) OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	s.mu.RLock()
	id, ok := s.state.orderByKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: idempotency key %s", ErrNotFound, key)
	}
	return s.OrderByID(ctx, id)
}

func (s *MemoryStore) LoyaltyAccount(ctx context.Context, customerID string) (*loyalty.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.state.accounts[customerID]
	if !ok {
		return nil, fmt.Errorf("%w: loyalty account %s", ErrNotFound, customerID)
	}
	return &acc, nil
}

func (s *MemoryStore) SalesBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	count := 0
	for _, o := range s.state.orders {
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		total = total.Add(o.Total)
		count++
	}
	return total, count, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// memoryTx reads committed state directly, which is safe because the store
// lock excludes other writers, and overlays its own pending writes.
type memoryTx struct {
	store    *MemoryStore
	batches  map[int64]stock.Batch
	created  []int64
	orders   []order.Order
	accounts map[string]loyalty.Account
}

func (t *memoryTx) Products(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	out := make(map[string]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.store.state.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memoryTx) batch(id int64) (stock.Batch, bool) {
	if b, ok := t.batches[id]; ok {
		return b, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	b, ok := t.store.state.batches[id]
	return b, ok
}

func (t *memoryTx) batchIDs(productID string) []int64 {
	t.store.mu.RLock()
	ids := append([]int64(nil), t.store.state.productBatches[productID]...)
	t.store.mu.RUnlock()

	for _, id := range t.created {
		if t.batches[id].ProductID == productID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *memoryTx) LockBatches(ctx context.Context, productIDs []string) (map[string][]stock.Batch, error) {
	out := make(map[string][]stock.Batch, len(productIDs))
	for _, pid := range productIDs {
		ids := t.batchIDs(pid)
		batches := make([]stock.Batch, 0, len(ids))
		for _, id := range ids {
			if b, ok := t.batch(id); ok {
				batches = append(batches, b)
			}
		}
		sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
		out[pid] = batches
	}
	return out, nil
}

func (t *memoryTx) DecrementBatch(ctx context.Context, batchID int64, quantity int) error {
	b, ok := t.batch(batchID)
	if !ok {
		return fmt.Errorf("%w: batch %d", ErrNotFound, batchID)
	}
	if quantity <= 0 {
		return stock.ErrInvalidQuantity
	}
	if b.Quantity < quantity {
		return fmt.Errorf("%w: batch %d has %d, decrement %d", ErrConflict, batchID, b.Quantity, quantity)
	}
	b.Quantity -= quantity
	t.batches[batchID] = b
	return nil
}

func (t *memoryTx) ReceiveBatch(ctx context.Context, b stock.Batch) (stock.Batch, error) {
	for _, id := range t.batchIDs(b.ProductID) {
		existing, _ := t.batch(id)
		if existing.BatchNo != b.BatchNo {
			continue
		}
		existing.Quantity += b.Quantity
		if existing.ExpiresOn == nil {
			existing.ExpiresOn = b.ExpiresOn
		}
		t.batches[id] = existing
		return existing, nil
	}

	if _, ok := t.batch(b.ID); ok {
		return stock.Batch{}, fmt.Errorf("%w: batch id %d already used", ErrConflict, b.ID)
	}
	t.batches[b.ID] = b
	t.created = append(t.created, b.ID)
	return b, nil
}

func (t *memoryTx) OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	for i := range t.orders {
		if t.orders[i].IdempotencyKey == key {
			o := t.orders[i]
			return &o, nil
		}
	}
	return t.store.OrderByIdempotencyKey(ctx, key)
}

func (t *memoryTx) InsertOrder(ctx context.Context, o *order.Order) error {
	t.store.mu.RLock()
	_, keyTaken := t.store.state.orderByKey[o.IdempotencyKey]
	_, numberTaken := t.store.state.orderByNumber[o.Number]
	_, idTaken := t.store.state.orders[o.ID]
	t.store.mu.RUnlock()

	for _, pending := range t.orders {
		keyTaken = keyTaken || (o.IdempotencyKey != "" && pending.IdempotencyKey == o.IdempotencyKey)
		numberTaken = numberTaken || pending.Number == o.Number
		idTaken = idTaken || pending.ID == o.ID
	}

	switch {
	case o.IdempotencyKey != "" && keyTaken:
		return fmt.Errorf("%w: %s", ErrDuplicate, o.IdempotencyKey)
	case numberTaken || idTaken:
		return fmt.Errorf("%w: order %s / %s already exists", ErrConflict, o.ID, o.Number)
	}

	t.orders = append(t.orders, *o)
	return nil
}

func (t *memoryTx) CreditLoyalty(ctx context.Context, customerID string, points int64) error {
	acc, ok := t.accounts[customerID]
	if !ok {
		t.store.mu.RLock()
		acc, ok = t.store.state.accounts[customerID]
		t.store.mu.RUnlock()
		if !ok {
			acc = loyalty.Account{CustomerID: customerID}
		}
	}

	credited, err := acc.Credit(points, time.Now().UTC())
	if err != nil {
		return err
	}
	t.accounts[customerID] = credited
	return nil
}

func (t *memoryTx) apply(st *memoryState) {
	for id, b := range t.batches {
		st.batches[id] = b
	}
	for _, id := range t.created {
		pid := t.batches[id].ProductID
		st.productBatches[pid] = append(st.productBatches[pid], id)
	}
	for _, o := range t.orders {
		st.orders[o.ID] = o
		st.orderByNumber[o.Number] = o.ID
		if o.IdempotencyKey != "" {
			st.orderByKey[o.IdempotencyKey] = o.ID
		}
	}
	for id, acc := range t.accounts {
		st.accounts[id] = acc
	}
}
