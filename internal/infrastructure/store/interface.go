package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/loyalty"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/domain/stock"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a failure caused by a concurrent writer. The whole
	// transaction may be retried.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDuplicate marks an order whose idempotency key is already taken.
	ErrDuplicate = errors.New("duplicate idempotency key")
)

// Store is the unit-of-work boundary of the checkout engine. Every write
// happens inside WithinTx; reads outside it see only committed state.
type Store interface {
	// WithinTx runs fn in a new transaction. The transaction commits when fn
	// returns nil and rolls back otherwise, leaving no partial state.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Product(ctx context.Context, id string) (*catalog.Product, error)
	SaveProduct(ctx context.Context, p catalog.Product) error
	Batches(ctx context.Context, productID string) ([]stock.Batch, error)
	OrderByID(ctx context.Context, id string) (*order.Order, error)
	OrderByNumber(ctx context.Context, number string) (*order.Order, error)
	OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error)
	LoyaltyAccount(ctx context.Context, customerID string) (*loyalty.Account, error)
	// SalesBetween totals the orders created in [from, to).
	SalesBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx is a single checkout or receiving transaction.
type Tx interface {
	stock.BatchTx
	loyalty.AccountTx

	// Products returns the requested products keyed by ID. Missing IDs are
	// absent from the map.
	Products(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error)
	// InsertOrder persists the order with its lines, allocations and
	// payments. A taken idempotency key yields ErrDuplicate.
	InsertOrder(ctx context.Context, o *order.Order) error
	// ReceiveBatch adds stock. A batch with the same product and batch number
	// gains quantity; otherwise b is created with its ID.
	ReceiveBatch(ctx context.Context, b stock.Batch) (stock.Batch, error)
}
