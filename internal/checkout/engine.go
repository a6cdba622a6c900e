package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/loyalty"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/domain/payment"
	"github.com/example/clinic-pos/internal/domain/stock"
	"github.com/example/clinic-pos/internal/infrastructure/store"
	"github.com/example/clinic-pos/internal/metrics"
)

type Config struct {
	MaxAttempts       int
	RetryBase         time.Duration
	TxTimeout         time.Duration
	Workers           int64
	PaymentTolerance  decimal.Decimal
	EnforceRestricted bool
	Location          *time.Location
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		RetryBase:         25 * time.Millisecond,
		TxTimeout:         3 * time.Second,
		Workers:           32,
		PaymentTolerance:  decimal.Zero,
		EnforceRestricted: true,
		Location:          time.UTC,
	}
}

// Publisher receives the record of every newly committed order. It must not
// block; delivery happens outside the checkout.
type Publisher interface {
	Enqueue(rec order.Record) error
}

// Result is a committed (or replayed) checkout.
type Result struct {
	Order    *order.Order
	Replayed bool
	Attempts int
}

type Option func(*Engine)

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l.With().Str("component", "checkout").Logger() }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the only entry point for a sale. Each checkout runs in one store
// transaction: pricing, FEFO allocation, tender reconciliation, persistence
// and loyalty either all take effect or none do.
type Engine struct {
	store     store.Store
	numbers   *order.Numberer
	cfg       Config
	sem       *semaphore.Weighted
	publisher Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewEngine(st store.Store, numbers *order.Numberer, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = def.TxTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	e := &Engine{
		store:   st,
		numbers: numbers,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.Workers),
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today is the current store-local date.
func (e *Engine) Today() time.Time {
	return stock.Day(e.now().In(e.cfg.Location))
}

// Checkout commits a sale. Store conflicts retry the whole transaction with
// jittered backoff; a resubmitted idempotency key returns the original order.
func (e *Engine) Checkout(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.checkout(ctx, req)

	attempts := 0
	if res != nil {
		attempts = res.Attempts
	}
	if err != nil {
		e.metrics.ObserveCheckout(string(KindOf(err)), attempts, 0, time.Since(start))
		return nil, err
	}

	outcome := string(res.Order.Status)
	units := 0
	if res.Replayed {
		outcome = "replayed"
	} else {
		for _, l := range res.Order.Lines {
			units += l.Quantity
		}
	}
	e.metrics.ObserveCheckout(outcome, attempts, units, time.Since(start))
	return res, nil
}

func (e *Engine) checkout(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The slot wait and the first attempt share one deadline; retries get a
	// fresh one each.
	deadline := time.Now().Add(e.cfg.TxTimeout)
	if err := e.acquire(ctx, deadline); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	log := e.logger.With().Str("idempotency_key", req.IdempotencyKey).Logger()

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			deadline = time.Now().Add(e.cfg.TxTimeout)
		}
		res, err := e.attempt(ctx, req, deadline)
		if err == nil {
			res.Attempts = attempt
			if !res.Replayed {
				e.publish(res.Order)
				log.Info().
					Str("order_id", res.Order.ID).
					Str("order_number", res.Order.Number).
					Str("total", res.Order.Total.StringFixed(2)).
					Str("status", string(res.Order.Status)).
					Int("attempts", attempt).
					Msg("checkout committed")
			}
			return res, nil
		}

		if errors.Is(err, store.ErrDuplicate) && req.IdempotencyKey != "" {
			return e.replay(ctx, req.IdempotencyKey, attempt)
		}

		cerr := e.classify(ctx, err)
		retry := cerr.Kind == KindConcurrencyConflict && errors.Is(err, store.ErrConflict)
		if !retry || attempt >= e.cfg.MaxAttempts {
			if cerr.Kind == KindConcurrencyConflict && retry {
				cerr.Message = fmt.Sprintf("stock changed concurrently, gave up after %d attempts", attempt)
			}
			if cerr.Kind == KindPersistence {
				log.Error().Err(err).Int("attempt", attempt).Msg("checkout failed")
			}
			return &Result{Attempts: attempt}, cerr
		}

		delay := backoff(e.cfg.RetryBase, attempt)
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("checkout conflict, retrying")
		if err := sleep(ctx, delay); err != nil {
			return &Result{Attempts: attempt}, newError(KindCanceled, err, "checkout canceled")
		}
	}
}

// acquire waits for a worker slot until deadline, so an overloaded engine
// answers with a retryable conflict.
func (e *Engine) acquire(ctx context.Context, deadline time.Time) error {
	wctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	if err := e.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return newError(KindCanceled, ctx.Err(), "checkout canceled")
		}
		return newError(KindConcurrencyConflict, err, "all checkout workers busy")
	}
	return nil
}

func (e *Engine) attempt(ctx context.Context, req Request, deadline time.Time) (*Result, error) {
	actx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var res *Result
	err := e.store.WithinTx(actx, func(ctx context.Context, tx store.Tx) error {
		if req.IdempotencyKey != "" {
			existing, err := tx.OrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if err == nil {
				res = &Result{Order: existing, Replayed: true}
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		o, err := e.build(ctx, tx, req)
		if err != nil {
			return err
		}
		res = &Result{Order: o}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) build(ctx context.Context, tx store.Tx, req Request) (*order.Order, error) {
	ids := req.ProductIDs()
	products, err := tx.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]order.Line, 0, len(req.Lines))
	for i, l := range req.Lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, newError(KindValidation, catalog.ErrProductNotFound, "line %d: product %s not found", i+1, l.ProductID)
		}
		if !p.Active {
			return nil, newError(KindValidation, catalog.ErrProductInactive, "line %d: product %s is not active", i+1, l.ProductID)
		}
		if p.Restricted && e.cfg.EnforceRestricted && strings.TrimSpace(l.AuthorizationRef) == "" {
			return nil, newError(KindAuthorizationRequired, ErrAuthorizationRequired, "line %d: product %s requires an authorization reference", i+1, l.ProductID)
		}
		lines = append(lines, PriceLine(p, l))
	}

	ledger := stock.NewLedger(tx, e.Today())
	if err := ledger.Load(ctx, ids); err != nil {
		return nil, err
	}
	for i := range lines {
		allocations, err := ledger.Allocate(ctx, lines[i].ProductID, lines[i].Quantity)
		if err != nil {
			return nil, err
		}
		lines[i].Allocations = allocations
	}

	totals := Sum(lines)
	settlement, err := payment.Reconcile(totals.Total, req.Tenders, e.cfg.PaymentTolerance)
	if err != nil {
		return nil, err
	}

	payments := make([]order.Payment, 0, len(req.Tenders))
	for _, t := range req.Tenders {
		payments = append(payments, order.Payment{Method: t.Method, Amount: t.Amount, Reference: t.Reference})
	}

	o := &order.Order{
		ID:             uuid.New().String(),
		Number:         e.numbers.Next(),
		CustomerID:     req.CustomerID,
		CustomerEmail:  req.CustomerEmail,
		CashierID:      req.CashierID,
		IdempotencyKey: req.IdempotencyKey,
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		Discount:       totals.Discount,
		Total:          totals.Total,
		Paid:           settlement.Paid,
		Change:         settlement.Change,
		Shortfall:      settlement.Shortfall,
		Status:         settlement.Status,
		CreatedAt:      e.now().UTC(),
		Lines:          lines,
		Payments:       payments,
	}

	points, err := loyalty.Accrue(ctx, tx, req.CustomerID, settlement.Status, totals.Total)
	if err != nil {
		return nil, err
	}
	o.LoyaltyPointsEarned = points

	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// replay answers a checkout that lost the insert race on its idempotency key
// with the order that won.
func (e *Engine) replay(ctx context.Context, key string, attempt int) (*Result, error) {
	existing, err := e.store.OrderByIdempotencyKey(ctx, key)
	if err != nil {
		return &Result{Attempts: attempt}, e.classify(ctx, err)
	}
	return &Result{Order: existing, Replayed: true, Attempts: attempt}, nil
}

func (e *Engine) publish(o *order.Order) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Enqueue(order.NewRecord(*o)); err != nil {
		e.logger.Error().Err(err).Str("order_id", o.ID).Msg("order record not dispatched")
	}
}

// classify turns any failure into an *Error. ctx is the caller's context, so
// a deadline on it is a client abort while a deadline on the attempt alone
// is a lock timeout.
func (e *Engine) classify(ctx context.Context, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case ctx.Err() != nil:
		return newError(KindCanceled, err, "checkout canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindConcurrencyConflict, err, "timed out waiting for stock locks")
	case errors.Is(err, context.Canceled):
		return newError(KindCanceled, err, "checkout canceled")
	case errors.Is(err, stock.ErrNoSellableBatch):
		return newError(KindNoSellableBatch, err, "%s", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		return newError(KindInsufficientStock, err, "%s", err.Error())
	case errors.Is(err, payment.ErrInvalidTender):
		return newError(KindInvalidTender, err, "%s", err.Error())
	case errors.Is(err, stock.ErrInvalidQuantity):
		return newError(KindValidation, err, "%s", err.Error())
	case errors.Is(err, store.ErrConflict):
		return newError(KindConcurrencyConflict, err, "stock changed concurrently")
	case errors.Is(err, store.ErrNotFound):
		return newError(KindNotFound, err, "%s", err.Error())
	}
	return newError(KindPersistence, err, "order could not be saved")
}

// Order returns a committed order by ID.
func (e *Engine) Order(ctx context.Context, id string) (*order.Order, error) {
	o, err := e.store.OrderByID(ctx, id)
	if err != nil {
		return nil, e.queryError(err, "order %s not found", id)
	}
	return o, nil
}

func (e *Engine) OrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	o, err := e.store.OrderByNumber(ctx, number)
	if err != nil {
		return nil, e.queryError(err, "order %s not found", number)
	}
	return o, nil
}

// Availability is the sellable quantity of a product: the sum of its
// non-expired batches.
func (e *Engine) Availability(ctx context.Context, productID string) (int, error) {
	if _, err := e.store.Product(ctx, productID); err != nil {
		return 0, e.queryError(err, "product %s not found", productID)
	}
	batches, err := e.store.Batches(ctx, productID)
	if err != nil {
		return 0, e.queryError(err, "product %s not found", productID)
	}
	return stock.Available(batches, e.Today()), nil
}

// LoyaltyBalance returns the customer's account; customers without one have
// a zero balance.
func (e *Engine) LoyaltyBalance(ctx context.Context, customerID string) (loyalty.Account, error) {
	acc, err := e.store.LoyaltyAccount(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return loyalty.Account{CustomerID: customerID}, nil
	}
	if err != nil {
		return loyalty.Account{}, e.queryError(err, "")
	}
	return *acc, nil
}

// DailySummary totals the orders created on the store-local date of day.
func (e *Engine) DailySummary(ctx context.Context, day time.Time) (order.Summary, error) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, e.cfg.Location)
	to := from.AddDate(0, 0, 1)

	total, count, err := e.store.SalesBetween(ctx, from, to)
	if err != nil {
		return order.Summary{}, e.queryError(err, "")
	}
	return order.Summary{Date: from.Format("2006-01-02"), Total: total, Orders: count}, nil
}

func (e *Engine) queryError(err error, notFound string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, err, notFound, args...)
	}
	e.logger.Error().Err(err).Msg("query failed")
	return newError(KindPersistence, err, "query failed")
}
