package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/loyalty"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/domain/payment"
	"github.com/example/clinic-pos/internal/domain/stock"
)

const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"

	idempotencyConstraint = "pos_orders_idempotency_key_uniq"
)

// PostgresStore keeps orders and stock in PostgreSQL. Batches are locked
// with SELECT ... FOR UPDATE in ascending id order, so concurrent checkouts
// queue behind each other instead of deadlocking.
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewPostgresStore(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// classifyError maps PostgreSQL error codes onto the store's sentinel errors.
func classifyError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
	case pgCheckViolation:
		// Deterministic: the same row fails again on retry.
		return fmt.Errorf("check constraint %s violated: %w", pqErr.Constraint, err)
	case pgUniqueViolation:
		if pqErr.Constraint == idempotencyConstraint {
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Detail)
		}
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
	}
	return err
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyError(err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		if _, err = sqlTx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return classifyError(err)
		}
	}

	if err = fn(ctx, &postgresTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return classifyError(err)
	}
	return nil
}

func (s *PostgresStore) Product(ctx context.Context, id string) (*catalog.Product, error) {
	products, err := queryProducts(ctx, s.db, []string{id})
	if err != nil {
		return nil, err
	}
	p, ok := products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return &p, nil
}

func (s *PostgresStore) SaveProduct(ctx context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, category, hsn_sac, gst_rate, mrp, price, active, restricted, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, category = EXCLUDED.category, hsn_sac = EXCLUDED.hsn_sac,
		   gst_rate = EXCLUDED.gst_rate, mrp = EXCLUDED.mrp, price = EXCLUDED.price,
		   active = EXCLUDED.active, restricted = EXCLUDED.restricted, updated_at = NOW()`,
		p.ID, p.Name, string(p.Category), p.HSNSAC, p.GSTRate, p.MRP, p.Price, p.Active, p.Restricted,
	)
	return classifyError(err)
}

func (s *PostgresStore) Batches(ctx context.Context, productID string) ([]stock.Batch, error) {
	byProduct, err := queryBatches(ctx, s.db, []string{productID}, false)
	if err != nil {
		return nil, err
	}
	return byProduct[productID], nil
}

func (s *PostgresStore) OrderByID(ctx context.Context, id string) (*order.Order, error) {
	return loadOrder(ctx, s.db, "id = $1", id)
}

func (s *PostgresStore) OrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	return loadOrder(ctx, s.db, "order_no = $1", number)
}

func (s *PostgresStore) OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return loadOrder(ctx, s.db, "idempotency_key = $1", key)
}

func (s *PostgresStore) LoyaltyAccount(ctx context.Context, customerID string) (*loyalty.Account, error) {
	var acc loyalty.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT customer_id, points, updated_at FROM loyalty_accounts WHERE customer_id = $1`,
		customerID,
	).Scan(&acc.CustomerID, &acc.Points, &acc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: loyalty account %s", ErrNotFound, customerID)
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *PostgresStore) SalesBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, int, error) {
	var total decimal.Decimal
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0), COUNT(*) FROM pos_orders WHERE created_at >= $1 AND created_at < $2`,
		from, to,
	).Scan(&total, &count)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return total, count, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Products(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	return queryProducts(ctx, t.tx, ids)
}

func (t *postgresTx) LockBatches(ctx context.Context, productIDs []string) (map[string][]stock.Batch, error) {
	return queryBatches(ctx, t.tx, productIDs, true)
}

func (t *postgresTx) DecrementBatch(ctx context.Context, batchID int64, quantity int) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE stock_batches SET quantity = quantity - $2 WHERE id = $1 AND quantity >= $2`,
		batchID, quantity,
	)
	if err != nil {
		return classifyError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: batch %d cannot give %d units", ErrConflict, batchID, quantity)
	}
	return nil
}

func (t *postgresTx) ReceiveBatch(ctx context.Context, b stock.Batch) (stock.Batch, error) {
	row := t.tx.QueryRowContext(ctx,
		`INSERT INTO stock_batches (id, product_id, batch_no, expires_on, quantity, unit_cost, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (product_id, batch_no) DO UPDATE SET
		   quantity = stock_batches.quantity + EXCLUDED.quantity,
		   expires_on = COALESCE(stock_batches.expires_on, EXCLUDED.expires_on)
		 RETURNING id, product_id, batch_no, expires_on, quantity, unit_cost, received_at`,
		b.ID, b.ProductID, b.BatchNo, nullTime(b.ExpiresOn), b.Quantity, b.UnitCost, b.ReceivedAt,
	)
	out, err := scanBatch(row)
	if err != nil {
		return stock.Batch{}, classifyError(err)
	}
	return out, nil
}

func (t *postgresTx) OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return loadOrder(ctx, t.tx, "idempotency_key = $1", key)
}

func (t *postgresTx) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO pos_orders (id, order_no, customer_id, customer_email, cashier_id, idempotency_key,
		   subtotal, tax, discount, total, paid, change_due, shortfall, status, loyalty_points_earned, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.Number, nullString(o.CustomerID), nullString(o.CustomerEmail), nullString(o.CashierID),
		nullString(o.IdempotencyKey), o.Subtotal, o.Tax, o.Discount, o.Total, o.Paid, o.Change, o.Shortfall,
		string(o.Status), o.LoyaltyPointsEarned, o.CreatedAt,
	)
	if err != nil {
		return classifyError(err)
	}

	for i, l := range o.Lines {
		lineNo := i + 1
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO pos_order_lines (order_id, line_no, product_id, product_name, quantity, unit_price,
			   gst_rate, discount_rate, line_subtotal, line_discount, line_tax, line_total, authorization_ref)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			o.ID, lineNo, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice, l.GSTRate, l.DiscountRate,
			l.LineSubtotal, l.LineDiscount, l.LineTax, l.LineTotal, nullString(l.AuthorizationRef),
		)
		if err != nil {
			return classifyError(err)
		}
		for _, a := range l.Allocations {
			_, err := t.tx.ExecContext(ctx,
				`INSERT INTO pos_order_line_batches (order_id, line_no, batch_id, batch_no, expires_on, quantity)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				o.ID, lineNo, a.BatchID, a.BatchNo, nullTime(a.ExpiresOn), a.Quantity,
			)
			if err != nil {
				return classifyError(err)
			}
		}
	}

	for i, p := range o.Payments {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO payments (order_id, seq, method, amount, reference) VALUES ($1, $2, $3, $4, $5)`,
			o.ID, i+1, string(p.Method), p.Amount, nullString(p.Reference),
		)
		if err != nil {
			return classifyError(err)
		}
	}
	return nil
}

func (t *postgresTx) CreditLoyalty(ctx context.Context, customerID string, points int64) error {
	if points < 0 {
		return loyalty.ErrInvalidPoints
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO loyalty_accounts (customer_id, points, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (customer_id) DO UPDATE SET
		   points = loyalty_accounts.points + EXCLUDED.points, updated_at = EXCLUDED.updated_at`,
		customerID, points,
	)
	return classifyError(err)
}

func queryProducts(ctx context.Context, q queryer, ids []string) (map[string]catalog.Product, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, category, hsn_sac, gst_rate, mrp, price, active, restricted
		 FROM products WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	out := make(map[string]catalog.Product, len(ids))
	for rows.Next() {
		var p catalog.Product
		var category string
		if err := rows.Scan(&p.ID, &p.Name, &category, &p.HSNSAC, &p.GSTRate, &p.MRP, &p.Price, &p.Active, &p.Restricted); err != nil {
			return nil, err
		}
		p.Category = catalog.Category(category)
		out[p.ID] = p
	}
	return out, rows.Err()
}

func queryBatches(ctx context.Context, q queryer, productIDs []string, forUpdate bool) (map[string][]stock.Batch, error) {
	query := `SELECT id, product_id, batch_no, expires_on, quantity, unit_cost, received_at
		 FROM stock_batches WHERE product_id = ANY($1) ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, pq.Array(productIDs))
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	out := make(map[string][]stock.Batch, len(productIDs))
	for _, id := range productIDs {
		out[id] = nil
	}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, classifyError(err)
		}
		out[b.ProductID] = append(out[b.ProductID], b)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(r rowScanner) (stock.Batch, error) {
	var b stock.Batch
	var expires sql.NullTime
	if err := r.Scan(&b.ID, &b.ProductID, &b.BatchNo, &expires, &b.Quantity, &b.UnitCost, &b.ReceivedAt); err != nil {
		return stock.Batch{}, err
	}
	if expires.Valid {
		d := stock.Day(expires.Time)
		b.ExpiresOn = &d
	}
	return b, nil
}

func loadOrder(ctx context.Context, q queryer, where string, arg any) (*order.Order, error) {
	var o order.Order
	var customerID, customerEmail, cashierID, idemKey sql.NullString
	var status string
	err := q.QueryRowContext(ctx,
		`SELECT id, order_no, customer_id, customer_email, cashier_id, idempotency_key, subtotal, tax, discount,
		   total, paid, change_due, shortfall, status, loyalty_points_earned, created_at
		 FROM pos_orders WHERE `+where,
		arg,
	).Scan(&o.ID, &o.Number, &customerID, &customerEmail, &cashierID, &idemKey, &o.Subtotal, &o.Tax, &o.Discount,
		&o.Total, &o.Paid, &o.Change, &o.Shortfall, &status, &o.LoyaltyPointsEarned, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, classifyError(err)
	}
	o.CustomerID = customerID.String
	o.CustomerEmail = customerEmail.String
	o.CashierID = cashierID.String
	o.IdempotencyKey = idemKey.String
	o.Status = payment.Status(status)

	if err := loadLines(ctx, q, &o); err != nil {
		return nil, err
	}
	if err := loadPayments(ctx, q, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func loadLines(ctx context.Context, q queryer, o *order.Order) error {
	rows, err := q.QueryContext(ctx,
		`SELECT product_id, product_name, quantity, unit_price, gst_rate, discount_rate,
		   line_subtotal, line_discount, line_tax, line_total, authorization_ref
		 FROM pos_order_lines WHERE order_id = $1 ORDER BY line_no`,
		o.ID,
	)
	if err != nil {
		return classifyError(err)
	}
	for rows.Next() {
		var l order.Line
		var authRef sql.NullString
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.GSTRate, &l.DiscountRate,
			&l.LineSubtotal, &l.LineDiscount, &l.LineTax, &l.LineTotal, &authRef); err != nil {
			rows.Close()
			return err
		}
		l.AuthorizationRef = authRef.String
		o.Lines = append(o.Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT line_no, batch_id, batch_no, expires_on, quantity
		 FROM pos_order_line_batches WHERE order_id = $1 ORDER BY line_no, batch_id`,
		o.ID,
	)
	if err != nil {
		return classifyError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var lineNo int
		var a stock.Allocation
		var expires sql.NullTime
		if err := rows.Scan(&lineNo, &a.BatchID, &a.BatchNo, &expires, &a.Quantity); err != nil {
			return err
		}
		if expires.Valid {
			d := stock.Day(expires.Time)
			a.ExpiresOn = &d
		}
		if lineNo >= 1 && lineNo <= len(o.Lines) {
			o.Lines[lineNo-1].Allocations = append(o.Lines[lineNo-1].Allocations, a)
		}
	}
	return rows.Err()
}

func loadPayments(ctx context.Context, q queryer, o *order.Order) error {
	rows, err := q.QueryContext(ctx,
		`SELECT method, amount, reference FROM payments WHERE order_id = $1 ORDER BY seq`,
		o.ID,
	)
	if err != nil {
		return classifyError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var p order.Payment
		var method string
		var ref sql.NullString
		if err := rows.Scan(&method, &p.Amount, &ref); err != nil {
			return err
		}
		p.Method = payment.Method(method)
		p.Reference = ref.String
		o.Payments = append(o.Payments, p)
	}
	return rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ConnectPostgres opens a pool and verifies the connection.
func ConnectPostgres(ctx context.Context, connStr string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
