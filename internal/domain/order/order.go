package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/payment"
	"github.com/example/clinic-pos/internal/domain/stock"
)

var (
	ErrEmptyOrder      = errors.New("order must have at least one line")
	ErrTotalsMismatch  = errors.New("order totals do not add up")
	ErrAllocationCount = errors.New("line allocations do not cover line quantity")
)

// Order is a committed sale. It is written once at checkout and never
// updated afterwards.
type Order struct {
	ID                  string          `json:"id"`
	Number              string          `json:"number"`
	CustomerID          string          `json:"customer_id,omitempty"`
	CustomerEmail       string          `json:"customer_email,omitempty"`
	CashierID           string          `json:"cashier_id,omitempty"`
	IdempotencyKey      string          `json:"idempotency_key,omitempty"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	Tax                 decimal.Decimal `json:"tax"`
	Discount            decimal.Decimal `json:"discount"`
	Total               decimal.Decimal `json:"total"`
	Paid                decimal.Decimal `json:"paid"`
	Change              decimal.Decimal `json:"change"`
	Shortfall           decimal.Decimal `json:"shortfall"`
	Status              payment.Status  `json:"status"`
	LoyaltyPointsEarned int64           `json:"loyalty_points_earned"`
	CreatedAt           time.Time       `json:"created_at"`
	Lines               []Line          `json:"lines"`
	Payments            []Payment       `json:"payments"`
}

// Line is one priced cart line with the batches it drew from. Rates are
// percentages as sold.
type Line struct {
	ProductID        string             `json:"product_id"`
	ProductName      string             `json:"product_name"`
	Quantity         int                `json:"quantity"`
	UnitPrice        decimal.Decimal    `json:"unit_price"`
	GSTRate          decimal.Decimal    `json:"gst_rate"`
	DiscountRate     decimal.Decimal    `json:"discount_rate"`
	LineSubtotal     decimal.Decimal    `json:"line_subtotal"`
	LineDiscount     decimal.Decimal    `json:"line_discount"`
	LineTax          decimal.Decimal    `json:"line_tax"`
	LineTotal        decimal.Decimal    `json:"line_total"`
	AuthorizationRef string             `json:"authorization_ref,omitempty"`
	Allocations      []stock.Allocation `json:"allocations"`
}

type Payment struct {
	Method    payment.Method  `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

// Summary is the day report: the number and value of orders created on Date.
type Summary struct {
	Date   string          `json:"date"`
	Total  decimal.Decimal `json:"total"`
	Orders int             `json:"orders"`
}

// Validate checks the invariants a committed order must hold.
func (o *Order) Validate() error {
	if len(o.Lines) == 0 {
		return ErrEmptyOrder
	}
	if !o.Total.Equal(o.Subtotal.Add(o.Tax).Sub(o.Discount)) {
		return fmt.Errorf("%w: %s + %s - %s != %s", ErrTotalsMismatch, o.Subtotal, o.Tax, o.Discount, o.Total)
	}
	for _, l := range o.Lines {
		drawn := 0
		for _, a := range l.Allocations {
			drawn += a.Quantity
		}
		if drawn != l.Quantity {
			return fmt.Errorf("%w: product %s quantity %d, allocated %d", ErrAllocationCount, l.ProductID, l.Quantity, drawn)
		}
	}
	return nil
}
