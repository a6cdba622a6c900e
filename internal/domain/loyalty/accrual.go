package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/payment"
)

var ErrInvalidPoints = errors.New("loyalty points must not be negative")

var pointValue = decimal.NewFromInt(100)

// Account is a customer's point balance. Points never decrease.
type Account struct {
	CustomerID string    `json:"customer_id"`
	Points     int64     `json:"points"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AccountTx credits points inside the checkout transaction. Implementations
// create the account at zero when the customer has none.
type AccountTx interface {
	CreditLoyalty(ctx context.Context, customerID string, points int64) error
}

// Points converts an order total into loyalty points: one point per 100
// currency units, rounded down.
func Points(total decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	return total.Div(pointValue).Floor().IntPart()
}

// Earned returns the points an order earns. Only fully paid orders with a
// customer accrue.
func Earned(customerID string, status payment.Status, total decimal.Decimal) int64 {
	if customerID == "" || status != payment.StatusPaid {
		return 0
	}
	return Points(total)
}

// Accrue credits the points an order earns and returns them. Every paid
// order with a customer is credited, even with zero points, so the account
// exists from the customer's first sale.
func Accrue(ctx context.Context, tx AccountTx, customerID string, status payment.Status, total decimal.Decimal) (int64, error) {
	if customerID == "" || status != payment.StatusPaid {
		return 0, nil
	}
	points := Earned(customerID, status, total)
	if err := tx.CreditLoyalty(ctx, customerID, points); err != nil {
		return 0, fmt.Errorf("credit loyalty for customer %s: %w", customerID, err)
	}
	return points, nil
}

// Credit applies points to an account. Used by stores that keep accounts
// as values.
func (a Account) Credit(points int64, at time.Time) (Account, error) {
	if points < 0 {
		return a, ErrInvalidPoints
	}
	a.Points += points
	a.UpdatedAt = at
	return a, nil
}
