package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCash Method = "cash"
	MethodCard Method = "card"
	MethodUPI  Method = "upi"
)

type Status string

const (
	StatusPaid          Status = "paid"
	StatusPartiallyPaid Status = "partially_paid"
)

var ErrInvalidTender = errors.New("invalid tender")

// Tender is one payment instrument contributing to an order.
type Tender struct {
	Method    Method          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

// Settlement is the outcome of matching tenders against an order total.
// Change is informational only and never persisted as a liability.
type Settlement struct {
	Status    Status          `json:"status"`
	Paid      decimal.Decimal `json:"paid"`
	Change    decimal.Decimal `json:"change"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MethodCash, MethodCard, MethodUPI:
		return m, true
	}
	return "", false
}

// ValidateTenders rejects unknown methods, non-positive amounts and amounts
// with fractions of a paisa.
func ValidateTenders(tenders []Tender) error {
	_, err := NormalizeTenders(tenders)
	return err
}

// NormalizeTenders validates tenders and returns a copy with every method in
// its canonical lower-case form. The input slice is not modified.
func NormalizeTenders(tenders []Tender) ([]Tender, error) {
	out := make([]Tender, len(tenders))
	for i, t := range tenders {
		m, ok := ParseMethod(string(t.Method))
		if !ok {
			return nil, fmt.Errorf("%w: tender %d has unknown method %q", ErrInvalidTender, i, t.Method)
		}
		if !t.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: tender %d amount must be positive, got %s", ErrInvalidTender, i, t.Amount)
		}
		if !t.Amount.Equal(t.Amount.Round(2)) {
			return nil, fmt.Errorf("%w: tender %d amount %s has more than 2 decimal places", ErrInvalidTender, i, t.Amount)
		}
		t.Method = m
		t.Reference = strings.TrimSpace(t.Reference)
		out[i] = t
	}
	return out, nil
}

// Reconcile sums the tenders against total. An order is paid when the sum
// reaches total minus tolerance; otherwise it is partially paid and the
// shortfall is reported.
func Reconcile(total decimal.Decimal, tenders []Tender, tolerance decimal.Decimal) (Settlement, error) {
	if err := ValidateTenders(tenders); err != nil {
		return Settlement{}, err
	}

	paid := decimal.Zero
	for _, t := range tenders {
		paid = paid.Add(t.Amount)
	}

	if paid.GreaterThanOrEqual(total.Sub(tolerance)) {
		change := paid.Sub(total)
		if change.IsNegative() {
			change = decimal.Zero
		}
		return Settlement{
			Status:    StatusPaid,
			Paid:      paid,
			Change:    change,
			Shortfall: decimal.Zero,
		}, nil
	}

	return Settlement{
		Status:    StatusPartiallyPaid,
		Paid:      paid,
		Change:    decimal.Zero,
		Shortfall: total.Sub(paid),
	}, nil
}
