package checkout

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/payment"
)

const MaxLines = 200

var hundred = decimal.NewFromInt(100)

// LineRequest is one cart line. DiscountRate is a percentage.
type LineRequest struct {
	ProductID        string          `json:"product_id"`
	Quantity         int             `json:"quantity"`
	DiscountRate     decimal.Decimal `json:"discount_rate"`
	AuthorizationRef string          `json:"authorization_ref,omitempty"`
}

type Request struct {
	CustomerID     string           `json:"customer_id,omitempty"`
	CustomerEmail  string           `json:"customer_email,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	CashierID      string           `json:"-"`
	Lines          []LineRequest    `json:"lines"`
	Tenders        []payment.Tender `json:"tenders"`
}

// Validate rejects malformed carts before anything is read or locked. It
// replaces the tenders with their normalized form.
func (r *Request) Validate() error {
	if len(r.Lines) == 0 {
		return newError(KindValidation, ErrValidation, "cart has no lines")
	}
	if len(r.Lines) > MaxLines {
		return newError(KindValidation, ErrValidation, "cart has %d lines, limit is %d", len(r.Lines), MaxLines)
	}
	for i, l := range r.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return newError(KindValidation, ErrValidation, "line %d has no product_id", i+1)
		}
		if l.Quantity <= 0 {
			return newError(KindValidation, ErrValidation, "line %d quantity must be positive", i+1)
		}
		if l.DiscountRate.IsNegative() || l.DiscountRate.GreaterThan(hundred) {
			return newError(KindValidation, ErrValidation, "line %d discount_rate must be between 0 and 100", i+1)
		}
	}
	tenders, err := payment.NormalizeTenders(r.Tenders)
	if err != nil {
		return newError(KindInvalidTender, err, "%s", err.Error())
	}
	r.Tenders = tenders
	return nil
}

// ProductIDs lists the distinct products in line order.
func (r *Request) ProductIDs() []string {
	seen := make(map[string]bool, len(r.Lines))
	ids := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}
