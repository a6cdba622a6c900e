package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/order"
)

// PriceLine computes the line figures, each rounded to 2 places half away
// from zero. Order totals are sums of these rounded values.
func PriceLine(p catalog.Product, l LineRequest) order.Line {
	sub := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
	disc := sub.Mul(l.DiscountRate).Div(hundred).Round(2)
	tax := sub.Sub(disc).Mul(p.GSTRate).Div(hundred).Round(2)

	return order.Line{
		ProductID:        p.ID,
		ProductName:      p.Name,
		Quantity:         l.Quantity,
		UnitPrice:        p.Price,
		GSTRate:          p.GSTRate,
		DiscountRate:     l.DiscountRate,
		LineSubtotal:     sub,
		LineDiscount:     disc,
		LineTax:          tax,
		LineTotal:        sub.Sub(disc).Add(tax),
		AuthorizationRef: l.AuthorizationRef,
	}
}

type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

func Sum(lines []order.Line) Totals {
	t := Totals{Subtotal: decimal.Zero, Discount: decimal.Zero, Tax: decimal.Zero}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.LineSubtotal)
		t.Discount = t.Discount.Add(l.LineDiscount)
		t.Tax = t.Tax.Add(l.LineTax)
	}
	t.Total = t.Subtotal.Add(t.Tax).Sub(t.Discount)
	return t
}
