package checkout

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/domain/payment"
)

func TestPriceLine(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		gst      string
		qty      int
		discount string
		subtotal string
		disc     string
		tax      string
		total    string
	}{
		{"discounted taxed", "99.99", "18", 3, "10", "299.97", "30.00", "48.59", "318.56"},
		{"no discount", "100.00", "12", 5, "0", "500.00", "0.00", "60.00", "560.00"},
		{"zero rated service", "237.40", "0", 1, "0", "237.40", "0.00", "0.00", "237.40"},
		{"half cent rounds away from zero", "0.25", "0", 1, "10", "0.25", "0.03", "0.00", "0.22"},
		{"full discount", "450.00", "5", 2, "100", "900.00", "900.00", "0.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := catalog.Product{ID: "P", Name: "Item", Price: dec(tt.price), GSTRate: dec(tt.gst), Active: true}

			line := PriceLine(p, LineRequest{ProductID: "P", Quantity: tt.qty, DiscountRate: dec(tt.discount)})

			assert.True(t, line.LineSubtotal.Equal(dec(tt.subtotal)), "subtotal %s", line.LineSubtotal)
			assert.True(t, line.LineDiscount.Equal(dec(tt.disc)), "discount %s", line.LineDiscount)
			assert.True(t, line.LineTax.Equal(dec(tt.tax)), "tax %s", line.LineTax)
			assert.True(t, line.LineTotal.Equal(dec(tt.total)), "total %s", line.LineTotal)
			assert.Equal(t, "Item", line.ProductName)
		})
	}
}

func TestSum(t *testing.T) {
	lines := []order.Line{
		{LineSubtotal: dec("299.97"), LineDiscount: dec("30.00"), LineTax: dec("48.59"), LineTotal: dec("318.56")},
		{LineSubtotal: dec("1250.50"), LineDiscount: dec("0"), LineTax: dec("150.06"), LineTotal: dec("1400.56")},
	}

	totals := Sum(lines)

	assert.True(t, totals.Subtotal.Equal(dec("1550.47")))
	assert.True(t, totals.Discount.Equal(dec("30.00")))
	assert.True(t, totals.Tax.Equal(dec("198.65")))
	assert.True(t, totals.Total.Equal(dec("1719.12")))

	empty := Sum(nil)
	assert.True(t, empty.Total.IsZero())
}

func TestRequestProductIDs(t *testing.T) {
	req := Request{Lines: []LineRequest{
		{ProductID: "B", Quantity: 1},
		{ProductID: "A", Quantity: 1},
		{ProductID: "B", Quantity: 2},
	}}

	assert.Equal(t, []string{"B", "A"}, req.ProductIDs())
}

func TestRequestValidate_TooManyLines(t *testing.T) {
	req := Request{Lines: make([]LineRequest, MaxLines+1)}
	for i := range req.Lines {
		req.Lines[i] = LineRequest{ProductID: "P", Quantity: 1}
	}

	err := req.Validate()

	requireKind(t, err, KindValidation)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestValidate_TenderError(t *testing.T) {
	req := Request{
		Lines:   []LineRequest{{ProductID: "P", Quantity: 1}},
		Tenders: []payment.Tender{{Method: payment.MethodUPI, Amount: dec("-1")}},
	}

	err := req.Validate()

	requireKind(t, err, KindInvalidTender)
	assert.ErrorIs(t, err, payment.ErrInvalidTender)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(newError(KindNotFound, nil, "missing")))
	assert.Equal(t, KindPersistence, KindOf(errors.New("boom")))

	err := newError(KindInsufficientStock, nil, "product %s short by %d", "P", 2)
	assert.Equal(t, "insufficient_stock: product P short by 2", err.Error())
	assert.False(t, err.Retryable())
}

func TestBackoff(t *testing.T) {
	base := 25 * time.Millisecond
	for attempt := 1; attempt <= 12; attempt++ {
		d := backoff(base, attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.Less(t, d, maxBackoff)
		if attempt == 1 {
			assert.Less(t, d, base)
		}
	}
	assert.Zero(t, backoff(0, 3))
}
