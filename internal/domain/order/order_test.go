package order

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-pos/internal/domain/payment"
	"github.com/example/clinic-pos/internal/domain/stock"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validOrder() Order {
	return Order{
		ID:       "o-1",
		Number:   "INV-1",
		Subtotal: d("200.00"),
		Tax:      d("21.60"),
		Discount: d("20.00"),
		Total:    d("201.60"),
		Status:   payment.StatusPaid,
		Lines: []Line{
			{
				ProductID: "P1",
				Quantity:  2,
				Allocations: []stock.Allocation{
					{BatchID: 1, Quantity: 1},
					{BatchID: 2, Quantity: 1},
				},
			},
		},
	}
}

// ============================================
// Invariant Tests
// ============================================

func TestOrder_Validate(t *testing.T) {
	o := validOrder()
	assert.NoError(t, o.Validate())
}

func TestOrder_ValidateTotals(t *testing.T) {
	o := validOrder()
	o.Total = d("201.59")

	assert.ErrorIs(t, o.Validate(), ErrTotalsMismatch)
}

func TestOrder_ValidateAllocations(t *testing.T) {
	o := validOrder()
	o.Lines[0].Allocations = o.Lines[0].Allocations[:1]

	assert.ErrorIs(t, o.Validate(), ErrAllocationCount)
}

func TestOrder_ValidateEmpty(t *testing.T) {
	o := validOrder()
	o.Lines = nil

	assert.ErrorIs(t, o.Validate(), ErrEmptyOrder)
}

// ============================================
// Numberer Tests
// ============================================

func TestNumberer_UniqueUnderConcurrency(t *testing.T) {
	n, err := NewNumberer(7)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				num := n.Next()
				mu.Lock()
				seen[num] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestNumberer_Format(t *testing.T) {
	n, err := NewNumberer(1)
	require.NoError(t, err)

	num := n.Next()
	assert.True(t, strings.HasPrefix(num, NumberPrefix))
	assert.Equal(t, strings.ToUpper(num), num)
}

func TestNumberer_IDsIncrease(t *testing.T) {
	n, err := NewNumberer(1)
	require.NoError(t, err)

	a := n.NextID()
	b := n.NextID()
	assert.Greater(t, b, a)
}

func TestNewNumberer_InvalidNode(t *testing.T) {
	_, err := NewNumberer(4096)
	assert.Error(t, err)
}

// ============================================
// Event Tests
// ============================================

func TestNewCompletedEvent(t *testing.T) {
	o := validOrder()
	o.CreatedAt = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	ev := NewCompletedEvent(NewRecord(o))

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, EventOrderCompleted, ev.Type)
	assert.Equal(t, o.CreatedAt, ev.OccurredAt)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"OrderCompleted"`)
	assert.Contains(t, string(data), `"total":"201.6"`)
}
