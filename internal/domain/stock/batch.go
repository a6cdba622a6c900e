package stock

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoSellableBatch   = errors.New("no sellable batch")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Batch is a quantity of one product received together. IDs are time-ordered,
// so ascending ID is also order of creation.
type Batch struct {
	ID         int64           `json:"id"`
	ProductID  string          `json:"product_id"`
	BatchNo    string          `json:"batch_no"`
	ExpiresOn  *time.Time      `json:"expires_on,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Allocation is the quantity a sale line draws from one batch.
type Allocation struct {
	BatchID   int64      `json:"batch_id"`
	BatchNo   string     `json:"batch_no"`
	ExpiresOn *time.Time `json:"expires_on,omitempty"`
	Quantity  int        `json:"quantity"`
}

// Day truncates t to its calendar date, expressed as midnight UTC so that
// dates compare independently of the location they were read in.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Expired reports whether the batch expired before today. A batch expiring
// today is still sellable.
func (b Batch) Expired(today time.Time) bool {
	if b.ExpiresOn == nil {
		return false
	}
	return Day(*b.ExpiresOn).Before(Day(today))
}

// SortFEFO orders batches first-expiring-first-out: ascending expiry, batches
// without expiry last, ascending ID between equal expiries.
func SortFEFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.ExpiresOn == nil && b.ExpiresOn == nil:
			return a.ID < b.ID
		case a.ExpiresOn == nil:
			return false
		case b.ExpiresOn == nil:
			return true
		}
		da, db := Day(*a.ExpiresOn), Day(*b.ExpiresOn)
		if !da.Equal(db) {
			return da.Before(db)
		}
		return a.ID < b.ID
	})
}

// Available sums the quantities of the non-expired batches.
func Available(batches []Batch, today time.Time) int {
	total := 0
	for _, b := range batches {
		if b.Quantity > 0 && !b.Expired(today) {
			total += b.Quantity
		}
	}
	return total
}

// Plan selects the batches a sale of quantity units draws from. It never
// returns a partial plan: either the whole quantity is covered or an error
// is returned and nothing should be deducted.
func Plan(productID string, batches []Batch, quantity int, today time.Time) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	sellable := make([]Batch, 0, len(batches))
	unexpired := 0
	for _, b := range batches {
		if b.Expired(today) {
			continue
		}
		unexpired++
		if b.Quantity > 0 {
			sellable = append(sellable, b)
		}
	}

	if len(batches) > 0 && unexpired == 0 {
		return nil, fmt.Errorf("%w: every batch of product %s has expired", ErrNoSellableBatch, productID)
	}

	available := 0
	for _, b := range sellable {
		available += b.Quantity
	}
	if available < quantity {
		return nil, fmt.Errorf("%w: product %s requested %d, available %d", ErrInsufficientStock, productID, quantity, available)
	}

	SortFEFO(sellable)

	remaining := quantity
	allocations := make([]Allocation, 0, 2)
	for _, b := range sellable {
		if remaining == 0 {
			break
		}
		take := min(remaining, b.Quantity)
		allocations = append(allocations, Allocation{
			BatchID:   b.ID,
			BatchNo:   b.BatchNo,
			ExpiresOn: b.ExpiresOn,
			Quantity:  take,
		})
		remaining -= take
	}

	return allocations, nil
}
