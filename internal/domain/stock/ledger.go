package stock

import (
	"context"
	"fmt"
	"time"
)

// BatchTx is the part of a checkout transaction the ledger works through.
// LockBatches must return every batch of the given products and guard them
// against concurrent decrements until the transaction ends, either by row
// locks or by remembering the observed quantities for a conditional write.
type BatchTx interface {
	LockBatches(ctx context.Context, productIDs []string) (map[string][]Batch, error)
	DecrementBatch(ctx context.Context, batchID int64, quantity int) error
}

// Ledger allocates stock within one transaction. It keeps a working view of
// the locked batches so that several lines for the same product see the
// deductions made by earlier lines.
type Ledger struct {
	tx      BatchTx
	today   time.Time
	batches map[string][]Batch
}

func NewLedger(tx BatchTx, today time.Time) *Ledger {
	return &Ledger{
		tx:      tx,
		today:   Day(today),
		batches: make(map[string][]Batch),
	}
}

// Load locks the batches of all products up front.
func (l *Ledger) Load(ctx context.Context, productIDs []string) error {
	locked, err := l.tx.LockBatches(ctx, productIDs)
	if err != nil {
		return err
	}
	for id, batches := range locked {
		working := make([]Batch, len(batches))
		copy(working, batches)
		l.batches[id] = working
	}
	return nil
}

// Allocate draws quantity units of a product FEFO and records the batch
// decrements in the transaction. Nothing is decremented when the product
// cannot cover the full quantity.
func (l *Ledger) Allocate(ctx context.Context, productID string, quantity int) ([]Allocation, error) {
	batches, ok := l.batches[productID]
	if !ok {
		if err := l.Load(ctx, []string{productID}); err != nil {
			return nil, err
		}
		batches = l.batches[productID]
	}

	allocations, err := Plan(productID, batches, quantity, l.today)
	if err != nil {
		return nil, err
	}

	for _, a := range allocations {
		idx := indexOf(batches, a.BatchID)
		if idx < 0 || batches[idx].Quantity < a.Quantity {
			return nil, fmt.Errorf("batch %d changed during allocation", a.BatchID)
		}
		if err := l.tx.DecrementBatch(ctx, a.BatchID, a.Quantity); err != nil {
			return nil, err
		}
		batches[idx].Quantity -= a.Quantity
	}

	return allocations, nil
}

func indexOf(batches []Batch, id int64) int {
	for i := range batches {
		if batches[i].ID == id {
			return i
		}
	}
	return -1
}
