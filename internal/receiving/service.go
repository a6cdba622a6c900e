package receiving

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/domain/stock"
	"github.com/example/clinic-pos/internal/infrastructure/store"
)

const dateLayout = "2006-01-02"

var ErrInvalidReceipt = errors.New("invalid goods receipt")

// GoodsReceipt is a supplier delivery. Lines for a batch number the product
// already has are added to that batch.
type GoodsReceipt struct {
	SupplierRef string `json:"supplier_ref,omitempty"`
	Lines       []Line `json:"lines"`
}

type Line struct {
	ProductID string          `json:"product_id"`
	BatchNo   string          `json:"batch_no"`
	ExpiresOn string          `json:"expires_on,omitempty"` // YYYY-MM-DD
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type Service struct {
	store   store.Store
	numbers *order.Numberer
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(st store.Store, numbers *order.Numberer, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		numbers: numbers,
		logger:  logger.With().Str("component", "receiving").Logger(),
		now:     time.Now,
	}
}

// Receive validates the receipt and stores every line in one transaction.
func (s *Service) Receive(ctx context.Context, receipt GoodsReceipt) ([]stock.Batch, error) {
	batches, err := s.parse(receipt)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ProductID)
	}

	var stored []stock.Batch
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		products, err := tx.Products(ctx, ids)
		if err != nil {
			return err
		}
		stored = make([]stock.Batch, 0, len(batches))
		for i, b := range batches {
			if _, ok := products[b.ProductID]; !ok {
				return fmt.Errorf("%w: line %d: %s", catalog.ErrProductNotFound, i+1, b.ProductID)
			}
			saved, err := tx.ReceiveBatch(ctx, b)
			if err != nil {
				return fmt.Errorf("receive batch %s/%s: %w", b.ProductID, b.BatchNo, err)
			}
			stored = append(stored, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("supplier_ref", receipt.SupplierRef).
		Int("lines", len(stored)).
		Msg("goods received")
	return stored, nil
}

func (s *Service) parse(receipt GoodsReceipt) ([]stock.Batch, error) {
	if len(receipt.Lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrInvalidReceipt)
	}

	now := s.now().UTC()
	batches := make([]stock.Batch, 0, len(receipt.Lines))
	for i, l := range receipt.Lines {
		n := i + 1
		if strings.TrimSpace(l.ProductID) == "" {
			return nil, fmt.Errorf("%w: line %d has no product_id", ErrInvalidReceipt, n)
		}
		if strings.TrimSpace(l.BatchNo) == "" {
			return nil, fmt.Errorf("%w: line %d has no batch_no", ErrInvalidReceipt, n)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidReceipt, n)
		}
		if l.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: line %d unit_cost is negative", ErrInvalidReceipt, n)
		}

		var expires *time.Time
		if l.ExpiresOn != "" {
			t, err := time.Parse(dateLayout, l.ExpiresOn)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d expires_on %q is not YYYY-MM-DD", ErrInvalidReceipt, n, l.ExpiresOn)
			}
			expires = &t
		}

		batches = append(batches, stock.Batch{
			ID:         s.numbers.NextID(),
			ProductID:  l.ProductID,
			BatchNo:    strings.TrimSpace(l.BatchNo),
			ExpiresOn:  expires,
			Quantity:   l.Quantity,
			UnitCost:   l.UnitCost,
			ReceivedAt: now,
		})
	}
	return batches, nil
}
