package receiving

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/example/clinic-pos/internal/domain/catalog"
)

// Seed is a catalog snapshot plus opening stock, used to bootstrap a store.
type Seed struct {
	Products []catalog.Product `json:"products"`
	Receipts []GoodsReceipt    `json:"receipts"`
}

func LoadSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &seed, nil
}

// ApplySeed upserts the products, then receives each goods receipt.
func (s *Service) ApplySeed(ctx context.Context, seed *Seed) (products, batches int, err error) {
	for _, p := range seed.Products {
		if err := s.store.SaveProduct(ctx, p); err != nil {
			return products, batches, fmt.Errorf("save product %s: %w", p.ID, err)
		}
		products++
	}
	for i, receipt := range seed.Receipts {
		stored, err := s.Receive(ctx, receipt)
		if err != nil {
			return products, batches, fmt.Errorf("receipt %d: %w", i+1, err)
		}
		batches += len(stored)
	}
	return products, batches, nil
}
