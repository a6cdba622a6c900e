package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryFrame       Category = "frame"
	CategoryLens        Category = "lens"
	CategoryCoating     Category = "coating"
	CategoryContactLens Category = "contact_lens"
	CategoryMedicine    Category = "medicine"
	CategoryService     Category = "service"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductInactive = errors.New("product is not active")
	ErrInvalidProduct  = errors.New("invalid product")
)

// Product is the read-only view of a catalog entry used at checkout.
// GSTRate is a percentage (12 means 12%).
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Category   Category        `json:"category"`
	HSNSAC     string          `json:"hsn_sac,omitempty"`
	GSTRate    decimal.Decimal `json:"gst_rate"`
	MRP        decimal.Decimal `json:"mrp"`
	Price      decimal.Decimal `json:"price"`
	Active     bool            `json:"active"`
	Restricted bool            `json:"restricted"`
}

func (c Category) Valid() bool {
	switch c {
	case CategoryFrame, CategoryLens, CategoryCoating, CategoryContactLens, CategoryMedicine, CategoryService:
		return true
	}
	return false
}

// Validate checks the fields a catalog sync must provide before a product
// can be stored.
func (p Product) Validate() error {
	if p.ID == "" || p.Name == "" {
		return ErrInvalidProduct
	}
	if !p.Category.Valid() {
		return ErrInvalidProduct
	}
	if p.Price.IsNegative() || p.GSTRate.IsNegative() || p.GSTRate.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidProduct
	}
	return nil
}
