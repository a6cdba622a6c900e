package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validProduct() Product {
	return Product{
		ID:       "FRM-001",
		Name:     "Titanium rimless frame",
		Category: CategoryFrame,
		GSTRate:  decimal.NewFromInt(12),
		MRP:      decimal.NewFromInt(4500),
		Price:    decimal.NewFromInt(3999),
		Active:   true,
	}
}

func TestProductValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Product)
		wantErr bool
	}{
		{"valid", func(p *Product) {}, false},
		{"zero price service", func(p *Product) { p.Category = CategoryService; p.Price = decimal.Zero }, false},
		{"full rate", func(p *Product) { p.GSTRate = decimal.NewFromInt(100) }, false},
		{"missing id", func(p *Product) { p.ID = "" }, true},
		{"missing name", func(p *Product) { p.Name = "" }, true},
		{"unknown category", func(p *Product) { p.Category = "sunglasses" }, true},
		{"negative price", func(p *Product) { p.Price = decimal.NewFromInt(-1) }, true},
		{"negative rate", func(p *Product) { p.GSTRate = decimal.NewFromInt(-5) }, true},
		{"rate above 100", func(p *Product) { p.GSTRate = decimal.RequireFromString("100.01") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(&p)

			err := p.Validate()

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProduct)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range []Category{CategoryFrame, CategoryLens, CategoryCoating, CategoryContactLens, CategoryMedicine, CategoryService} {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("").Valid())
}
