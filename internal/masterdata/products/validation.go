package products

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: product sku", shared.ErrRequiredField)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name", shared.ErrRequiredField)
	}
	if p.Price.IsNegative() || p.CostPrice.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", shared.ErrValidation)
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: tax_rate must be between 0 and 1", shared.ErrValidation)
	}
	if p.MinStockLevel < 0 {
		return fmt.Errorf("%w: min_stock_level must not be negative", shared.ErrValidation)
	}
	if p.StockQuantity < 0 {
		return fmt.Errorf("%w: stock_quantity must not be negative", shared.ErrValidation)
	}
	return nil
}

func normalize(p Product) Product {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if p.Barcode != nil {
		trimmed := strings.TrimSpace(*p.Barcode)
		if trimmed == "" {
			p.Barcode = nil
		} else {
			p.Barcode = &trimmed
		}
	}
	p.Price = p.Price.Round(2)
	p.CostPrice = p.CostPrice.Round(2)
	return p
}
