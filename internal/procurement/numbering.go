package procurement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatOrderNumber renders PO-{year}-{NNNN}.
func FormatOrderNumber(year, seq int) string {
	return fmt.Sprintf("PO-%d-%04d", year, seq)
}

// priceItems validates lines and computes subtotals and the order total.
func priceItems(items []ItemInput) ([]Item, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, ErrNoItems
	}
	out := make([]Item, 0, len(items))
	total := decimal.Zero
	for i, in := range items {
		switch {
		case in.ProductID <= 0:
			return nil, decimal.Zero, fmt.Errorf("%w: line %d: product_id is required", ErrValidation, i+1)
		case in.Quantity <= 0:
			return nil, decimal.Zero, fmt.Errorf("%w: line %d: quantity must be positive", ErrValidation, i+1)
		case in.UnitPrice.IsNegative():
			return nil, decimal.Zero, fmt.Errorf("%w: line %d: unit_price must not be negative", ErrValidation, i+1)
		}
		subtotal := in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2)
		out = append(out, Item{ProductID: in.ProductID, Quantity: in.Quantity, UnitPrice: in.UnitPrice, Subtotal: subtotal, Notes: in.Notes})
		total = total.Add(subtotal)
	}
	return out, total, nil
}
