package sales

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest accepted difference between a caller supplied
// total and the derived one.
var Tolerance = decimal.New(1, -2)

// Column scales of sale_items. Amounts are NUMERIC(14,2), tax_rate is
// NUMERIC(6,4).
const (
	amountPlaces  = 2
	taxRatePlaces = 4
)

var maxAmount = decimal.New(1, 12)

// fitsScale reports whether d is stored exactly with the given decimal places.
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Round(places))
}

// Totals are the header amounts of a sale.
type Totals struct {
	Total    decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
}

// LineTotal returns round2((unit_price*quantity - discount) * (1 + tax_rate)).
func LineTotal(quantity int, unitPrice, discount, taxRate decimal.Decimal) decimal.Decimal {
	net := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Sub(discount)
	return net.Mul(decimal.NewFromInt(1).Add(taxRate)).Round(2)
}

// PriceLines validates every line and derives its total. Nothing is read from
// storage, so a bad line fails before any write.
func PriceLines(items []ItemInput) ([]SaleItem, Totals, error) {
	if len(items) == 0 {
		return nil, Totals{}, ErrNoItems
	}
	one := decimal.NewFromInt(1)
	lines := make([]SaleItem, 0, len(items))
	var totals Totals
	for i, in := range items {
		switch {
		case in.ProductID <= 0:
			return nil, Totals{}, fmt.Errorf("%w: line %d: product_id is required", ErrInvalidLine, i+1)
		case in.Quantity <= 0:
			return nil, Totals{}, fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidLine, i+1)
		case in.UnitPrice.IsNegative():
			return nil, Totals{}, fmt.Errorf("%w: line %d: unit_price must not be negative", ErrInvalidLine, i+1)
		case in.Discount.IsNegative():
			return nil, Totals{}, fmt.Errorf("%w: line %d: discount must not be negative", ErrInvalidLine, i+1)
		case in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(one):
			return nil, Totals{}, fmt.Errorf("%w: line %d: tax_rate must be between 0 and 1", ErrInvalidLine, i+1)
		case !fitsScale(in.UnitPrice, amountPlaces):
			return nil, Totals{}, fmt.Errorf("%w: line %d: unit_price allows at most %d decimal places", ErrInvalidLine, i+1, amountPlaces)
		case !fitsScale(in.Discount, amountPlaces):
			return nil, Totals{}, fmt.Errorf("%w: line %d: discount allows at most %d decimal places", ErrInvalidLine, i+1, amountPlaces)
		case !fitsScale(in.TaxRate, taxRatePlaces):
			return nil, Totals{}, fmt.Errorf("%w: line %d: tax_rate allows at most %d decimal places", ErrInvalidLine, i+1, taxRatePlaces)
		}
		// Normalise so stored and derived values share the column scale.
		in.UnitPrice = in.UnitPrice.Round(amountPlaces)
		in.Discount = in.Discount.Round(amountPlaces)
		in.TaxRate = in.TaxRate.Round(taxRatePlaces)
		gross := in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
		if in.Discount.GreaterThan(gross) {
			return nil, Totals{}, fmt.Errorf("%w: line %d: discount exceeds line amount", ErrInvalidLine, i+1)
		}
		total := LineTotal(in.Quantity, in.UnitPrice, in.Discount, in.TaxRate)
		if gross.GreaterThanOrEqual(maxAmount) || total.GreaterThanOrEqual(maxAmount) {
			return nil, Totals{}, fmt.Errorf("%w: line %d: amount out of range", ErrInvalidLine, i+1)
		}
		if in.Total != nil && in.Total.Sub(total).Abs().GreaterThan(Tolerance) {
			return nil, Totals{}, fmt.Errorf("%w: line %d: got %s, expected %s", ErrTotalMismatch, i+1, in.Total.StringFixed(2), total.StringFixed(2))
		}
		lines = append(lines, SaleItem{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Discount:  in.Discount,
			TaxRate:   in.TaxRate,
			Total:     total,
		})
		totals.Total = totals.Total.Add(total)
		totals.Tax = totals.Tax.Add(gross.Sub(in.Discount).Mul(in.TaxRate).Round(2))
		totals.Discount = totals.Discount.Add(in.Discount)
	}
	return lines, totals, nil
}

// CheckTotal compares a caller supplied sale total with the derived one.
func CheckTotal(supplied *decimal.Decimal, derived decimal.Decimal) error {
	if supplied == nil {
		return nil
	}
	if supplied.Sub(derived).Abs().GreaterThan(Tolerance) {
		return fmt.Errorf("%w: total_amount %s, expected %s", ErrTotalMismatch, supplied.StringFixed(2), derived.StringFixed(2))
	}
	return nil
}
