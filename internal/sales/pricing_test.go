package sales

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineTotal(t *testing.T) {
	require.Equal(t, "30.00", LineTotal(3, dec("10"), dec("0"), dec("0")).StringFixed(2))
	require.Equal(t, "8.33", LineTotal(3, dec("2.50"), dec("0"), dec("0.11")).StringFixed(2))
	require.Equal(t, "8.99", LineTotal(1, dec("9.99"), dec("1"), dec("0")).StringFixed(2))
}

func TestPriceLinesTotals(t *testing.T) {
	lines, totals, err := PriceLines([]ItemInput{
		{ProductID: 1, Quantity: 2, UnitPrice: dec("100"), Discount: dec("10"), TaxRate: dec("0.1")},
		{ProductID: 2, Quantity: 1, UnitPrice: dec("5"), Total: decPtr("5.01")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "209.00", lines[0].Total.StringFixed(2))
	require.Equal(t, "214.00", totals.Total.StringFixed(2))
	require.Equal(t, "19.00", totals.Tax.StringFixed(2))
	require.Equal(t, "10.00", totals.Discount.StringFixed(2))

	require.NoError(t, CheckTotal(decPtr("214.01"), totals.Total))
	require.ErrorIs(t, CheckTotal(decPtr("214.02"), totals.Total), ErrTotalMismatch)
	require.NoError(t, CheckTotal(nil, totals.Total))
}

func TestPriceLinesValidation(t *testing.T) {
	cases := map[string]ItemInput{
		"missing product":   {Quantity: 1, UnitPrice: dec("1")},
		"zero quantity":     {ProductID: 1, UnitPrice: dec("1")},
		"negative price":    {ProductID: 1, Quantity: 1, UnitPrice: dec("-1")},
		"negative discount": {ProductID: 1, Quantity: 1, UnitPrice: dec("1"), Discount: dec("-1")},
		"tax above one":     {ProductID: 1, Quantity: 1, UnitPrice: dec("1"), TaxRate: dec("1.5")},
		"discount too big":  {ProductID: 1, Quantity: 1, UnitPrice: dec("1"), Discount: dec("2")},
		"price scale":       {ProductID: 1, Quantity: 1, UnitPrice: dec("1.005")},
		"discount scale":    {ProductID: 1, Quantity: 2, UnitPrice: dec("1"), Discount: dec("0.001")},
		"tax rate scale":    {ProductID: 1, Quantity: 1, UnitPrice: dec("1"), TaxRate: dec("0.12345")},
		"price too large":   {ProductID: 1, Quantity: 1, UnitPrice: dec("1000000000000")},
		"total too large":   {ProductID: 1, Quantity: 2, UnitPrice: dec("999999999999.99")},
	}
	for name, item := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := PriceLines([]ItemInput{item})
			require.ErrorIs(t, err, ErrInvalidLine)
		})
	}
	_, _, err := PriceLines(nil)
	require.ErrorIs(t, err, ErrNoItems)
}

func TestPriceLinesUsesColumnScale(t *testing.T) {
	lines, totals, err := PriceLines([]ItemInput{
		{ProductID: 1, Quantity: 3, UnitPrice: dec("2.500"), Discount: dec("0.10"), TaxRate: dec("0.110000")},
	})
	require.NoError(t, err)
	require.Equal(t, "2.50", lines[0].UnitPrice.StringFixed(2))
	require.Equal(t, "0.1100", lines[0].TaxRate.StringFixed(4))
	require.Equal(t, int32(-2), lines[0].UnitPrice.Exponent())
	require.Equal(t, int32(-2), lines[0].Discount.Exponent())
	require.Equal(t, int32(-4), lines[0].TaxRate.Exponent())
	require.Equal(t, "8.21", lines[0].Total.StringFixed(2))
	require.True(t, totals.Total.Equal(LineTotal(3, lines[0].UnitPrice, lines[0].Discount, lines[0].TaxRate)))

	_, _, err = PriceLines([]ItemInput{{ProductID: 1, Quantity: 1, UnitPrice: dec("9.99"), TaxRate: dec("0.12345")}})
	require.ErrorIs(t, err, ErrInvalidLine)
	require.ErrorContains(t, err, "tax_rate allows at most 4 decimal places")
}
