package calc_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, want string, got types.Money, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Amount.Equal(d(want)), append([]any{"want %s, got %s", want, got.Amount.String()}, msgAndArgs...)...)
}

func TestCalculateLine_TaxInclusiveRoundTrip(t *testing.T) {
	line, err := calc.CalculateLine(calc.LineItem{
		Quantity:     d("1"),
		UnitPrice:    d("172.50"),
		TaxInclusive: true,
		TaxRate:      d("0.15"),
	}, "NZD", 2)
	require.NoError(t, err)

	assertAmount(t, "150.00", line.UnitPriceExclusive)
	assertAmount(t, "150.00", line.Subtotal)
	assertAmount(t, "22.50", line.TaxAmount)
	assertAmount(t, "172.50", line.Total)
	assert.Equal(t, "NZD", line.Total.Currency)
}

func TestCalculateLine_PercentageDiscountScenario(t *testing.T) {
	line, err := calc.CalculateLine(calc.LineItem{
		Quantity:  d("40"),
		UnitPrice: d("150.00"),
		TaxRate:   d("0.15"),
		Discount:  &calc.Discount{Type: calc.DiscountPercentage, Value: d("10")},
	}, "USD", 2)
	require.NoError(t, err)

	assertAmount(t, "6000.00", line.Subtotal)
	assertAmount(t, "600.00", line.DiscountAmount)
	assertAmount(t, "5400.00", line.TaxableAmount)
	assertAmount(t, "810.00", line.TaxAmount)
	assertAmount(t, "6210.00", line.Total)
}

func TestCalculateLine_FixedDiscountIsClamped(t *testing.T) {
	line, err := calc.CalculateLine(calc.LineItem{
		Quantity:  d("2"),
		UnitPrice: d("10"),
		TaxRate:   d("0.10"),
		Discount:  &calc.Discount{Type: calc.DiscountFixed, Value: d("50")},
	}, "USD", 2)
	require.NoError(t, err)

	assertAmount(t, "20.00", line.Subtotal)
	assertAmount(t, "20.00", line.DiscountAmount)
	assertAmount(t, "0", line.TaxableAmount)
	assertAmount(t, "0", line.TaxAmount)
	assertAmount(t, "0", line.Total)
}

func TestCalculateLine_RoundsHalfUpOnlyAtEmission(t *testing.T) {
	// 3 x 0.335 = 1.005 stays unrounded until emission, then becomes 1.01.
	line, err := calc.CalculateLine(calc.LineItem{
		Quantity:  d("3"),
		UnitPrice: d("0.335"),
		TaxRate:   d("0"),
	}, "USD", 2)
	require.NoError(t, err)
	assertAmount(t, "1.01", line.Subtotal)
	assertAmount(t, "1.01", line.Total)

	yen, err := calc.CalculateLine(calc.LineItem{
		Quantity:  d("1"),
		UnitPrice: d("1050"),
		TaxRate:   d("0.08"),
		Discount:  &calc.Discount{Type: calc.DiscountPercentage, Value: d("3")},
	}, "JPY", 0)
	require.NoError(t, err)
	// 1050 - 31.5 = 1018.5 taxable; tax 81.48 -> 81; total 1019 + 81
	assertAmount(t, "1019", yen.TaxableAmount)
	assertAmount(t, "81", yen.TaxAmount)
	assertAmount(t, "1100", yen.Total)
}

func TestValidateLine(t *testing.T) {
	tests := []struct {
		name  string
		item  calc.LineItem
		field string
	}{
		{"zero quantity", calc.LineItem{Quantity: d("0"), UnitPrice: d("1")}, "lines[0].quantity"},
		{"negative quantity", calc.LineItem{Quantity: d("-1"), UnitPrice: d("1")}, "lines[0].quantity"},
		{"negative price", calc.LineItem{Quantity: d("1"), UnitPrice: d("-1")}, "lines[0].unit_price"},
		{"tax rate above one", calc.LineItem{Quantity: d("1"), UnitPrice: d("1"), TaxRate: d("1.5")}, "lines[0].tax_rate"},
		{"tax rate too precise", calc.LineItem{Quantity: d("1"), UnitPrice: d("1"), TaxRate: d("0.12345")}, "lines[0].tax_rate"},
		{
			"negative discount",
			calc.LineItem{Quantity: d("1"), UnitPrice: d("1"), Discount: &calc.Discount{Type: calc.DiscountFixed, Value: d("-1")}},
			"lines[0].discount.value",
		},
		{
			"percentage above 100",
			calc.LineItem{Quantity: d("1"), UnitPrice: d("1"), Discount: &calc.Discount{Type: calc.DiscountPercentage, Value: d("100.01")}},
			"lines[0].discount.value",
		},
		{
			"unknown discount type",
			calc.LineItem{Quantity: d("1"), UnitPrice: d("1"), Discount: &calc.Discount{Type: "bogus", Value: d("1")}},
			"lines[0].discount.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.CalculateLine(tt.item, "USD", 2)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrValidation)

			var ve *types.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := calc.CalculateLine(calc.LineItem{
		Quantity:  d("1"),
		UnitPrice: d("1"),
		Discount:  &calc.Discount{Type: calc.DiscountPercentage, Value: d("100")},
	}, "USD", 2)
	assert.NoError(t, err, "100% is the inclusive upper bound")
}

func TestCalculate_MixedRateBreakdown(t *testing.T) {
	res, err := calc.Calculate(calc.Document{
		Currency:      "usd",
		DecimalPlaces: 2,
		Lines: []calc.LineItem{
			{Quantity: d("3"), UnitPrice: d("33.33"), TaxRate: d("0.15")},
			{Quantity: d("1"), UnitPrice: d("250"), TaxRate: d("0")},
			{Quantity: d("7"), UnitPrice: d("12.99"), TaxRate: d("0.10")},
			{Quantity: d("2"), UnitPrice: d("0.01"), TaxRate: d("0.15")},
		},
	})
	require.NoError(t, err)

	require.Len(t, res.TaxBreakdown, 3)
	assert.True(t, res.TaxBreakdown[0].Rate.Equal(d("0")))
	assert.True(t, res.TaxBreakdown[1].Rate.Equal(d("0.10")))
	assert.True(t, res.TaxBreakdown[2].Rate.Equal(d("0.15")))

	groupTax := types.Zero("USD")
	groupSum := types.Zero("USD")
	for _, g := range res.TaxBreakdown {
		groupTax = groupTax.Add(g.TaxAmount)
		groupSum = groupSum.Add(g.TaxableAmount).Add(g.TaxAmount)
	}
	assert.True(t, groupTax.Equal(res.Totals.TaxAmount))
	assert.True(t, groupSum.Equal(res.LinesTotal))

	// 99.99 * 0.15 = 14.9985 -> 15.00; 90.93 * 0.10 = 9.093 -> 9.09; 0.02 * 0.15 = 0.003 -> 0
	assertAmount(t, "24.09", res.Totals.TaxAmount)
	assertAmount(t, "15.00", res.TaxBreakdown[2].TaxAmount)
	assert.Equal(t, "USD", res.Currency)
}

func TestCalculate_DocumentDiscountAppliesToLineTotals(t *testing.T) {
	res, err := calc.Calculate(calc.Document{
		Currency:      "USD",
		DecimalPlaces: 2,
		Lines: []calc.LineItem{
			{Quantity: d("1"), UnitPrice: d("100"), TaxRate: d("0.15")},
			{Quantity: d("1"), UnitPrice: d("100"), TaxRate: d("0"), Discount: &calc.Discount{Type: calc.DiscountFixed, Value: d("20")}},
		},
		Discount: &calc.Discount{Type: calc.DiscountPercentage, Value: d("10")},
	})
	require.NoError(t, err)

	// line totals: 115.00 + 80.00 = 195.00; 10% document discount = 19.50
	assertAmount(t, "195.00", res.LinesTotal)
	assertAmount(t, "20.00", res.LineDiscountAmount)
	assertAmount(t, "19.50", res.DocumentDiscountAmount)
	assertAmount(t, "200.00", res.Totals.Subtotal)
	assertAmount(t, "39.50", res.Totals.DiscountAmount)
	assertAmount(t, "15.00", res.Totals.TaxAmount)
	assertAmount(t, "175.50", res.Totals.GrandTotal)

	identity := res.Totals.Subtotal.Sub(res.Totals.DiscountAmount).Add(res.Totals.TaxAmount)
	assert.True(t, identity.Equal(res.Totals.GrandTotal))
}

func TestCalculate_FixedDocumentDiscountIsClamped(t *testing.T) {
	res, err := calc.Calculate(calc.Document{
		Currency:      "USD",
		DecimalPlaces: 2,
		Lines:         []calc.LineItem{{Quantity: d("1"), UnitPrice: d("10"), TaxRate: d("0")}},
		Discount:      &calc.Discount{Type: calc.DiscountFixed, Value: d("25")},
	})
	require.NoError(t, err)
	assertAmount(t, "10.00", res.DocumentDiscountAmount)
	assertAmount(t, "0", res.Totals.GrandTotal)
}

func TestCalculate_Validation(t *testing.T) {
	_, err := calc.Calculate(calc.Document{Currency: "USD", DecimalPlaces: 2})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = calc.Calculate(calc.Document{
		Currency:      "US",
		DecimalPlaces: 2,
		Lines:         []calc.LineItem{{Quantity: d("0"), UnitPrice: d("1")}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)

	var me *types.MultiError
	require.ErrorAs(t, err, &me)
	assert.Len(t, me.Errors, 2)
}

func TestCalculateWithTrace_SameNumbers(t *testing.T) {
	doc := calc.Document{
		Currency:      "EUR",
		DecimalPlaces: 2,
		Lines: []calc.LineItem{
			{Quantity: d("2.5"), UnitPrice: d("99.99"), TaxInclusive: true, TaxRate: d("0.21"), Discount: &calc.Discount{Type: calc.DiscountPercentage, Value: d("12.5")}},
			{Quantity: d("1"), UnitPrice: d("10"), TaxRate: d("0.09")},
		},
		Discount: &calc.Discount{Type: calc.DiscountFixed, Value: d("5")},
	}

	plain, err := calc.Calculate(doc)
	require.NoError(t, err)
	traced, err := calc.CalculateWithTrace(doc)
	require.NoError(t, err)

	require.NotNil(t, traced.Trace)
	assert.Nil(t, plain.Trace)
	traced.Trace = nil
	assert.Equal(t, plain, traced)
}

func TestCalculateLine_InclusiveDivisionScale(t *testing.T) {
	res, err := calc.CalculateWithTrace(calc.Document{
		Currency:      "NZD",
		DecimalPlaces: 2,
		Lines:         []calc.LineItem{{Quantity: d("1"), UnitPrice: d("100.00"), TaxInclusive: true, TaxRate: d("0.15")}},
	})
	require.NoError(t, err)

	v, ok := res.Trace.Value(0, calc.StageUnitPriceExclusive)
	require.True(t, ok)
	assert.True(t, v.Equal(d("86.9565217391304348")), v.String())
	assert.True(t, res.Totals.GrandTotal.Amount.Equal(d("100.00")))
}

func TestCalculateWithTrace_RecordsEveryStage(t *testing.T) {
	res, err := calc.CalculateWithTrace(calc.Document{
		Currency:      "NZD",
		DecimalPlaces: 2,
		Lines:         []calc.LineItem{{Quantity: d("1"), UnitPrice: d("172.50"), TaxInclusive: true, TaxRate: d("0.15")}},
	})
	require.NoError(t, err)

	stages := []calc.Stage{
		calc.StageUnitPriceExclusive, calc.StageSubtotal, calc.StageDiscount,
		calc.StageTaxable, calc.StageTax, calc.StageTotal,
	}
	steps := res.Trace.ForLine(0)
	require.Len(t, steps, len(stages))
	for i, s := range stages {
		assert.Equal(t, s, steps[i].Stage)
	}

	v, ok := res.Trace.Value(0, calc.StageUnitPriceExclusive)
	require.True(t, ok)
	assert.True(t, v.Equal(d("150")))

	v, ok = res.Trace.Value(calc.DocumentLine, calc.StageGrandTotal)
	require.True(t, ok)
	assert.True(t, v.Equal(d("172.50")))
}
