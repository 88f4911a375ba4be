package calc_test

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/types"
)

var propertyRates = []string{"0", "0.05", "0.09", "0.1", "0.125", "0.15", "0.21"}

func randomDecimal(r *rand.Rand, maxUnits int64, places int32) decimal.Decimal {
	scale := int64(1)
	for range places {
		scale *= 10
	}
	return decimal.New(r.Int64N(maxUnits*scale), -places)
}

func randomDiscount(r *rand.Rand) *calc.Discount {
	switch r.IntN(3) {
	case 0:
		return nil
	case 1:
		return &calc.Discount{Type: calc.DiscountPercentage, Value: randomDecimal(r, 101, 1).Min(decimal.NewFromInt(100))}
	default:
		return &calc.Discount{Type: calc.DiscountFixed, Value: randomDecimal(r, 500, 2)}
	}
}

func randomDocument(r *rand.Rand) calc.Document {
	places := []int32{0, 2, 3}[r.IntN(3)]
	doc := calc.Document{
		Currency:      "XTS",
		DecimalPlaces: places,
		Discount:      randomDiscount(r),
	}
	for range 1 + r.IntN(8) {
		doc.Lines = append(doc.Lines, calc.LineItem{
			Quantity:     randomDecimal(r, 100, 2).Add(decimal.New(1, -2)),
			UnitPrice:    randomDecimal(r, 10000, 2),
			TaxInclusive: r.IntN(2) == 0,
			TaxRate:      decimal.RequireFromString(propertyRates[r.IntN(len(propertyRates))]),
			Discount:     randomDiscount(r),
		})
	}
	return doc
}

func onGrid(m types.Money, places int32) bool {
	return m.Amount.Equal(m.Amount.Round(places))
}

func TestProperty_DocumentIdentities(t *testing.T) {
	r := rand.New(rand.NewPCG(20240917, 42))

	for i := range 2000 {
		doc := randomDocument(r)
		res, err := calc.Calculate(doc)
		require.NoError(t, err, "case %d", i)

		tot := res.Totals
		require.True(t,
			tot.Subtotal.Sub(tot.DiscountAmount).Add(tot.TaxAmount).Equal(tot.GrandTotal),
			"case %d: grand total identity: %+v", i, tot)
		require.False(t, tot.GrandTotal.IsNegative(), "case %d", i)

		groupSum := types.Zero(res.Currency)
		groupTax := types.Zero(res.Currency)
		for _, g := range res.TaxBreakdown {
			groupSum = groupSum.Add(g.TaxableAmount).Add(g.TaxAmount)
			groupTax = groupTax.Add(g.TaxAmount)
		}
		require.True(t, groupSum.Equal(res.LinesTotal), "case %d: breakdown vs line totals", i)
		require.True(t, groupTax.Equal(tot.TaxAmount), "case %d: breakdown vs tax", i)

		for _, line := range res.Lines {
			require.True(t, line.Subtotal.Sub(line.DiscountAmount).Equal(line.TaxableAmount), "case %d line %d", i, line.Index)
			require.True(t, line.TaxableAmount.Add(line.TaxAmount).Equal(line.Total), "case %d line %d", i, line.Index)
			require.False(t, line.TaxableAmount.IsNegative(), "case %d line %d", i, line.Index)
			require.False(t, line.DiscountAmount.IsNegative(), "case %d line %d", i, line.Index)
			for _, m := range []types.Money{line.Subtotal, line.DiscountAmount, line.TaxableAmount, line.TaxAmount, line.Total} {
				require.True(t, onGrid(m, doc.DecimalPlaces), "case %d line %d: %s not rounded", i, line.Index, m.Amount)
			}
		}
		for _, m := range []types.Money{tot.Subtotal, tot.DiscountAmount, tot.TaxAmount, tot.GrandTotal} {
			require.True(t, onGrid(m, doc.DecimalPlaces), "case %d: %s not rounded", i, m.Amount)
		}
	}
}

func TestProperty_TraceIsPureObserver(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))

	for i := range 500 {
		doc := randomDocument(r)
		plain, err := calc.Calculate(doc)
		require.NoError(t, err)
		traced, err := calc.CalculateWithTrace(doc)
		require.NoError(t, err)

		require.True(t, plain.Totals.GrandTotal.Equal(traced.Totals.GrandTotal), "case %d", i)
		require.True(t, plain.Totals.TaxAmount.Equal(traced.Totals.TaxAmount), "case %d", i)
		require.True(t, plain.Totals.DiscountAmount.Equal(traced.Totals.DiscountAmount), "case %d", i)

		grand, ok := traced.Trace.Value(calc.DocumentLine, calc.StageGrandTotal)
		require.True(t, ok)
		require.True(t, grand.Equal(traced.Totals.GrandTotal.Amount), "case %d", i)
	}
}

func TestProperty_TaxInclusiveRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	// For a unit quantity with no discount, extracting tax from an inclusive
	// price and adding it back reconstructs the price within one rounding unit.
	for i := range 2000 {
		price := randomDecimal(r, 100000, 2)
		rate := decimal.RequireFromString(propertyRates[r.IntN(len(propertyRates))])

		line, err := calc.CalculateLine(calc.LineItem{
			Quantity:     decimal.NewFromInt(1),
			UnitPrice:    price,
			TaxInclusive: true,
			TaxRate:      rate,
		}, "XTS", 2)
		require.NoError(t, err)

		diff := line.Total.Amount.Sub(price).Abs()
		require.True(t, diff.LessThanOrEqual(decimal.New(1, -2)), "case %d: %s @ %s -> %s", i, price, rate, line.Total.Amount)
	}
}
