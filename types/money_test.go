package types_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    types.Money
		amount   string
		currency string
	}{
		{"parse usd", types.MustParse("49.00", "usd"), "49", "USD"},
		{"parse jpy", types.MustParse("100", "JPY"), "100", "JPY"},
		{"new trims", types.New(dec("1.5"), " eur "), "1.5", "EUR"},
		{"zero", types.Zero("gbp"), "0", "GBP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.money.Amount.Equal(dec(tt.amount)), "amount %s", tt.money.Amount)
			assert.Equal(t, tt.currency, tt.money.Currency)
		})
	}

	_, err := types.Parse("12,50", "USD")
	assert.Error(t, err)
	assert.Panics(t, func() { types.MustParse("abc", "USD") })
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in     string
		places int32
		want   string
	}{
		{"1.005", 2, "1.01"},
		{"1.004", 2, "1"},
		{"2.5", 0, "3"},
		{"-2.5", 0, "-3"},
		{"-1.005", 2, "-1.01"},
		{"150.000000001", 2, "150"},
		{"0.0005", 3, "0.001"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := types.RoundHalfUp(dec(tt.in), tt.places)
			assert.True(t, got.Equal(dec(tt.want)), "RoundHalfUp(%s, %d) = %s, want %s", tt.in, tt.places, got, tt.want)
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := types.MustParse("10.25", "USD")
	b := types.MustParse("0.75", "USD")

	assert.True(t, a.Add(b).Equal(types.MustParse("11", "USD")))
	assert.True(t, a.Sub(b).Equal(types.MustParse("9.50", "USD")))
	assert.True(t, a.Mul(dec("0.15")).Equal(types.MustParse("1.5375", "USD")))
	assert.True(t, a.Mul(dec("0.15")).Round(2).Equal(types.MustParse("1.54", "USD")))
	assert.True(t, a.Neg().IsNegative())
	assert.True(t, a.Neg().Abs().Equal(a))

	assert.Panics(t, func() { a.Add(types.MustParse("1", "EUR")) })
	assert.Panics(t, func() { a.Sub(types.MustParse("1", "EUR")) })
}

func TestMoneyComparison(t *testing.T) {
	small := types.MustParse("1.50", "USD")
	big := types.MustParse("2", "USD")

	assert.True(t, small.LessThan(big))
	assert.True(t, big.GreaterThan(small))
	assert.True(t, small.Min(big).Equal(small))
	assert.True(t, small.Max(big).Equal(big))
	assert.True(t, types.MustParse("1.5", "USD").Equal(small))
	assert.False(t, types.MustParse("1.5", "EUR").Equal(small))
	assert.Panics(t, func() { small.Cmp(types.MustParse("1", "JPY")) })
}

func TestMoneyPredicates(t *testing.T) {
	assert.True(t, types.Zero("USD").IsZero())
	assert.False(t, types.Zero("USD").IsPositive())
	assert.True(t, types.MustParse("0.01", "USD").IsPositive())
	assert.True(t, types.MustParse("-0.01", "USD").IsNegative())
}

func TestMoneyFormat(t *testing.T) {
	tests := []struct {
		money types.Money
		major string
		str   string
	}{
		{types.MustParse("49", "USD"), "49.00", "$49.00"},
		{types.MustParse("100", "JPY"), "100", "¥100"},
		{types.MustParse("1.2345", "KWD"), "1.235", "KWD 1.235"},
		{types.MustParse("199", "EUR"), "199.00", "€199.00"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.major, tt.money.FormatMajor())
			assert.Equal(t, tt.str, tt.money.String())
		})
	}
}

func TestDefaultDecimals(t *testing.T) {
	assert.Equal(t, int32(2), types.DefaultDecimals("usd"))
	assert.Equal(t, int32(0), types.DefaultDecimals("JPY"))
	assert.Equal(t, int32(3), types.DefaultDecimals("KWD"))
	assert.Equal(t, int32(2), types.DefaultDecimals("XYZ"))
}

func TestMoneyJSONKeepsPrecision(t *testing.T) {
	m := types.MustParse("150.123456789", "NZD")
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":"150.123456789"`)
	assert.Contains(t, string(data), `"display":"NZ$150.12"`)

	var back types.Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(m))
}

func TestSum(t *testing.T) {
	got := types.Sum("usd",
		types.MustParse("1.10", "USD"),
		types.MustParse("2.20", "USD"),
		types.MustParse("3.30", "USD"),
	)
	assert.True(t, got.Equal(types.MustParse("6.60", "USD")))
	assert.True(t, types.Sum("USD").IsZero())
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category error
		cause    error
	}{
		{"validation", types.Invalid("amount", "must be positive"), types.ErrValidation, nil},
		{"overpayment", types.InvalidCause("amount", types.ErrOverpayment), types.ErrValidation, types.ErrOverpayment},
		{"not found", types.NotFound("invoice", "inv_x"), types.ErrNotFound, nil},
		{"conflict", types.Conflict("payment", types.ErrAlreadyVoided), types.ErrConflict, types.ErrAlreadyVoided},
		{"permission", types.Denied("u1", "payment.create"), types.ErrPermission, nil},
	}

	categories := []error{types.ErrValidation, types.ErrNotFound, types.ErrConflict, types.ErrPermission}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Join(errors.New("context"), tt.err)
			for _, c := range categories {
				assert.Equal(t, c == tt.category, errors.Is(wrapped, c), "category %v", c)
			}
			if tt.cause != nil {
				assert.ErrorIs(t, wrapped, tt.cause)
			}
		})
	}

	var ve *types.ValidationError
	require.ErrorAs(t, types.Invalid("quantity", "must be positive"), &ve)
	assert.Equal(t, "quantity", ve.Field)
}

func TestMultiError(t *testing.T) {
	var me types.MultiError
	assert.NoError(t, me.ErrOrNil())

	me.Add(nil)
	me.Add(types.Invalid("a", "bad"))
	me.Add(types.NotFound("invoice", "x"))
	require.Error(t, me.ErrOrNil())
	assert.ErrorIs(t, me.ErrOrNil(), types.ErrNotFound)
	assert.ErrorIs(t, me.First(), types.ErrValidation)
	assert.Contains(t, me.Error(), "2 errors")
}

func BenchmarkMoneyAdd(b *testing.B) {
	a := types.MustParse("10.25", "USD")
	c := types.MustParse("0.75", "USD")
	for b.Loop() {
		_ = a.Add(c)
	}
}
