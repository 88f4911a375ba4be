// Package types provides common types used across reckon.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value as an arbitrary-precision decimal in the
// major currency unit. Floating point is never used for money.
//
// Intermediate results may carry full precision; anything persisted or
// returned as a final total is rounded with Round to the currency's decimal
// places.
//
// Examples:
//   - MustParse("49.00", "USD") = $49.00
//   - MustParse("100", "JPY") = ¥100
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217 uppercase: "USD", "EUR", "NZD"
}

// New creates a Money value. The currency code is normalized to uppercase.
func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

// Parse creates a Money value from a decimal string such as "172.50".
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse amount %q: %w", amount, err)
	}
	return New(d, currency), nil
}

// MustParse is like Parse but panics on error. Use for literals.
func MustParse(amount, currency string) Money {
	m, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return New(decimal.Zero, currency) }

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RoundHalfUp rounds d to places decimal places, with ties rounded away from
// zero (1.005 -> 1.01, -1.005 -> -1.01).
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Sub subtracts another Money value. Panics if currencies don't match.
func (m Money) Sub(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// Mul multiplies the Money by a decimal factor at full precision.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

// Neg returns the negative of the Money value.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	return Money{Amount: m.Amount.Abs(), Currency: m.Currency}
}

// Round returns the value rounded half-up to places decimal places.
func (m Money) Round(places int32) Money {
	return Money{Amount: RoundHalfUp(m.Amount, places), Currency: m.Currency}
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal returns true if both values have the same currency and numerically
// equal amounts (1.5 equals 1.50).
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Cmp compares two amounts. Panics if currencies don't match.
func (m Money) Cmp(other Money) int {
	m.assertSameCurrency(other)
	return m.Amount.Cmp(other.Amount)
}

// LessThan returns true if this Money is less than other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool { return m.Cmp(other) < 0 }

// GreaterThan returns true if this Money is greater than other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool { return m.Cmp(other) > 0 }

// Min returns the smaller of two Money values. Panics if currencies don't match.
func (m Money) Min(other Money) Money {
	if m.Cmp(other) <= 0 {
		return m
	}
	return other
}

// Max returns the larger of two Money values. Panics if currencies don't match.
func (m Money) Max(other Money) Money {
	if m.Cmp(other) >= 0 {
		return m
	}
	return other
}

// Formatting methods

// FormatMajor returns the amount with the currency's default number of
// decimal places and no symbol: "49.00" for USD, "100" for JPY.
func (m Money) FormatMajor() string {
	return m.Amount.StringFixed(DefaultDecimals(m.Currency))
}

// String returns a human-readable string with currency symbol.
// Examples: "$49.00", "€199.00", "£99.00", "¥100"
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

type moneyJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Display  string          `json:"display,omitempty"`
}

// MarshalJSON implements json.Marshaler. The amount keeps its full precision;
// display is informational only.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = New(raw.Amount, raw.Currency)
	return nil
}

// Helper functions

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	symbols := map[string]string{
		"USD": "$",
		"EUR": "€",
		"GBP": "£",
		"JPY": "¥",
		"CAD": "C$",
		"AUD": "A$",
		"NZD": "NZ$",
		"CHF": "CHF ",
		"CNY": "¥",
		"SEK": "kr ",
	}
	if sym, ok := symbols[NormalizeCurrency(currency)]; ok {
		return sym
	}
	return NormalizeCurrency(currency) + " "
}

// DefaultDecimals returns the ISO 4217 minor-unit count for well-known
// currencies, 2 otherwise. The currency registry is authoritative; this is
// the fallback used for display and for seeding the registry.
func DefaultDecimals(currency string) int32 {
	switch NormalizeCurrency(currency) {
	case "JPY", "KRW", "VND", "CLP", "PYG", "ISK", "UGX", "XAF", "XOF":
		return 0
	case "BHD", "IQD", "JOD", "KWD", "LYD", "OMR", "TND":
		return 3
	default:
		return 2
	}
}

// Sum calculates the sum of multiple Money values in the given currency.
// Panics if any value has a different currency.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
