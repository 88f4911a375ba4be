// Package currency holds the ISO 4217 currency catalogue: codes, symbols
// and the number of minor-unit decimal places each currency rounds to.
package currency

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/reckon/types"
)

// MaxDecimalPlaces is the scale of persisted amount columns. Currencies
// with more minor units cannot be stored exactly and are rejected.
const MaxDecimalPlaces = 2

// Currency is a catalogue entry. DecimalPlaces drives every final rounding
// of amounts in this currency.
type Currency struct {
	types.Entity
	Code          string `json:"code"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol,omitempty"`
	DecimalPlaces int32  `json:"decimal_places"`
	Active        bool   `json:"active"`
}

// Validate checks the structural rules of a catalogue entry.
func (c *Currency) Validate() error {
	if !IsCode(c.Code) {
		return types.Invalid("code", "must be a 3-letter ISO 4217 code")
	}
	if strings.TrimSpace(c.Name) == "" {
		return types.Invalid("name", "is required")
	}
	if c.DecimalPlaces < 0 || c.DecimalPlaces > MaxDecimalPlaces {
		return types.Invalid("decimal_places", fmt.Sprintf("must be between 0 and %d", MaxDecimalPlaces))
	}
	return nil
}

// IsCode reports whether code is three upper-case ASCII letters.
func IsCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := range 3 {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// Store persists the catalogue.
type Store interface {
	// PutCurrency inserts or replaces the entry for c.Code.
	PutCurrency(ctx context.Context, c *Currency) error
	GetCurrency(ctx context.Context, code string) (*Currency, error)
	ListCurrencies(ctx context.Context) ([]*Currency, error)
}

// Defaults returns the catalogue seeded on engine start.
func Defaults() []*Currency {
	entries := []struct {
		code, name, symbol string
	}{
		{"USD", "US Dollar", "$"},
		{"EUR", "Euro", "€"},
		{"GBP", "Pound Sterling", "£"},
		{"NZD", "New Zealand Dollar", "NZ$"},
		{"AUD", "Australian Dollar", "A$"},
		{"CAD", "Canadian Dollar", "CA$"},
		{"CHF", "Swiss Franc", "CHF"},
		{"SGD", "Singapore Dollar", "S$"},
		{"HKD", "Hong Kong Dollar", "HK$"},
		{"SEK", "Swedish Krona", "kr"},
		{"NOK", "Norwegian Krone", "kr"},
		{"DKK", "Danish Krone", "kr"},
		{"ZAR", "South African Rand", "R"},
		{"INR", "Indian Rupee", "₹"},
		{"IDR", "Indonesian Rupiah", "Rp"},
		{"CNY", "Yuan Renminbi", "¥"},
		{"MXN", "Mexican Peso", "MX$"},
		{"BRL", "Brazilian Real", "R$"},
		{"JPY", "Yen", "¥"},
		{"KRW", "Won", "₩"},
		{"VND", "Dong", "₫"},
		{"CLP", "Chilean Peso", "CLP"},
		{"ISK", "Iceland Krona", "kr"},
	}

	out := make([]*Currency, len(entries))
	for i, e := range entries {
		out[i] = &Currency{
			Code:          e.code,
			Name:          e.name,
			Symbol:        e.symbol,
			DecimalPlaces: types.DefaultDecimals(e.code),
			Active:        true,
		}
	}
	return out
}
