// Package calc implements the deterministic line and document arithmetic
// used by quotes and invoices.
//
// Every function in this package is pure: no I/O, no clock, no globals.
// Intermediate values are exact except the tax-inclusive division, which
// keeps DivisionPlaces fractional digits. Only emitted line and document
// totals are rounded, half-up, to the document's decimal places.
package calc

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/reckon/types"
)

// DiscountType selects how a discount value is interpreted.
type DiscountType string

const (
	// DiscountPercentage interprets Value as percent points (10 means 10%).
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed interprets Value as an absolute amount in the document currency.
	DiscountFixed DiscountType = "fixed"
)

// Discount is a line-level or document-level discount.
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// LineItem is a single priced line on a quote or invoice.
type LineItem struct {
	Description  string          `json:"description,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TaxInclusive bool            `json:"tax_inclusive"`
	TaxRate      decimal.Decimal `json:"tax_rate"` // fraction: 0.15 = 15%
	Discount     *Discount       `json:"discount,omitempty"`
	CategoryRef  string          `json:"category_ref,omitempty"`
	RateCardRef  string          `json:"rate_card_ref,omitempty"`
}

// LineResult holds the emitted (rounded) values for one line.
//
// Subtotal - DiscountAmount = TaxableAmount and TaxableAmount + TaxAmount =
// Total hold exactly.
type LineResult struct {
	Index              int             `json:"index"`
	Description        string          `json:"description,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPriceExclusive types.Money     `json:"unit_price_exclusive"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	Subtotal           types.Money     `json:"subtotal"`
	DiscountAmount     types.Money     `json:"discount_amount"`
	TaxableAmount      types.Money     `json:"taxable_amount"`
	TaxAmount          types.Money     `json:"tax_amount"`
	Total              types.Money     `json:"total"`
}

// DivisionPlaces is the scale kept when a tax-inclusive price is divided
// back to its exclusive amount.
const DivisionPlaces = 16

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// CalculateLine computes a single line in isolation.
func CalculateLine(item LineItem, currency string, decimals int32) (LineResult, error) {
	if err := ValidateLine(0, item); err != nil {
		return LineResult{}, err
	}
	return calculateLine(0, item, types.NormalizeCurrency(currency), decimals, nopRecorder{}), nil
}

// ValidateLine checks a line before any arithmetic happens. index is used to
// build the field path in the returned ValidationError.
func ValidateLine(index int, item LineItem) error {
	field := func(name string) string { return fmt.Sprintf("lines[%d].%s", index, name) }

	if !item.Quantity.IsPositive() {
		return types.Invalid(field("quantity"), "must be greater than zero")
	}
	if item.UnitPrice.IsNegative() {
		return types.Invalid(field("unit_price"), "must not be negative")
	}
	if item.TaxRate.IsNegative() || item.TaxRate.GreaterThan(one) {
		return types.Invalid(field("tax_rate"), "must be between 0 and 1")
	}
	if !item.TaxRate.Equal(item.TaxRate.Round(4)) {
		return types.Invalid(field("tax_rate"), "at most 4 decimal places")
	}
	return validateDiscount(field("discount"), item.Discount)
}

func validateDiscount(field string, d *Discount) error {
	if d == nil {
		return nil
	}
	if d.Value.IsNegative() {
		return types.Invalid(field+".value", "must not be negative")
	}
	switch d.Type {
	case DiscountPercentage:
		if d.Value.GreaterThan(hundred) {
			return types.Invalid(field+".value", "percentage discount cannot exceed 100")
		}
	case DiscountFixed:
	default:
		return types.Invalid(field+".type", fmt.Sprintf("unknown discount type %q", d.Type))
	}
	return nil
}

// calculateLine runs the fixed per-line sequence. The input must already be
// validated.
func calculateLine(index int, item LineItem, currency string, decimals int32, rec recorder) LineResult {
	money := func(d decimal.Decimal) types.Money { return types.Money{Amount: d, Currency: currency} }

	// 1. tax-inclusive price to exclusive
	unit := item.UnitPrice
	if item.TaxInclusive && item.TaxRate.IsPositive() {
		unit = item.UnitPrice.DivRound(one.Add(item.TaxRate), DivisionPlaces)
	}
	rec.record(index, StageUnitPriceExclusive, unit)

	// 2. subtotal
	subtotal := item.Quantity.Mul(unit)
	rec.record(index, StageSubtotal, subtotal)

	// 3. discount
	discount := discountAmount(item.Discount, subtotal)
	rec.record(index, StageDiscount, discount)

	// 4. taxable
	taxable := subtotal.Sub(discount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	rec.record(index, StageTaxable, taxable)

	// 5. tax, rounded at emission
	tax := types.RoundHalfUp(taxable.Mul(item.TaxRate), decimals)
	rec.record(index, StageTax, tax)

	// 6. total. tax is already on the rounding grid, so rounding the sum once
	// equals round(taxable) + tax.
	subtotalR := types.RoundHalfUp(subtotal, decimals)
	taxableR := types.RoundHalfUp(taxable, decimals)
	total := taxableR.Add(tax)
	rec.record(index, StageTotal, total)

	return LineResult{
		Index:              index,
		Description:        item.Description,
		Quantity:           item.Quantity,
		UnitPriceExclusive: money(types.RoundHalfUp(unit, decimals)),
		TaxRate:            item.TaxRate,
		Subtotal:           money(subtotalR),
		DiscountAmount:     money(subtotalR.Sub(taxableR)),
		TaxableAmount:      money(taxableR),
		TaxAmount:          money(tax),
		Total:              money(total),
	}
}

// discountAmount applies a validated discount to base. Percentage discounts
// keep full precision; fixed discounts are clamped to base so the result
// never goes negative.
func discountAmount(d *Discount, base decimal.Decimal) decimal.Decimal {
	if d == nil || d.Value.IsZero() || !base.IsPositive() {
		return decimal.Zero
	}
	switch d.Type {
	case DiscountPercentage:
		return base.Mul(d.Value.Shift(-2))
	case DiscountFixed:
		return decimal.Min(d.Value, base)
	default:
		return decimal.Zero
	}
}
