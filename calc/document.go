package calc

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xraph/reckon/types"
)

// maxDecimalPlaces bounds Document.DecimalPlaces.
const maxDecimalPlaces = 8

// Document is a quote or invoice draft to be calculated.
type Document struct {
	Currency      string     `json:"currency"`
	DecimalPlaces int32      `json:"decimal_places"`
	Lines         []LineItem `json:"lines"`
	Discount      *Discount  `json:"discount,omitempty"`
}

// Totals are the document-level figures.
//
// DiscountAmount is the sum of line discounts plus the document discount, so
// GrandTotal = Subtotal - DiscountAmount + TaxAmount holds exactly.
type Totals struct {
	Subtotal       types.Money `json:"subtotal"`
	DiscountAmount types.Money `json:"discount_amount"`
	TaxAmount      types.Money `json:"tax_amount"`
	GrandTotal     types.Money `json:"grand_total"`
}

// TaxGroup aggregates lines sharing one tax rate.
type TaxGroup struct {
	Rate          decimal.Decimal `json:"rate"`
	TaxableAmount types.Money     `json:"taxable_amount"`
	TaxAmount     types.Money     `json:"tax_amount"`
}

// Result is the output of Calculate.
type Result struct {
	Currency               string       `json:"currency"`
	DecimalPlaces          int32        `json:"decimal_places"`
	Lines                  []LineResult `json:"lines"`
	LinesTotal             types.Money  `json:"lines_total"`
	LineDiscountAmount     types.Money  `json:"line_discount_amount"`
	DocumentDiscountAmount types.Money  `json:"document_discount_amount"`
	Totals                 Totals       `json:"totals"`
	TaxBreakdown           []TaxGroup   `json:"tax_breakdown"`
	Trace                  *Trace       `json:"trace,omitempty"`
}

// Validate checks the whole document, reporting every invalid line.
func (d Document) Validate() error {
	var errs types.MultiError

	if len(types.NormalizeCurrency(d.Currency)) != 3 {
		errs.Add(types.Invalid("currency", "must be a 3-letter ISO 4217 code"))
	}
	if d.DecimalPlaces < 0 || d.DecimalPlaces > maxDecimalPlaces {
		errs.Add(types.Invalid("decimal_places", fmt.Sprintf("must be between 0 and %d", maxDecimalPlaces)))
	}
	if len(d.Lines) == 0 {
		errs.Add(types.Invalid("lines", "at least one line is required"))
	}
	for i, line := range d.Lines {
		errs.Add(ValidateLine(i, line))
	}
	errs.Add(validateDiscount("discount", d.Discount))

	if len(errs.Errors) == 1 {
		return errs.First()
	}
	return errs.ErrOrNil()
}

// Calculate resolves every line, then the document discount, then the totals.
func Calculate(doc Document) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return calculate(doc, nopRecorder{}), nil
}

// CalculateWithTrace is Calculate plus a record of every intermediate value.
// The numbers in the result are identical to Calculate's.
func CalculateWithTrace(doc Document) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	rec := &traceRecorder{trace: &Trace{}}
	res := calculate(doc, rec)
	res.Trace = rec.trace
	return res, nil
}

func calculate(doc Document, rec recorder) *Result {
	currency := types.NormalizeCurrency(doc.Currency)
	places := doc.DecimalPlaces
	money := func(d decimal.Decimal) types.Money { return types.Money{Amount: d, Currency: currency} }

	res := &Result{
		Currency:      currency,
		DecimalPlaces: places,
		Lines:         make([]LineResult, 0, len(doc.Lines)),
	}

	subtotal, lineDiscount, tax, linesTotal := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	groups := map[string]*TaxGroup{}

	for i, item := range doc.Lines {
		line := calculateLine(i, item, currency, places, rec)
		res.Lines = append(res.Lines, line)

		subtotal = subtotal.Add(line.Subtotal.Amount)
		lineDiscount = lineDiscount.Add(line.DiscountAmount.Amount)
		tax = tax.Add(line.TaxAmount.Amount)
		linesTotal = linesTotal.Add(line.Total.Amount)

		key := line.TaxRate.StringFixed(4)
		g, ok := groups[key]
		if !ok {
			g = &TaxGroup{Rate: line.TaxRate.Round(4), TaxableAmount: money(decimal.Zero), TaxAmount: money(decimal.Zero)}
			groups[key] = g
		}
		g.TaxableAmount = g.TaxableAmount.Add(line.TaxableAmount)
		g.TaxAmount = g.TaxAmount.Add(line.TaxAmount)
	}

	rec.record(DocumentLine, StageLinesSubtotal, subtotal)
	rec.record(DocumentLine, StageLinesDiscount, lineDiscount)
	rec.record(DocumentLine, StageLinesTax, tax)
	rec.record(DocumentLine, StageLinesTotal, linesTotal)

	// The document discount nets against the post-tax line totals.
	docDiscount := types.RoundHalfUp(discountAmount(doc.Discount, linesTotal), places)
	rec.record(DocumentLine, StageDocumentDiscount, docDiscount)

	grand := linesTotal.Sub(docDiscount)
	rec.record(DocumentLine, StageGrandTotal, grand)

	res.LinesTotal = money(linesTotal)
	res.LineDiscountAmount = money(lineDiscount)
	res.DocumentDiscountAmount = money(docDiscount)
	res.Totals = Totals{
		Subtotal:       money(subtotal),
		DiscountAmount: money(lineDiscount.Add(docDiscount)),
		TaxAmount:      money(tax),
		GrandTotal:     money(grand),
	}

	res.TaxBreakdown = make([]TaxGroup, 0, len(groups))
	for _, g := range groups {
		res.TaxBreakdown = append(res.TaxBreakdown, *g)
	}
	sort.Slice(res.TaxBreakdown, func(i, j int) bool {
		return res.TaxBreakdown[i].Rate.LessThan(res.TaxBreakdown[j].Rate)
	})

	return res
}
