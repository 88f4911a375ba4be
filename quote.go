package reckon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/types"
)

// QuoteRequest is a document to price. Nothing is persisted.
type QuoteRequest struct {
	Currency string          `json:"currency"`
	Lines    []calc.LineItem `json:"lines"`
	Discount *calc.Discount  `json:"discount,omitempty"`

	// Debug adds the calculation trace and the tax breakdown to the result.
	Debug bool `json:"debug,omitempty"`

	// ReportingCurrency overrides the engine's reporting currency for the
	// display conversion. AsOf picks the rate date (default: today).
	ReportingCurrency string    `json:"reporting_currency,omitempty"`
	AsOf              time.Time `json:"as_of,omitempty"`
}

// QuoteResult is the priced document.
type QuoteResult struct {
	ID           id.QuoteID        `json:"id"`
	Currency     string            `json:"currency"`
	Lines        []calc.LineResult `json:"lines"`
	Totals       calc.Totals       `json:"totals"`
	TaxBreakdown []calc.TaxGroup   `json:"tax_breakdown,omitempty"`
	Trace        *calc.Trace       `json:"trace,omitempty"`
	FX           *FXSnapshot       `json:"fx,omitempty"`
}

// FXSnapshot is the rate a document was converted at, plus its grand total
// in the reporting currency. The converted total is for display only.
type FXSnapshot struct {
	RateID        id.FXRateID     `json:"rate_id,omitempty"`
	Base          string          `json:"base"`
	Quote         string          `json:"quote"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom time.Time       `json:"effective_from"`
	Inverted      bool            `json:"inverted,omitempty"`
	GrandTotal    types.Money     `json:"grand_total"`
}

// CalculateQuote prices a document in its currency's precision. Quotes are
// pure calculations: they are not persisted and need no permission.
func (e *Engine) CalculateQuote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	var out *QuoteResult
	err := e.instr.Do(ctx, "quote.calculate", func(ctx context.Context) error {
		cur, err := e.currencies.Validate(ctx, "currency", req.Currency)
		if err != nil {
			return err
		}

		doc := calc.Document{
			Currency:      cur.Code,
			DecimalPlaces: cur.DecimalPlaces,
			Lines:         req.Lines,
			Discount:      req.Discount,
		}

		var res *calc.Result
		if req.Debug {
			res, err = calc.CalculateWithTrace(doc)
		} else {
			res, err = calc.Calculate(doc)
		}
		if err != nil {
			return err
		}

		out = &QuoteResult{
			ID:       id.NewQuoteID(),
			Currency: res.Currency,
			Lines:    res.Lines,
			Totals:   res.Totals,
		}
		if req.Debug {
			out.TaxBreakdown = res.TaxBreakdown
			out.Trace = res.Trace
		}

		reporting := types.NormalizeCurrency(req.ReportingCurrency)
		if reporting == "" {
			reporting = e.reportingCurrency
		}
		asOf := req.AsOf
		if asOf.IsZero() {
			asOf = e.now()
		}
		if out.FX, err = e.snapshot(ctx, res.Totals.GrandTotal, reporting, asOf); err != nil {
			return err
		}

		e.plugins.EmitQuoteCalculated(ctx, res)
		return nil
	}, attribute.String("currency", req.Currency), attribute.Int("lines", len(req.Lines)))
	if err != nil {
		return nil, e.fail(ctx, "calculate quote", err)
	}
	return out, nil
}

// snapshot resolves the rate from total's currency into reporting. It
// returns nil when no conversion is needed.
func (e *Engine) snapshot(ctx context.Context, total types.Money, reporting string, asOf time.Time) (*FXSnapshot, error) {
	if reporting == "" || reporting == total.Currency {
		return nil, nil //nolint:nilnil // no conversion
	}

	target, err := e.currencies.Validate(ctx, "reporting_currency", reporting)
	if err != nil {
		return nil, err
	}
	rate, err := e.resolver.Resolve(ctx, total.Currency, target.Code, asOf)
	if err != nil {
		return nil, err
	}

	return &FXSnapshot{
		RateID:        rate.ID,
		Base:          rate.Base,
		Quote:         rate.Quote,
		Rate:          rate.Rate,
		EffectiveFrom: rate.EffectiveFrom,
		Inverted:      rate.Inverted,
		GrandTotal:    fxrate.ConvertForDisplay(total, target.Code, rate.Rate, target.DecimalPlaces),
	}, nil
}
