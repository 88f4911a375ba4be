package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/types"
)

// Invoice is a calculated document that accepts payments.
//
// Subtotal, DiscountAmount, TaxAmount and TotalAmount are fixed at creation
// from calc.Result and satisfy TotalAmount = Subtotal - DiscountAmount +
// TaxAmount. PaidAmount, BalanceAmount, Status and Overdue are derived and
// only change through Recompute.
type Invoice struct {
	types.Entity
	ID             id.InvoiceID   `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Number         string         `json:"number,omitempty"`
	CustomerRef    string         `json:"customer_ref,omitempty"`
	Currency       string         `json:"currency"`
	DecimalPlaces  int32          `json:"decimal_places"`
	Lines          []LineItem     `json:"lines"`
	Discount       *calc.Discount `json:"discount,omitempty"`
	Subtotal       types.Money    `json:"subtotal"`
	DiscountAmount types.Money    `json:"discount_amount"`
	TaxAmount      types.Money    `json:"tax_amount"`
	TotalAmount    types.Money    `json:"total_amount"`
	PaidAmount     types.Money    `json:"paid_amount"`
	BalanceAmount  types.Money    `json:"balance_amount"`
	Status         Status         `json:"status"`
	Overdue        bool           `json:"overdue"`
	IssueDate      time.Time      `json:"issue_date"`
	DueDate        *time.Time     `json:"due_date,omitempty"`

	// FX snapshot taken at creation. Zero values when the invoice is already
	// in the reporting currency.
	FXRateID          id.FXRateID     `json:"fx_rate_id,omitempty"`
	ReportingCurrency string          `json:"reporting_currency,omitempty"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`

	SentAt         *time.Time     `json:"sent_at,omitempty"`
	WrittenOffAt   *time.Time     `json:"written_off_at,omitempty"`
	WriteOffReason string         `json:"write_off_reason,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// LineItem is a persisted invoice line. Only the calculation inputs are
// stored; derived amounts are recomputed from them on demand.
type LineItem struct {
	ID        id.LineItemID `json:"id"`
	InvoiceID id.InvoiceID  `json:"invoice_id"`
	Position  int           `json:"position"`
	calc.LineItem
}

// Document rebuilds the calc.Document this invoice was created from.
func (inv *Invoice) Document() calc.Document {
	doc := calc.Document{
		Currency:      inv.Currency,
		DecimalPlaces: inv.DecimalPlaces,
		Discount:      inv.Discount,
		Lines:         make([]calc.LineItem, len(inv.Lines)),
	}
	for i, l := range inv.Lines {
		doc.Lines[i] = l.LineItem
	}
	return doc
}

// ApplyTotals copies the document totals from a calculation result and
// resets the payment side to unpaid.
func (inv *Invoice) ApplyTotals(res *calc.Result) {
	inv.Currency = res.Currency
	inv.DecimalPlaces = res.DecimalPlaces
	inv.Subtotal = res.Totals.Subtotal
	inv.DiscountAmount = res.Totals.DiscountAmount
	inv.TaxAmount = res.Totals.TaxAmount
	inv.TotalAmount = res.Totals.GrandTotal
	inv.PaidAmount = types.Zero(res.Currency)
	inv.BalanceAmount = res.Totals.GrandTotal
}

// Clone returns a deep copy.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	c.Lines = append([]LineItem(nil), inv.Lines...)
	for i := range c.Lines {
		if c.Lines[i].Discount != nil {
			dd := *c.Lines[i].Discount
			c.Lines[i].Discount = &dd
		}
	}
	if inv.Discount != nil {
		dd := *inv.Discount
		c.Discount = &dd
	}
	c.DueDate = cloneTime(inv.DueDate)
	c.SentAt = cloneTime(inv.SentAt)
	c.WrittenOffAt = cloneTime(inv.WrittenOffAt)
	c.Metadata = cloneMap(inv.Metadata)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
