package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/types"
)

// Monetary values are stored as Decimal128 so they round-trip exactly.
func toD128(d decimal.Decimal) bson.Decimal128 {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		// decimal.String never produces an unparseable literal.
		panic(fmt.Sprintf("reckon/mongo: decimal %s: %v", d, err))
	}
	return v
}

func fromD128(v bson.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}

// ==================== Currency models ====================

type currencyModel struct {
	Code          string    `bson:"_id"`
	Name          string    `bson:"name"`
	Symbol        string    `bson:"symbol,omitempty"`
	DecimalPlaces int32     `bson:"decimal_places"`
	Active        bool      `bson:"active"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toCurrencyModel(c *currency.Currency) *currencyModel {
	return &currencyModel{
		Code:          c.Code,
		Name:          c.Name,
		Symbol:        c.Symbol,
		DecimalPlaces: c.DecimalPlaces,
		Active:        c.Active,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func fromCurrencyModel(m *currencyModel) *currency.Currency {
	return &currency.Currency{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Code:          m.Code,
		Name:          m.Name,
		Symbol:        m.Symbol,
		DecimalPlaces: m.DecimalPlaces,
		Active:        m.Active,
	}
}

// ==================== FX rate models ====================

type fxRateModel struct {
	ID            string          `bson:"_id"`
	Base          string          `bson:"base"`
	Quote         string          `bson:"quote"`
	EffectiveFrom time.Time       `bson:"effective_from"`
	Rate          bson.Decimal128 `bson:"rate"`
	Source        string          `bson:"source,omitempty"`
	Verified      bool            `bson:"verified"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

func toFXRateModel(r *fxrate.Rate) *fxRateModel {
	return &fxRateModel{
		ID:            r.ID.String(),
		Base:          r.Base,
		Quote:         r.Quote,
		EffectiveFrom: r.EffectiveFrom,
		Rate:          toD128(r.Rate),
		Source:        r.Source,
		Verified:      r.Verified,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromFXRateModel(m *fxRateModel) (*fxrate.Rate, error) {
	rateID, err := id.ParseFXRateID(m.ID)
	if err != nil {
		return nil, err
	}
	rate, err := fromD128(m.Rate)
	if err != nil {
		return nil, err
	}
	return &fxrate.Rate{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            rateID,
		Base:          m.Base,
		Quote:         m.Quote,
		EffectiveFrom: fxrate.Date(m.EffectiveFrom),
		Rate:          rate,
		Source:        m.Source,
		Verified:      m.Verified,
	}, nil
}

// ==================== Invoice models ====================

type discountModel struct {
	Type  string          `bson:"type"`
	Value bson.Decimal128 `bson:"value"`
}

func toDiscountModel(d *calc.Discount) *discountModel {
	if d == nil {
		return nil
	}
	return &discountModel{Type: string(d.Type), Value: toD128(d.Value)}
}

func fromDiscountModel(m *discountModel) (*calc.Discount, error) {
	if m == nil {
		return nil, nil //nolint:nilnil // absent discount
	}
	v, err := fromD128(m.Value)
	if err != nil {
		return nil, err
	}
	return &calc.Discount{Type: calc.DiscountType(m.Type), Value: v}, nil
}

type lineItemModel struct {
	ID           string          `bson:"id"`
	Position     int             `bson:"position"`
	Description  string          `bson:"description,omitempty"`
	Quantity     bson.Decimal128 `bson:"quantity"`
	UnitPrice    bson.Decimal128 `bson:"unit_price"`
	TaxInclusive bool            `bson:"tax_inclusive"`
	TaxRate      bson.Decimal128 `bson:"tax_rate"`
	Discount     *discountModel  `bson:"discount,omitempty"`
	CategoryRef  string          `bson:"category_ref,omitempty"`
	RateCardRef  string          `bson:"rate_card_ref,omitempty"`
}

type invoiceModel struct {
	ID                string           `bson:"_id"`
	OrganizationID    string           `bson:"organization_id"`
	Number            string           `bson:"number,omitempty"`
	CustomerRef       string           `bson:"customer_ref,omitempty"`
	Currency          string           `bson:"currency"`
	DecimalPlaces     int32            `bson:"decimal_places"`
	Lines             []lineItemModel  `bson:"lines"`
	Discount          *discountModel   `bson:"discount,omitempty"`
	Subtotal          bson.Decimal128  `bson:"subtotal"`
	DiscountAmount    bson.Decimal128  `bson:"discount_amount"`
	TaxAmount         bson.Decimal128  `bson:"tax_amount"`
	TotalAmount       bson.Decimal128  `bson:"total_amount"`
	PaidAmount        bson.Decimal128  `bson:"paid_amount"`
	BalanceAmount     bson.Decimal128  `bson:"balance_amount"`
	Status            string           `bson:"status"`
	Overdue           bool             `bson:"overdue"`
	IssueDate         time.Time        `bson:"issue_date"`
	DueDate           *time.Time       `bson:"due_date,omitempty"`
	FXRateID          string           `bson:"fx_rate_id,omitempty"`
	ReportingCurrency string           `bson:"reporting_currency,omitempty"`
	ExchangeRate      *bson.Decimal128 `bson:"exchange_rate,omitempty"`
	SentAt            *time.Time       `bson:"sent_at,omitempty"`
	WrittenOffAt      *time.Time       `bson:"written_off_at,omitempty"`
	WriteOffReason    string           `bson:"write_off_reason,omitempty"`
	CreatedBy         string           `bson:"created_by,omitempty"`
	Metadata          map[string]any   `bson:"metadata,omitempty"`
	LockSeq           int64            `bson:"lock_seq"`
	CreatedAt         time.Time        `bson:"created_at"`
	UpdatedAt         time.Time        `bson:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	m := &invoiceModel{
		ID:                inv.ID.String(),
		OrganizationID:    inv.OrganizationID,
		Number:            inv.Number,
		CustomerRef:       inv.CustomerRef,
		Currency:          inv.Currency,
		DecimalPlaces:     inv.DecimalPlaces,
		Discount:          toDiscountModel(inv.Discount),
		Subtotal:          toD128(inv.Subtotal.Amount),
		DiscountAmount:    toD128(inv.DiscountAmount.Amount),
		TaxAmount:         toD128(inv.TaxAmount.Amount),
		TotalAmount:       toD128(inv.TotalAmount.Amount),
		PaidAmount:        toD128(inv.PaidAmount.Amount),
		BalanceAmount:     toD128(inv.BalanceAmount.Amount),
		Status:            string(inv.Status),
		Overdue:           inv.Overdue,
		IssueDate:         inv.IssueDate,
		DueDate:           inv.DueDate,
		FXRateID:          inv.FXRateID.String(),
		ReportingCurrency: inv.ReportingCurrency,
		SentAt:            inv.SentAt,
		WrittenOffAt:      inv.WrittenOffAt,
		WriteOffReason:    inv.WriteOffReason,
		CreatedBy:         inv.CreatedBy,
		Metadata:          inv.Metadata,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
	}
	if !inv.FXRateID.IsNil() {
		rate := toD128(inv.ExchangeRate)
		m.ExchangeRate = &rate
	}

	m.Lines = make([]lineItemModel, len(inv.Lines))
	for i, l := range inv.Lines {
		m.Lines[i] = lineItemModel{
			ID:           l.ID.String(),
			Position:     l.Position,
			Description:  l.Description,
			Quantity:     toD128(l.Quantity),
			UnitPrice:    toD128(l.UnitPrice),
			TaxInclusive: l.TaxInclusive,
			TaxRate:      toD128(l.TaxRate),
			Discount:     toDiscountModel(l.Discount),
			CategoryRef:  l.CategoryRef,
			RateCardRef:  l.RateCardRef,
		}
	}
	return m
}

// decimals converts a set of Decimal128 fields, stopping at the first error.
type decimals struct{ err error }

func (d *decimals) get(v bson.Decimal128) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	out, err := fromD128(v)
	d.err = err
	return out
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	fxID, err := id.ParseOptional(m.FXRateID, id.PrefixFXRate)
	if err != nil {
		return nil, err
	}
	discount, err := fromDiscountModel(m.Discount)
	if err != nil {
		return nil, err
	}

	var conv decimals
	money := func(v bson.Decimal128) types.Money {
		return types.Money{Amount: conv.get(v), Currency: m.Currency}
	}

	inv := &invoice.Invoice{
		Entity:            types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                invID,
		OrganizationID:    m.OrganizationID,
		Number:            m.Number,
		CustomerRef:       m.CustomerRef,
		Currency:          m.Currency,
		DecimalPlaces:     m.DecimalPlaces,
		Discount:          discount,
		Subtotal:          money(m.Subtotal),
		DiscountAmount:    money(m.DiscountAmount),
		TaxAmount:         money(m.TaxAmount),
		TotalAmount:       money(m.TotalAmount),
		PaidAmount:        money(m.PaidAmount),
		BalanceAmount:     money(m.BalanceAmount),
		Status:            invoice.Status(m.Status),
		Overdue:           m.Overdue,
		IssueDate:         m.IssueDate,
		DueDate:           m.DueDate,
		FXRateID:          fxID,
		ReportingCurrency: m.ReportingCurrency,
		SentAt:            m.SentAt,
		WrittenOffAt:      m.WrittenOffAt,
		WriteOffReason:    m.WriteOffReason,
		CreatedBy:         m.CreatedBy,
		Metadata:          plainDoc(m.Metadata),
	}
	if m.ExchangeRate != nil {
		inv.ExchangeRate = conv.get(*m.ExchangeRate)
	}

	inv.Lines = make([]invoice.LineItem, len(m.Lines))
	for i, l := range m.Lines {
		lineID, err := id.ParseLineItemID(l.ID)
		if err != nil {
			return nil, err
		}
		d, err := fromDiscountModel(l.Discount)
		if err != nil {
			return nil, err
		}
		inv.Lines[i] = invoice.LineItem{
			ID:        lineID,
			InvoiceID: invID,
			Position:  l.Position,
			LineItem: calc.LineItem{
				Description:  l.Description,
				Quantity:     conv.get(l.Quantity),
				UnitPrice:    conv.get(l.UnitPrice),
				TaxInclusive: l.TaxInclusive,
				TaxRate:      conv.get(l.TaxRate),
				Discount:     d,
				CategoryRef:  l.CategoryRef,
				RateCardRef:  l.RateCardRef,
			},
		}
	}
	if conv.err != nil {
		return nil, fmt.Errorf("reckon/mongo: invoice %s: %w", m.ID, conv.err)
	}
	return inv, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	ID             string          `bson:"_id"`
	OrganizationID string          `bson:"organization_id"`
	InvoiceID      string          `bson:"invoice_id"`
	Amount         bson.Decimal128 `bson:"amount"`
	Currency       string          `bson:"currency"`
	Status         string          `bson:"status"`
	Method         string          `bson:"method,omitempty"`
	Reference      string          `bson:"reference,omitempty"`
	IdempotencyKey string          `bson:"idempotency_key,omitempty"`
	ReceivedAt     time.Time       `bson:"received_at"`
	CreatedBy      string          `bson:"created_by,omitempty"`
	VoidedAt       *time.Time      `bson:"voided_at,omitempty"`
	VoidedBy       string          `bson:"voided_by,omitempty"`
	VoidReason     string          `bson:"void_reason,omitempty"`
	CreatedAt      time.Time       `bson:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:             p.ID.String(),
		OrganizationID: p.OrganizationID,
		InvoiceID:      p.InvoiceID.String(),
		Amount:         toD128(p.Amount.Amount),
		Currency:       p.Amount.Currency,
		Status:         string(p.Status),
		Method:         p.Method,
		Reference:      p.Reference,
		IdempotencyKey: p.IdempotencyKey,
		ReceivedAt:     p.ReceivedAt,
		CreatedBy:      p.CreatedBy,
		VoidedAt:       p.VoidedAt,
		VoidedBy:       p.VoidedBy,
		VoidReason:     p.VoidReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	payID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}
	amount, err := fromD128(m.Amount)
	if err != nil {
		return nil, err
	}
	return &payment.Payment{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             payID,
		OrganizationID: m.OrganizationID,
		InvoiceID:      invID,
		Amount:         types.Money{Amount: amount, Currency: m.Currency},
		Status:         payment.Status(m.Status),
		Method:         m.Method,
		Reference:      m.Reference,
		IdempotencyKey: m.IdempotencyKey,
		ReceivedAt:     m.ReceivedAt,
		CreatedBy:      m.CreatedBy,
		VoidedAt:       m.VoidedAt,
		VoidedBy:       m.VoidedBy,
		VoidReason:     m.VoidReason,
	}, nil
}

// ==================== Idempotency models ====================

type idempotencyModel struct {
	ID             string    `bson:"_id"`
	OrganizationID string    `bson:"organization_id"`
	UserID         string    `bson:"user_id"`
	Route          string    `bson:"route"`
	Key            string    `bson:"key"`
	RequestHash    string    `bson:"request_hash"`
	Response       string    `bson:"response"`
	CreatedAt      time.Time `bson:"created_at"`
	ExpiresAt      time.Time `bson:"expires_at"`
}

func toIdempotencyModel(r *idempotency.Record) *idempotencyModel {
	return &idempotencyModel{
		ID:             r.ID.String(),
		OrganizationID: r.OrganizationID,
		UserID:         r.UserID,
		Route:          r.Route,
		Key:            r.Key,
		RequestHash:    r.RequestHash,
		Response:       string(r.Response),
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}

func fromIdempotencyModel(m *idempotencyModel) (*idempotency.Record, error) {
	recID, err := id.ParseIdempotencyID(m.ID)
	if err != nil {
		return nil, err
	}
	return &idempotency.Record{
		ID:             recID,
		OrganizationID: m.OrganizationID,
		UserID:         m.UserID,
		Route:          m.Route,
		Key:            m.Key,
		RequestHash:    m.RequestHash,
		Response:       []byte(m.Response),
		CreatedAt:      m.CreatedAt,
		ExpiresAt:      m.ExpiresAt,
	}, nil
}

// plainDoc converts decoded metadata into plain maps and slices so values
// compare equal to what was written.
func plainDoc(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.M:
		return plainDoc(t)
	case map[string]any:
		return plainDoc(t)
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}

func keyFilter(k idempotency.Key) bson.M {
	return bson.M{
		"organization_id": k.OrganizationID,
		"user_id":         k.UserID,
		"route":           k.Route,
		"key":             k.Key,
	}
}
