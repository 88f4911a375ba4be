package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/types"
)

// ==================== Currency models ====================

type currencyModel struct {
	Code          string `gorm:"primaryKey;type:char(3)"`
	Name          string `gorm:"not null"`
	Symbol        string
	DecimalPlaces int32 `gorm:"not null"`
	Active        bool  `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (currencyModel) TableName() string { return "reckon_currencies" }

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
	ID            string          `gorm:"primaryKey;type:varchar(64)"`
	Base          string          `gorm:"type:char(3);not null;uniqueIndex:ux_reckon_fx_pair_date,priority:1"`
	Quote         string          `gorm:"type:char(3);not null;uniqueIndex:ux_reckon_fx_pair_date,priority:2"`
	EffectiveFrom time.Time       `gorm:"not null;uniqueIndex:ux_reckon_fx_pair_date,priority:3"`
	Rate          decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	Source        string
	Verified      bool `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (fxRateModel) TableName() string { return "reckon_fx_rates" }

func toFXRateModel(r *fxrate.Rate) *fxRateModel {
	return &fxRateModel{
		ID:            r.ID.String(),
		Base:          r.Base,
		Quote:         r.Quote,
		EffectiveFrom: r.EffectiveFrom,
		Rate:          r.Rate,
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
	return &fxrate.Rate{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            rateID,
		Base:          m.Base,
		Quote:         m.Quote,
		EffectiveFrom: fxrate.Date(m.EffectiveFrom),
		Rate:          m.Rate,
		Source:        m.Source,
		Verified:      m.Verified,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	ID                string              `gorm:"primaryKey;type:varchar(64)"`
	OrganizationID    string              `gorm:"not null;index:ix_reckon_invoices_org"`
	Number            string              `gorm:"type:varchar(64)"`
	CustomerRef       string              `gorm:"type:varchar(255)"`
	Currency          string              `gorm:"type:char(3);not null"`
	DecimalPlaces     int32               `gorm:"not null"`
	DiscountType      string              `gorm:"type:varchar(16)"`
	DiscountValue     decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Subtotal          decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	DiscountAmount    decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	TaxAmount         decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	TotalAmount       decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	PaidAmount        decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	BalanceAmount     decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	Status            string              `gorm:"type:varchar(16);not null;index"`
	Overdue           bool                `gorm:"not null"`
	IssueDate         time.Time
	DueDate           *time.Time
	FXRateID          *string            `gorm:"type:varchar(64)"`
	ReportingCurrency string             `gorm:"type:char(3)"`
	ExchangeRate      decimal.NullDecimal `gorm:"type:decimal(18,6)"`
	SentAt            *time.Time
	WrittenOffAt      *time.Time
	WriteOffReason    string
	CreatedBy         string
	Metadata          datatypes.JSONMap `gorm:"type:json"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Lines []lineItemModel `gorm:"foreignKey:InvoiceID;constraint:OnDelete:RESTRICT"`
}

func (invoiceModel) TableName() string { return "reckon_invoices" }

type lineItemModel struct {
	ID            string              `gorm:"primaryKey;type:varchar(64)"`
	InvoiceID     string              `gorm:"type:varchar(64);not null;index"`
	Position      int                 `gorm:"not null"`
	Description   string
	Quantity      decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	UnitPrice     decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	TaxInclusive  bool                `gorm:"not null"`
	TaxRate       decimal.Decimal     `gorm:"type:decimal(7,4);not null"`
	DiscountType  string              `gorm:"type:varchar(16)"`
	DiscountValue decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	CategoryRef   string
	RateCardRef   string
}

func (lineItemModel) TableName() string { return "reckon_invoice_lines" }

func splitDiscount(d *calc.Discount) (string, decimal.NullDecimal) {
	if d == nil {
		return "", decimal.NullDecimal{}
	}
	return string(d.Type), decimal.NewNullDecimal(d.Value)
}

func joinDiscount(kind string, value decimal.NullDecimal) *calc.Discount {
	if kind == "" || !value.Valid {
		return nil
	}
	return &calc.Discount{Type: calc.DiscountType(kind), Value: value.Decimal}
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	discountType, discountValue := splitDiscount(inv.Discount)

	m := &invoiceModel{
		ID:                inv.ID.String(),
		OrganizationID:    inv.OrganizationID,
		Number:            inv.Number,
		CustomerRef:       inv.CustomerRef,
		Currency:          inv.Currency,
		DecimalPlaces:     inv.DecimalPlaces,
		DiscountType:      discountType,
		DiscountValue:     discountValue,
		Subtotal:          inv.Subtotal.Amount,
		DiscountAmount:    inv.DiscountAmount.Amount,
		TaxAmount:         inv.TaxAmount.Amount,
		TotalAmount:       inv.TotalAmount.Amount,
		PaidAmount:        inv.PaidAmount.Amount,
		BalanceAmount:     inv.BalanceAmount.Amount,
		Status:            string(inv.Status),
		Overdue:           inv.Overdue,
		IssueDate:         inv.IssueDate,
		DueDate:           inv.DueDate,
		ReportingCurrency: inv.ReportingCurrency,
		SentAt:            inv.SentAt,
		WrittenOffAt:      inv.WrittenOffAt,
		WriteOffReason:    inv.WriteOffReason,
		CreatedBy:         inv.CreatedBy,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
	}
	if !inv.FXRateID.IsNil() {
		s := inv.FXRateID.String()
		m.FXRateID = &s
		m.ExchangeRate = decimal.NewNullDecimal(inv.ExchangeRate)
	}
	if inv.Metadata != nil {
		m.Metadata = datatypes.JSONMap(inv.Metadata)
	}

	m.Lines = make([]lineItemModel, len(inv.Lines))
	for i, l := range inv.Lines {
		lt, lv := splitDiscount(l.Discount)
		m.Lines[i] = lineItemModel{
			ID:            l.ID.String(),
			InvoiceID:     m.ID,
			Position:      l.Position,
			Description:   l.Description,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			TaxInclusive:  l.TaxInclusive,
			TaxRate:       l.TaxRate,
			DiscountType:  lt,
			DiscountValue: lv,
			CategoryRef:   l.CategoryRef,
			RateCardRef:   l.RateCardRef,
		}
	}
	return m
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	var fxID id.FXRateID
	if m.FXRateID != nil {
		if fxID, err = id.ParseOptional(*m.FXRateID, id.PrefixFXRate); err != nil {
			return nil, err
		}
	}

	money := func(d decimal.Decimal) types.Money { return types.Money{Amount: d, Currency: m.Currency} }

	inv := &invoice.Invoice{
		Entity:            types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                invID,
		OrganizationID:    m.OrganizationID,
		Number:            m.Number,
		CustomerRef:       m.CustomerRef,
		Currency:          m.Currency,
		DecimalPlaces:     m.DecimalPlaces,
		Discount:          joinDiscount(m.DiscountType, m.DiscountValue),
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
		ExchangeRate:      m.ExchangeRate.Decimal,
		SentAt:            m.SentAt,
		WrittenOffAt:      m.WrittenOffAt,
		WriteOffReason:    m.WriteOffReason,
		CreatedBy:         m.CreatedBy,
	}
	if m.Metadata != nil {
		inv.Metadata = map[string]any(m.Metadata)
	}

	inv.Lines = make([]invoice.LineItem, len(m.Lines))
	for i, l := range m.Lines {
		lineID, err := id.ParseLineItemID(l.ID)
		if err != nil {
			return nil, err
		}
		inv.Lines[i] = invoice.LineItem{
			ID:        lineID,
			InvoiceID: invID,
			Position:  l.Position,
			LineItem: calc.LineItem{
				Description:  l.Description,
				Quantity:     l.Quantity,
				UnitPrice:    l.UnitPrice,
				TaxInclusive: l.TaxInclusive,
				TaxRate:      l.TaxRate,
				Discount:     joinDiscount(l.DiscountType, l.DiscountValue),
				CategoryRef:  l.CategoryRef,
				RateCardRef:  l.RateCardRef,
			},
		}
	}
	return inv, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	ID             string          `gorm:"primaryKey;type:varchar(64)"`
	OrganizationID string          `gorm:"not null"`
	InvoiceID      string          `gorm:"type:varchar(64);not null;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Currency       string          `gorm:"type:char(3);not null"`
	Status         string          `gorm:"type:varchar(16);not null"`
	Method         string
	Reference      string
	IdempotencyKey string `gorm:"type:varchar(255)"`
	ReceivedAt     time.Time
	CreatedBy      string
	VoidedAt       *time.Time
	VoidedBy       string
	VoidReason     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (paymentModel) TableName() string { return "reckon_payments" }

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:             p.ID.String(),
		OrganizationID: p.OrganizationID,
		InvoiceID:      p.InvoiceID.String(),
		Amount:         p.Amount.Amount,
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
	return &payment.Payment{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             payID,
		OrganizationID: m.OrganizationID,
		InvoiceID:      invID,
		Amount:         types.Money{Amount: m.Amount, Currency: m.Currency},
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
	ID             string         `gorm:"primaryKey;type:varchar(64)"`
	OrganizationID string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_reckon_idem_key,priority:1"`
	UserID         string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_reckon_idem_key,priority:2"`
	Route          string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_reckon_idem_key,priority:3"`
	Key            string         `gorm:"column:idem_key;type:varchar(255);not null;uniqueIndex:ux_reckon_idem_key,priority:4"`
	RequestHash    string         `gorm:"type:char(64);not null"`
	Response       datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt      time.Time
	ExpiresAt      time.Time `gorm:"not null;index"`
}

func (idempotencyModel) TableName() string { return "reckon_idempotency_records" }

func toIdempotencyModel(r *idempotency.Record) *idempotencyModel {
	return &idempotencyModel{
		ID:             r.ID.String(),
		OrganizationID: r.OrganizationID,
		UserID:         r.UserID,
		Route:          r.Route,
		Key:            r.Key,
		RequestHash:    r.RequestHash,
		Response:       datatypes.JSON(r.Response),
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
