package observability

import (
	"context"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnQuoteCalculated      = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated       = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnPaymentApplied       = (*MetricsExtension)(nil)
	_ plugin.OnPaymentReplayed      = (*MetricsExtension)(nil)
	_ plugin.OnPaymentVoided        = (*MetricsExtension)(nil)
	_ plugin.OnFXRateAdded          = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle event counts.
// The engine registers it automatically when built with WithMetrics.
type MetricsExtension struct {
	QuoteCalculated Counter
	QuoteLines      Histogram

	InvoiceCreated    Counter
	InvoiceSent       Counter
	InvoicePartPaid   Counter
	InvoicePaid       Counter
	InvoiceWrittenOff Counter

	PaymentApplied  Counter
	PaymentReplayed Counter
	PaymentVoided   Counter

	FXRateAdded Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		QuoteCalculated: factory.Counter("reckon.quote.calculated"),
		QuoteLines:      factory.Histogram("reckon.quote.lines"),

		InvoiceCreated:    factory.Counter("reckon.invoice.created"),
		InvoiceSent:       factory.Counter("reckon.invoice.sent"),
		InvoicePartPaid:   factory.Counter("reckon.invoice.part_paid"),
		InvoicePaid:       factory.Counter("reckon.invoice.paid"),
		InvoiceWrittenOff: factory.Counter("reckon.invoice.written_off"),

		PaymentApplied:  factory.Counter("reckon.payment.applied"),
		PaymentReplayed: factory.Counter("reckon.payment.replayed"),
		PaymentVoided:   factory.Counter("reckon.payment.voided"),

		FXRateAdded: factory.Counter("reckon.fxrate.added"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnQuoteCalculated implements plugin.OnQuoteCalculated.
func (m *MetricsExtension) OnQuoteCalculated(_ context.Context, res *calc.Result) error {
	m.QuoteCalculated.Inc()
	m.QuoteLines.Observe(float64(len(res.Lines)))
	return nil
}

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceCreated.Inc()
	return nil
}

// OnInvoiceStatusChanged implements plugin.OnInvoiceStatusChanged.
func (m *MetricsExtension) OnInvoiceStatusChanged(_ context.Context, inv *invoice.Invoice, _ invoice.Status) error {
	switch inv.Status {
	case invoice.StatusSent:
		m.InvoiceSent.Inc()
	case invoice.StatusPartPaid:
		m.InvoicePartPaid.Inc()
	case invoice.StatusPaid:
		m.InvoicePaid.Inc()
	case invoice.StatusWrittenOff:
		m.InvoiceWrittenOff.Inc()
	}
	return nil
}

// OnPaymentApplied implements plugin.OnPaymentApplied.
func (m *MetricsExtension) OnPaymentApplied(_ context.Context, _ *payment.Payment, _ *invoice.Invoice) error {
	m.PaymentApplied.Inc()
	return nil
}

// OnPaymentReplayed implements plugin.OnPaymentReplayed.
func (m *MetricsExtension) OnPaymentReplayed(_ context.Context, _ *payment.Payment) error {
	m.PaymentReplayed.Inc()
	return nil
}

// OnPaymentVoided implements plugin.OnPaymentVoided.
func (m *MetricsExtension) OnPaymentVoided(_ context.Context, _ *payment.Payment, _ *invoice.Invoice) error {
	m.PaymentVoided.Inc()
	return nil
}

// OnFXRateAdded implements plugin.OnFXRateAdded.
func (m *MetricsExtension) OnFXRateAdded(_ context.Context, _ *fxrate.Rate) error {
	m.FXRateAdded.Inc()
	return nil
}
