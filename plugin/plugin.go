// Package plugin provides an extensible plugin system for reckon.
// Plugins hook into engine lifecycle events to feed external collaborators
// such as accounting sync, notifications or metrics.
//
// Hooks run after the owning transaction has committed. A failing or slow
// plugin is logged and never affects the result returned to the caller.
package plugin

import (
	"context"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *reckon.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Calculation hooks
// ──────────────────────────────────────────────────

// OnQuoteCalculated is called after a quote calculation succeeds.
type OnQuoteCalculated interface {
	Plugin
	OnQuoteCalculated(ctx context.Context, res *calc.Result) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called when a new invoice is persisted.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceStatusChanged is called whenever an invoice's status changes,
// whether manually (send, write-off) or through payment recomputation.
type OnInvoiceStatusChanged interface {
	Plugin
	OnInvoiceStatusChanged(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentApplied is called when a payment is applied for the first time.
// Idempotent replays do not trigger it.
type OnPaymentApplied interface {
	Plugin
	OnPaymentApplied(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) error
}

// OnPaymentReplayed is called when a stored payment response is replayed
// for a repeated idempotency key.
type OnPaymentReplayed interface {
	Plugin
	OnPaymentReplayed(ctx context.Context, p *payment.Payment) error
}

// OnPaymentVoided is called when a payment is voided.
type OnPaymentVoided interface {
	Plugin
	OnPaymentVoided(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) error
}

// ──────────────────────────────────────────────────
// Reference data hooks
// ──────────────────────────────────────────────────

// OnFXRateAdded is called when an exchange rate is stored.
type OnFXRateAdded interface {
	Plugin
	OnFXRateAdded(ctx context.Context, r *fxrate.Rate) error
}
