// Package store defines the unified persistence interface for reckon and
// the unit of work every ledger mutation runs in.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
)

// Store is the unified storage interface for all reckon entities.
type Store interface {
	currency.Store
	fxrate.Store
	invoice.Store
	payment.Store

	// InTx runs fn in a unit of work. fn's writes commit together when it
	// returns nil and are discarded otherwise. Transactions that touch the
	// same invoice are serialized by Tx.LockInvoice.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// PurgeIdempotency deletes idempotency records that expired before
	// the given time and returns how many were removed.
	PurgeIdempotency(ctx context.Context, before time.Time) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional view used by apply, void and the manual invoice
// transitions.
type Tx interface {
	idempotency.TxStore

	// LockInvoice reads the invoice and holds its lock until the unit of
	// work ends. A missing invoice is a NotFoundError.
	LockInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	// UpdateInvoice writes the payment-side fields and manual transition
	// fields of a locked invoice. Lines and document totals never change.
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error

	GetPayment(ctx context.Context, payID id.PaymentID) (*payment.Payment, error)
	InsertPayment(ctx context.Context, p *payment.Payment) error
	UpdatePayment(ctx context.Context, p *payment.Payment) error

	// SumPayments returns the sum of all non-void payment amounts for the
	// invoice, including writes made earlier in this unit of work.
	SumPayments(ctx context.Context, invID id.InvoiceID) (decimal.Decimal, error)
}
