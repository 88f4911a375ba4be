// Package reckon provides quoting, invoicing and payment-ledger arithmetic
// for professional-services work across currencies and tax regimes.
//
// Reckon is designed as a library, not a service. Import it directly into
// your Go application; HTTP routing, authentication and scheduling stay with
// the host. It provides:
//
//   - Deterministic decimal arithmetic with half-up rounding at emission
//   - Line and document calculation: discounts, tax-inclusive prices and
//     mixed tax rates with a per-rate breakdown
//   - Historical exchange rates with inverse-pair fallback and immutable
//     FX snapshots on invoices
//   - A payment ledger that keeps paid, balance and status consistent under
//     concurrent, retried and voided payments
//   - Idempotency keys with verbatim replay
//   - Metadata and filter guards that keep monetary values out of
//     schema-less fields
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/reckon"
//	    "github.com/xraph/reckon/store/sqlstore"
//	)
//
//	s, err := sqlstore.OpenPostgres(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng := reckon.New(s,
//	    reckon.WithLogger(logger),
//	    reckon.WithGate(gate),
//	    reckon.WithAuditSink(audit.NewSink(recorder)),
//	)
//
//	// Migrates the schema and seeds the currency catalogue.
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Quotes
//
// Quotes are pure calculations:
//
//	q, err := eng.CalculateQuote(ctx, reckon.QuoteRequest{
//	    Currency: "NZD",
//	    Lines: []reckon.LineItem{{
//	        Quantity:     decimal.NewFromInt(1),
//	        UnitPrice:    decimal.RequireFromString("172.50"),
//	        TaxInclusive: true,
//	        TaxRate:      decimal.RequireFromString("0.15"),
//	    }},
//	})
//	// q.Totals.Subtotal = 150.00, TaxAmount = 22.50, GrandTotal = 172.50
//
// # Payments
//
// Payments are applied under a lock on the invoice. Pass an idempotency key
// so client retries cannot pay twice:
//
//	r, err := eng.ApplyPayment(ctx, actor, reckon.ApplyPaymentRequest{
//	    InvoiceID:      inv.ID,
//	    Amount:         reckon.NewMoney(decimal.NewFromInt(500), "NZD"),
//	    IdempotencyKey: "b7f1c2",
//	})
//
// A mistaken payment is voided, never deleted:
//
//	r, err = eng.VoidPayment(ctx, actor, r.Payment.ID, "bounced")
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
//	pay_01h455vb4pex5vsknk084sn02q   // Payment ID
//	fx_01h2xcejqtf2nbrexx3vqjhp41    // FX rate ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package reckon
