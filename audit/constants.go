package audit

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceCreated    = "invoice.created"
	ActionInvoiceSent       = "invoice.sent"
	ActionInvoiceWrittenOff = "invoice.written_off"
	ActionInvoiceOverdue    = "invoice.overdue"

	// Payment actions
	ActionPaymentApplied = "payment.applied"
	ActionPaymentVoided  = "payment.voided"

	// Reference data actions
	ActionFXRateCreated     = "fxrate.created"
	ActionCurrencyUpserted  = "currency.upserted"
	ActionIdempotencyPurged = "idempotency.purged"

	// Access actions
	ActionPermissionDenied = "permission.denied"
)

// Entity type constants for audit events.
const (
	EntityInvoice     = "invoice"
	EntityPayment     = "payment"
	EntityFXRate      = "fx_rate"
	EntityCurrency    = "currency"
	EntityIdempotency = "idempotency_record"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
)

// allActions returns all known audit actions.
func allActions() []string {
	return []string{
		ActionInvoiceCreated,
		ActionInvoiceSent,
		ActionInvoiceWrittenOff,
		ActionInvoiceOverdue,
		ActionPaymentApplied,
		ActionPaymentVoided,
		ActionFXRateCreated,
		ActionCurrencyUpserted,
		ActionIdempotencyPurged,
		ActionPermissionDenied,
	}
}
