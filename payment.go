package reckon

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xraph/reckon/audit"
	"github.com/xraph/reckon/authz"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/types"
)

// RouteApplyPayment scopes idempotency keys of ApplyPayment.
const RouteApplyPayment = "payment.apply"

// ApplyPaymentRequest records money received against an invoice.
type ApplyPaymentRequest struct {
	InvoiceID  id.InvoiceID `json:"invoice_id"`
	Amount     types.Money  `json:"amount"`
	Method     string       `json:"method,omitempty"`
	Reference  string       `json:"reference,omitempty"`
	ReceivedAt time.Time    `json:"received_at,omitempty"`

	// IdempotencyKey makes retries safe: a repeated request with the same
	// key and body returns the original payment instead of paying twice.
	IdempotencyKey string `json:"-"`
}

// PaymentReceipt is the outcome of ApplyPayment or VoidPayment.
type PaymentReceipt struct {
	Payment *payment.Payment `json:"payment"`
	Invoice *invoice.Invoice `json:"invoice"`

	// Replayed is set when the payment was returned from an earlier call
	// with the same idempotency key. Nothing was written.
	Replayed bool `json:"replayed"`
}

// ApplyPayment applies a payment to an invoice.
//
// The invoice is locked first and the idempotency record is read under that
// lock, so a concurrent duplicate waits and then replays. Paid, balance and
// status are recomputed from the sum of non-void payments in the same unit
// of work.
func (e *Engine) ApplyPayment(ctx context.Context, actor Actor, req ApplyPaymentRequest) (*PaymentReceipt, error) {
	if err := e.authorize(ctx, actor, authz.PaymentCreate, audit.EntityInvoice, req.InvoiceID.String()); err != nil {
		return nil, err
	}
	if err := idempotency.ValidateKey(req.IdempotencyKey); err != nil {
		return nil, err
	}

	amount := types.Money{Amount: req.Amount.Amount, Currency: types.NormalizeCurrency(req.Amount.Currency)}
	if !amount.IsPositive() {
		return nil, types.InvalidCause("amount", types.ErrNonPositiveAmount)
	}
	cur, err := e.currencies.Validate(ctx, "amount.currency", amount.Currency)
	if err != nil {
		return nil, err
	}
	if !amount.Amount.Equal(types.RoundHalfUp(amount.Amount, cur.DecimalPlaces)) {
		return nil, types.Invalid("amount", "has more decimal places than "+cur.Code+" allows")
	}

	ireq := idempotency.Request{
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		Route:          RouteApplyPayment,
		Key:            req.IdempotencyKey,
		Payload:        req,
	}

	var receipt *PaymentReceipt
	var prev invoice.Status
	err = e.instr.Do(ctx, "payment.apply", func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			inv, err := e.lockOwned(ctx, tx, actor, req.InvoiceID)
			if err != nil {
				return err
			}
			prev = inv.Status

			p, replayed, err := idempotency.Execute(ctx, e.idem, tx, ireq, func() (*payment.Payment, error) {
				if err := inv.CanAcceptPayment(amount); err != nil {
					return nil, err
				}

				now := e.now().UTC()
				received := req.ReceivedAt
				if received.IsZero() {
					received = now
				}
				p := &payment.Payment{
					Entity:         types.NewEntity(now),
					ID:             id.NewPaymentID(),
					OrganizationID: actor.OrganizationID,
					InvoiceID:      inv.ID,
					Amount:         amount,
					Status:         payment.StatusCompleted,
					Method:         strings.TrimSpace(req.Method),
					Reference:      req.Reference,
					IdempotencyKey: req.IdempotencyKey,
					ReceivedAt:     received,
					CreatedBy:      actor.UserID,
				}
				if err := tx.InsertPayment(ctx, p); err != nil {
					return nil, err
				}

				paid, err := tx.SumPayments(ctx, inv.ID)
				if err != nil {
					return nil, err
				}
				inv.Recompute(paid, now)
				inv.Touch(now)
				if err := tx.UpdateInvoice(ctx, inv); err != nil {
					return nil, err
				}
				return p, nil
			})
			if err != nil {
				return err
			}

			receipt = &PaymentReceipt{Payment: p, Invoice: inv, Replayed: replayed}
			return nil
		})
	}, attribute.String("invoice_id", req.InvoiceID.String()), attribute.Bool("idempotent", req.IdempotencyKey != ""))
	if err != nil {
		return nil, e.fail(ctx, "apply payment", err,
			zap.String("invoice_id", req.InvoiceID.String()),
			zap.String("idempotency_key", idempotency.KeyPrefix(req.IdempotencyKey)),
		)
	}

	if receipt.Replayed {
		e.logger.Debug("payment replayed",
			zap.String("payment_id", receipt.Payment.ID.String()),
			zap.String("idempotency_key", idempotency.KeyPrefix(req.IdempotencyKey)),
		)
		e.plugins.EmitPaymentReplayed(ctx, receipt.Payment)
		return receipt, nil
	}

	inv := receipt.Invoice
	e.record(ctx, &audit.Event{
		Action:         audit.ActionPaymentApplied,
		EntityType:     audit.EntityPayment,
		EntityID:       receipt.Payment.ID.String(),
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		OldValues: map[string]any{
			"invoice_status": string(prev),
		},
		NewValues: map[string]any{
			"invoice_id":     inv.ID.String(),
			"amount":         amount.Amount.String(),
			"currency":       amount.Currency,
			"invoice_status": string(inv.Status),
			"paid_amount":    inv.PaidAmount.Amount.String(),
			"balance_amount": inv.BalanceAmount.Amount.String(),
		},
	})
	e.plugins.EmitPaymentApplied(ctx, receipt.Payment, inv)
	e.plugins.EmitInvoiceStatusChanged(ctx, inv, prev)

	return receipt, nil
}

// VoidPayment reverses a payment. The invoice falls back to part_paid or
// sent, never to draft. Voiding twice is a ConflictError.
func (e *Engine) VoidPayment(ctx context.Context, actor Actor, payID id.PaymentID, reason string) (*PaymentReceipt, error) {
	if err := e.authorize(ctx, actor, authz.PaymentVoid, audit.EntityPayment, payID.String()); err != nil {
		return nil, err
	}

	var receipt *PaymentReceipt
	var prev invoice.Status
	err := e.instr.Do(ctx, "payment.void", func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			p, err := tx.GetPayment(ctx, payID)
			if err != nil {
				return err
			}
			if err := ownedBy(actor, p.OrganizationID, "payment", payID.String()); err != nil {
				return err
			}

			inv, err := tx.LockInvoice(ctx, p.InvoiceID)
			if err != nil {
				return err
			}
			// Re-read under the invoice lock; a racing void may have won.
			if p, err = tx.GetPayment(ctx, payID); err != nil {
				return err
			}

			now := e.now().UTC()
			if err := p.Void(actor.UserID, reason, now); err != nil {
				return err
			}
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}

			paid, err := tx.SumPayments(ctx, inv.ID)
			if err != nil {
				return err
			}
			prev = inv.Recompute(paid, now)
			inv.Touch(now)
			if err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}

			receipt = &PaymentReceipt{Payment: p, Invoice: inv}
			return nil
		})
	}, attribute.String("payment_id", payID.String()))
	if err != nil {
		return nil, e.fail(ctx, "void payment", err, zap.String("payment_id", payID.String()))
	}

	p, inv := receipt.Payment, receipt.Invoice
	e.record(ctx, &audit.Event{
		Action:         audit.ActionPaymentVoided,
		EntityType:     audit.EntityPayment,
		EntityID:       p.ID.String(),
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		OldValues: map[string]any{
			"status":         string(payment.StatusCompleted),
			"invoice_status": string(prev),
		},
		NewValues: map[string]any{
			"status":         string(p.Status),
			"invoice_status": string(inv.Status),
			"paid_amount":    inv.PaidAmount.Amount.String(),
			"balance_amount": inv.BalanceAmount.Amount.String(),
		},
		Reason: p.VoidReason,
	})
	e.plugins.EmitPaymentVoided(ctx, p, inv)
	e.plugins.EmitInvoiceStatusChanged(ctx, inv, prev)

	return receipt, nil
}

// ListPayments lists the payments of one of the actor's invoices, voided
// ones included.
func (e *Engine) ListPayments(ctx context.Context, actor Actor, invID id.InvoiceID) ([]*payment.Payment, error) {
	if _, err := e.GetInvoice(ctx, actor, invID); err != nil {
		return nil, err
	}
	list, err := e.store.ListPayments(ctx, invID)
	if err != nil {
		return nil, e.fail(ctx, "list payments", err)
	}
	return list, nil
}
