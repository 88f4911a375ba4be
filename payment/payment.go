// Package payment defines payments applied against invoices.
package payment

import (
	"context"
	"strings"
	"time"

	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/types"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusVoid      Status = "void"
)

// Payment is money received against one invoice. Payments are never
// deleted; a mistaken payment is voided.
type Payment struct {
	types.Entity
	ID             id.PaymentID `json:"id"`
	OrganizationID string       `json:"organization_id"`
	InvoiceID      id.InvoiceID `json:"invoice_id"`
	Amount         types.Money  `json:"amount"`
	Status         Status       `json:"status"`
	Method         string       `json:"method,omitempty"`
	Reference      string       `json:"reference,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	ReceivedAt     time.Time    `json:"received_at"`
	CreatedBy      string       `json:"created_by,omitempty"`
	VoidedAt       *time.Time   `json:"voided_at,omitempty"`
	VoidedBy       string       `json:"voided_by,omitempty"`
	VoidReason     string       `json:"void_reason,omitempty"`
}

// Counts reports whether the payment contributes to the invoice's paid amount.
func (p *Payment) Counts() bool { return p.Status != StatusVoid }

// Void marks the payment void. It fails with a ConflictError if the payment
// is already void.
func (p *Payment) Void(actor, reason string, now time.Time) error {
	if p.Status == StatusVoid {
		return types.Conflict("payment", types.ErrAlreadyVoided)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return types.Invalid("reason", "a void reason is required")
	}
	at := now.UTC()
	p.Status = StatusVoid
	p.VoidedAt = &at
	p.VoidedBy = actor
	p.VoidReason = reason
	p.Touch(now)
	return nil
}

// Clone returns a deep copy.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.VoidedAt != nil {
		t := *p.VoidedAt
		c.VoidedAt = &t
	}
	return &c
}

// Store reads payments. Writes happen inside the store unit of work.
type Store interface {
	GetPayment(ctx context.Context, payID id.PaymentID) (*Payment, error)
	ListPayments(ctx context.Context, invID id.InvoiceID) ([]*Payment, error)
}
