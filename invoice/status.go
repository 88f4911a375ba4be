package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/reckon/types"
)

// Status is the payment-side state of an invoice. It is always derived from
// the amounts, except for the manual transitions draft -> sent and
// any -> written_off.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSent       Status = "sent"
	StatusPartPaid   Status = "part_paid"
	StatusPaid       Status = "paid"
	StatusWrittenOff Status = "written_off"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPartPaid, StatusPaid, StatusWrittenOff:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool { return s == StatusWrittenOff }

// IsOpen reports whether the invoice can still collect money.
func (s Status) IsOpen() bool {
	return s == StatusDraft || s == StatusSent || s == StatusPartPaid
}

// DeriveStatus computes the status implied by paid and balance.
//
//   - written_off never changes
//   - a draft with nothing paid stays draft, even at a zero total
//   - balance <= 0 is paid
//   - any money received is part_paid
//   - otherwise the invoice falls back to sent
func DeriveStatus(current Status, paid, balance decimal.Decimal) Status {
	switch {
	case current == StatusWrittenOff:
		return StatusWrittenOff
	case current == StatusDraft && !paid.IsPositive():
		return StatusDraft
	case !balance.IsPositive():
		return StatusPaid
	case paid.IsPositive():
		return StatusPartPaid
	default:
		return StatusSent
	}
}

// Recompute sets PaidAmount from paid and re-derives BalanceAmount, Status
// and Overdue. It returns the previous status.
func (inv *Invoice) Recompute(paid decimal.Decimal, now time.Time) Status {
	prev := inv.Status

	inv.PaidAmount = types.Money{Amount: paid, Currency: inv.Currency}
	inv.BalanceAmount = types.Money{Amount: inv.TotalAmount.Amount.Sub(paid), Currency: inv.Currency}
	inv.Status = DeriveStatus(prev, paid, inv.BalanceAmount.Amount)
	inv.Overdue = inv.IsOverdue(now)

	return prev
}

// IsOverdue reports whether the due date has passed with money outstanding.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.DueDate == nil || inv.Status == StatusWrittenOff {
		return false
	}
	return inv.BalanceAmount.IsPositive() && now.After(*inv.DueDate)
}

// CanAcceptPayment checks the status and currency preconditions of a payment.
// Amount limits are checked by the caller against BalanceAmount.
func (inv *Invoice) CanAcceptPayment(amount types.Money) error {
	if inv.Status == StatusWrittenOff {
		return types.Conflict("invoice", types.ErrInvoiceWrittenOff)
	}
	if amount.Currency != inv.Currency {
		return types.InvalidCause("currency", types.ErrCurrencyMismatch)
	}
	if amount.Amount.GreaterThan(inv.BalanceAmount.Amount) {
		return types.InvalidCause("amount", types.ErrOverpayment)
	}
	return nil
}
