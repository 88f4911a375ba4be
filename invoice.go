package reckon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xraph/reckon/audit"
	"github.com/xraph/reckon/authz"
	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/guard"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/types"
)

// CreateInvoiceRequest describes a new invoice.
type CreateInvoiceRequest struct {
	Number      string          `json:"number,omitempty"`
	CustomerRef string          `json:"customer_ref,omitempty"`
	Currency    string          `json:"currency"`
	Lines       []calc.LineItem `json:"lines"`
	Discount    *calc.Discount  `json:"discount,omitempty"`
	IssueDate   time.Time       `json:"issue_date,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`

	// ReportingCurrency overrides the engine's reporting currency for the
	// FX snapshot.
	ReportingCurrency string `json:"reporting_currency,omitempty"`
}

// CreateInvoice calculates and persists a draft invoice. When a reporting
// currency applies, the exchange rate in force on the issue date is
// snapshotted onto the invoice and never changes afterwards.
func (e *Engine) CreateInvoice(ctx context.Context, actor Actor, req CreateInvoiceRequest) (*invoice.Invoice, error) {
	if err := e.authorize(ctx, actor, authz.InvoiceCreate, audit.EntityInvoice, ""); err != nil {
		return nil, err
	}
	if err := guard.CheckMetadata("metadata", req.Metadata); err != nil {
		return nil, err
	}
	if req.DueDate != nil && !req.IssueDate.IsZero() && req.DueDate.Before(req.IssueDate) {
		return nil, types.Invalid("due_date", "must not be before issue_date")
	}

	var inv *invoice.Invoice
	err := e.instr.Do(ctx, "invoice.create", func(ctx context.Context) error {
		cur, err := e.currencies.Validate(ctx, "currency", req.Currency)
		if err != nil {
			return err
		}
		res, err := calc.Calculate(calc.Document{
			Currency:      cur.Code,
			DecimalPlaces: cur.DecimalPlaces,
			Lines:         req.Lines,
			Discount:      req.Discount,
		})
		if err != nil {
			return err
		}

		now := e.now().UTC()
		issue := req.IssueDate
		if issue.IsZero() {
			issue = now
		}

		inv = &invoice.Invoice{
			Entity:         types.NewEntity(now),
			ID:             id.NewInvoiceID(),
			OrganizationID: actor.OrganizationID,
			Number:         strings.TrimSpace(req.Number),
			CustomerRef:    req.CustomerRef,
			Discount:       req.Discount,
			Status:         invoice.StatusDraft,
			IssueDate:      issue,
			DueDate:        req.DueDate,
			CreatedBy:      actor.UserID,
			Metadata:       req.Metadata,
		}
		inv.ApplyTotals(res)
		inv.Lines = make([]invoice.LineItem, len(req.Lines))
		for i, line := range req.Lines {
			inv.Lines[i] = invoice.LineItem{
				ID:        id.NewLineItemID(),
				InvoiceID: inv.ID,
				Position:  i,
				LineItem:  line,
			}
		}
		inv.Recompute(decimal.Zero, now)

		reporting := types.NormalizeCurrency(req.ReportingCurrency)
		if reporting == "" {
			reporting = e.reportingCurrency
		}
		fx, err := e.snapshot(ctx, inv.TotalAmount, reporting, issue)
		if err != nil {
			return err
		}
		if fx != nil {
			inv.FXRateID = fx.RateID
			inv.ReportingCurrency = fx.Quote
			inv.ExchangeRate = fx.Rate
		}

		return e.store.CreateInvoice(ctx, inv)
	}, attribute.String("currency", req.Currency))
	if err != nil {
		return nil, e.fail(ctx, "create invoice", err, zap.String("organization_id", actor.OrganizationID))
	}

	e.record(ctx, &audit.Event{
		Action:         audit.ActionInvoiceCreated,
		EntityType:     audit.EntityInvoice,
		EntityID:       inv.ID.String(),
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		NewValues:      invoiceValues(inv),
	})
	e.plugins.EmitInvoiceCreated(ctx, inv)

	return inv, nil
}

// GetInvoice returns an invoice of the actor's organization.
func (e *Engine) GetInvoice(ctx context.Context, actor Actor, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, e.fail(ctx, "get invoice", err)
	}
	if err := ownedBy(actor, inv.OrganizationID, "invoice", invID.String()); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices lists the actor's invoices. Metadata filters must not
// address monetary-looking keys.
func (e *Engine) ListInvoices(ctx context.Context, actor Actor, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	if err := guard.CheckFilter(opts.FilterKeys()); err != nil {
		return nil, err
	}
	if opts.Currency != "" {
		opts.Currency = types.NormalizeCurrency(opts.Currency)
	}
	if opts.Status != "" && !opts.Status.IsValid() {
		return nil, types.Invalid("status", "unknown invoice status "+string(opts.Status))
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, types.Invalid("limit", "limit and offset must not be negative")
	}

	list, err := e.store.ListInvoices(ctx, actor.OrganizationID, opts)
	if err != nil {
		return nil, e.fail(ctx, "list invoices", err)
	}
	return list, nil
}

// SendInvoice moves a draft invoice to sent.
func (e *Engine) SendInvoice(ctx context.Context, actor Actor, invID id.InvoiceID) (*invoice.Invoice, error) {
	if err := e.authorize(ctx, actor, authz.InvoiceSend, audit.EntityInvoice, invID.String()); err != nil {
		return nil, err
	}

	var inv *invoice.Invoice
	var prev invoice.Status
	err := e.instr.Do(ctx, "invoice.send", func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			inv, err = e.lockOwned(ctx, tx, actor, invID)
			if err != nil {
				return err
			}
			if inv.Status != invoice.StatusDraft {
				return &types.ConflictError{Resource: "invoice", Reason: "only draft invoices can be sent, status is " + string(inv.Status)}
			}

			now := e.now().UTC()
			prev = inv.Status
			inv.Status = invoice.StatusSent
			inv.SentAt = &now
			inv.Overdue = inv.IsOverdue(now)
			inv.Touch(now)
			return tx.UpdateInvoice(ctx, inv)
		})
	})
	if err != nil {
		return nil, e.fail(ctx, "send invoice", err, zap.String("invoice_id", invID.String()))
	}

	e.record(ctx, &audit.Event{
		Action:         audit.ActionInvoiceSent,
		EntityType:     audit.EntityInvoice,
		EntityID:       inv.ID.String(),
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		OldValues:      map[string]any{"status": string(prev)},
		NewValues:      map[string]any{"status": string(inv.Status), "sent_at": inv.SentAt},
	})
	e.plugins.EmitInvoiceStatusChanged(ctx, inv, prev)

	return inv, nil
}

// WriteOffInvoice marks an invoice uncollectable. It is terminal: the
// invoice accepts no further payments. Payments already applied stay.
func (e *Engine) WriteOffInvoice(ctx context.Context, actor Actor, invID id.InvoiceID, reason string) (*invoice.Invoice, error) {
	if err := e.authorize(ctx, actor, authz.InvoiceWriteOff, audit.EntityInvoice, invID.String()); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, types.Invalid("reason", "a write-off reason is required")
	}

	var inv *invoice.Invoice
	var prev invoice.Status
	err := e.instr.Do(ctx, "invoice.write_off", func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			inv, err = e.lockOwned(ctx, tx, actor, invID)
			if err != nil {
				return err
			}
			if inv.Status == invoice.StatusWrittenOff {
				return types.Conflict("invoice", types.ErrInvoiceWrittenOff)
			}

			now := e.now().UTC()
			prev = inv.Status
			inv.Status = invoice.StatusWrittenOff
			inv.WrittenOffAt = &now
			inv.WriteOffReason = reason
			inv.Overdue = false
			inv.Touch(now)
			return tx.UpdateInvoice(ctx, inv)
		})
	})
	if err != nil {
		return nil, e.fail(ctx, "write off invoice", err, zap.String("invoice_id", invID.String()))
	}

	e.record(ctx, &audit.Event{
		Action:         audit.ActionInvoiceWrittenOff,
		EntityType:     audit.EntityInvoice,
		EntityID:       inv.ID.String(),
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		OldValues:      map[string]any{"status": string(prev)},
		NewValues: map[string]any{
			"status":         string(inv.Status),
			"balance_amount": inv.BalanceAmount.Amount.String(),
		},
		Reason: reason,
	})
	e.plugins.EmitInvoiceStatusChanged(ctx, inv, prev)

	return inv, nil
}

// RefreshOverdue recomputes the overdue flag of the actor's open invoices
// and returns how many changed. Schedulers call it periodically.
func (e *Engine) RefreshOverdue(ctx context.Context, actor Actor) (int, error) {
	if err := e.authorize(ctx, actor, authz.MaintenanceRun, audit.EntityInvoice, ""); err != nil {
		return 0, err
	}

	list, err := e.store.ListInvoices(ctx, actor.OrganizationID, invoice.ListOpts{})
	if err != nil {
		return 0, e.fail(ctx, "refresh overdue", err)
	}

	changed := 0
	for _, candidate := range list {
		now := e.now().UTC()
		if !candidate.Status.IsOpen() || candidate.IsOverdue(now) == candidate.Overdue {
			continue
		}

		var inv *invoice.Invoice
		err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			inv, err = tx.LockInvoice(ctx, candidate.ID)
			if err != nil {
				return err
			}
			overdue := inv.IsOverdue(now)
			if overdue == inv.Overdue {
				inv = nil
				return nil
			}
			inv.Overdue = overdue
			inv.Touch(now)
			return tx.UpdateInvoice(ctx, inv)
		})
		if err != nil {
			return changed, e.fail(ctx, "refresh overdue", err, zap.String("invoice_id", candidate.ID.String()))
		}
		if inv == nil {
			continue
		}

		changed++
		if inv.Overdue {
			e.record(ctx, &audit.Event{
				Action:         audit.ActionInvoiceOverdue,
				EntityType:     audit.EntityInvoice,
				EntityID:       inv.ID.String(),
				OrganizationID: actor.OrganizationID,
				UserID:         actor.UserID,
				OldValues:      map[string]any{"overdue": false},
				NewValues:      map[string]any{"overdue": true, "balance_amount": inv.BalanceAmount.Amount.String()},
			})
		}
	}

	e.logger.Debug("overdue refreshed",
		zap.String("organization_id", actor.OrganizationID),
		zap.Int("scanned", len(list)),
		zap.Int("changed", changed),
	)
	return changed, nil
}

// lockOwned locks an invoice and checks it belongs to the actor.
func (e *Engine) lockOwned(ctx context.Context, tx store.Tx, actor Actor, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := tx.LockInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(actor, inv.OrganizationID, "invoice", invID.String()); err != nil {
		return nil, err
	}
	return inv, nil
}

// invoiceValues is the audited snapshot of an invoice's money fields.
func invoiceValues(inv *invoice.Invoice) map[string]any {
	return map[string]any{
		"status":         string(inv.Status),
		"currency":       inv.Currency,
		"total_amount":   inv.TotalAmount.Amount.String(),
		"paid_amount":    inv.PaidAmount.Amount.String(),
		"balance_amount": inv.BalanceAmount.Amount.String(),
		"overdue":        inv.Overdue,
	}
}
