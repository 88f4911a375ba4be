// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/types"
)

// Factory returns a fresh, migrated store.
type Factory func(t *testing.T) store.Store

// Run runs the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Currencies", func(t *testing.T) { testCurrencies(t, newStore(t)) })
	t.Run("FXRates", func(t *testing.T) { testFXRates(t, newStore(t)) })
	t.Run("Invoices", func(t *testing.T) { testInvoices(t, newStore(t)) })
	t.Run("UnitOfWork", func(t *testing.T) { testUnitOfWork(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("Idempotency", func(t *testing.T) { testIdempotency(t, newStore(t)) })
	t.Run("ConcurrentUnitsOfWork", func(t *testing.T) { testConcurrentUnitsOfWork(t, newStore(t)) })
}

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// NewInvoice builds a calculated draft invoice with two lines and metadata.
func NewInvoice(t *testing.T, orgID string) *invoice.Invoice {
	t.Helper()

	inv := &invoice.Invoice{
		Entity:         types.NewEntity(epoch),
		ID:             id.NewInvoiceID(),
		OrganizationID: orgID,
		Number:         "INV-0001",
		Currency:       "USD",
		DecimalPlaces:  2,
		Status:         invoice.StatusDraft,
		IssueDate:      epoch,
		Metadata:       map[string]any{"project": map[string]any{"code": "A1"}, "region": "nz"},
	}
	lines := []calc.LineItem{
		{Description: "Design", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("150.00"), TaxRate: decimal.RequireFromString("0.15")},
		{
			Description: "Hosting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("172.50"),
			TaxInclusive: true, TaxRate: decimal.RequireFromString("0.15"),
			Discount: &calc.Discount{Type: calc.DiscountPercentage, Value: decimal.NewFromInt(10)},
		},
	}
	for i, l := range lines {
		inv.Lines = append(inv.Lines, invoice.LineItem{ID: id.NewLineItemID(), InvoiceID: inv.ID, Position: i, LineItem: l})
	}

	res, err := calc.Calculate(inv.Document())
	require.NoError(t, err)
	inv.ApplyTotals(res)
	inv.Recompute(decimal.Zero, epoch)
	return inv
}

// NewPayment builds a completed payment against inv.
func NewPayment(inv *invoice.Invoice, amount string) *payment.Payment {
	return &payment.Payment{
		Entity:         types.NewEntity(epoch),
		ID:             id.NewPaymentID(),
		OrganizationID: inv.OrganizationID,
		InvoiceID:      inv.ID,
		Amount:         types.MustParse(amount, inv.Currency),
		Status:         payment.StatusCompleted,
		ReceivedAt:     epoch,
	}
}

func testCurrencies(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutCurrency(ctx, &currency.Currency{Code: "USD", Name: "US Dollar", Symbol: "$", DecimalPlaces: 2, Active: true}))
	require.NoError(t, s.PutCurrency(ctx, &currency.Currency{Code: "JPY", Name: "Yen", DecimalPlaces: 0, Active: true}))
	require.NoError(t, s.PutCurrency(ctx, &currency.Currency{Code: "USD", Name: "US Dollar", Symbol: "US$", DecimalPlaces: 2, Active: false}))

	c, err := s.GetCurrency(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, "US$", c.Symbol)
	assert.False(t, c.Active)

	all, err := s.ListCurrencies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "JPY", all[0].Code)

	_, err = s.GetCurrency(ctx, "XYZ")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func newRate(base, quote, rate string, from time.Time) *fxrate.Rate {
	r := &fxrate.Rate{
		Entity:        types.NewEntity(epoch),
		ID:            id.NewFXRateID(),
		Base:          base,
		Quote:         quote,
		Rate:          decimal.RequireFromString(rate),
		EffectiveFrom: from,
		Source:        "test",
	}
	r.Normalize()
	return r
}

func testFXRates(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := newRate("USD", "NZD", "1.650000", epoch)
	second := newRate("USD", "NZD", "1.700000", epoch.AddDate(0, 0, 10))
	require.NoError(t, s.CreateRate(ctx, first))
	require.NoError(t, s.CreateRate(ctx, second))
	require.NoError(t, s.CreateRate(ctx, newRate("EUR", "USD", "1.080000", epoch)))

	err := s.CreateRate(ctx, newRate("USD", "NZD", "9.000000", epoch))
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.ErrorIs(t, err, types.ErrDuplicateRate)

	got, err := s.LatestRate(ctx, "USD", "NZD", epoch.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	requireDecimal(t, "1.65", got.Rate)
	assert.True(t, got.EffectiveFrom.Equal(epoch))

	got, err = s.LatestRate(ctx, "USD", "NZD", epoch.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.LatestRate(ctx, "USD", "NZD", epoch.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, types.ErrNotFound)

	byID, err := s.GetRate(ctx, second.ID)
	require.NoError(t, err)
	requireDecimal(t, "1.7", byID.Rate)

	pair, err := s.ListRates(ctx, "USD", "NZD")
	require.NoError(t, err)
	require.Len(t, pair, 2)
	assert.Equal(t, first.ID, pair[0].ID)

	all, err := s.ListRates(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testInvoices(t *testing.T, s store.Store) {
	ctx := context.Background()

	inv := NewInvoice(t, "org_1")
	require.NoError(t, s.CreateInvoice(ctx, inv))

	other := NewInvoice(t, "org_1")
	other.Metadata = map[string]any{"region": "au"}
	require.NoError(t, s.CreateInvoice(ctx, other))
	require.NoError(t, s.CreateInvoice(ctx, NewInvoice(t, "org_2")))

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, invoice.StatusDraft, got.Status)
	requireDecimal(t, inv.TotalAmount.Amount.String(), got.TotalAmount.Amount)
	requireDecimal(t, inv.TotalAmount.Amount.String(), got.BalanceAmount.Amount)
	requireDecimal(t, inv.Subtotal.Amount.Sub(inv.DiscountAmount.Amount).Add(inv.TaxAmount.Amount).String(), got.TotalAmount.Amount)
	assert.Equal(t, "A1", got.Metadata["project"].(map[string]any)["code"])

	require.Len(t, got.Lines, 2)
	assert.Equal(t, "Design", got.Lines[0].Description)
	require.NotNil(t, got.Lines[1].Discount)
	assert.Equal(t, calc.DiscountPercentage, got.Lines[1].Discount.Type)
	requireDecimal(t, "10", got.Lines[1].Discount.Value)
	requireDecimal(t, "0.15", got.Lines[1].TaxRate)

	// The stored lines recalculate to the stored totals.
	res, err := calc.Calculate(got.Document())
	require.NoError(t, err)
	requireDecimal(t, got.TotalAmount.Amount.String(), res.Totals.GrandTotal.Amount)

	list, err := s.ListInvoices(ctx, "org_1", invoice.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListInvoices(ctx, "org_1", invoice.ListOpts{Metadata: map[string]any{"region": "au"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)

	list, err = s.ListInvoices(ctx, "org_1", invoice.ListOpts{Metadata: map[string]any{"project.code": "A1"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inv.ID, list[0].ID)

	list, err = s.ListInvoices(ctx, "org_1", invoice.ListOpts{Status: invoice.StatusPaid})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListInvoices(ctx, "org_1", invoice.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetInvoice(ctx, id.NewInvoiceID())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testUnitOfWork(t *testing.T, s store.Store) {
	ctx := context.Background()

	inv := NewInvoice(t, "org_1")
	require.NoError(t, s.CreateInvoice(ctx, inv))

	p1 := NewPayment(inv, "100.00")
	p2 := NewPayment(inv, "50.00")

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, p1); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, p2); err != nil {
			return err
		}

		sum, err := tx.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		requireDecimal(t, "150", sum)

		locked.Recompute(sum, epoch)
		return tx.UpdateInvoice(ctx, locked)
	})
	require.NoError(t, err)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	requireDecimal(t, "150", got.PaidAmount.Amount)
	requireDecimal(t, inv.TotalAmount.Amount.Sub(decimal.NewFromInt(150)).String(), got.BalanceAmount.Amount)
	assert.Equal(t, invoice.StatusPartPaid, got.Status)
	require.Len(t, got.Lines, 2, "updates leave lines untouched")

	// Void one payment; the sum excludes it.
	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetPayment(ctx, p2.ID)
		if err != nil {
			return err
		}
		if err := p.Void("user_1", "duplicate", epoch); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		sum, err := tx.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		requireDecimal(t, "100", sum)
		return nil
	})
	require.NoError(t, err)

	voided, err := s.GetPayment(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusVoid, voided.Status)
	assert.Equal(t, "duplicate", voided.VoidReason)
	require.NotNil(t, voided.VoidedAt)

	payments, err := s.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockInvoice(ctx, id.NewInvoiceID())
		return err
	})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()

	inv := NewInvoice(t, "org_1")
	require.NoError(t, s.CreateInvoice(ctx, inv))

	boom := errors.New("boom")
	p := NewPayment(inv, "10.00")
	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		locked.Recompute(decimal.NewFromInt(10), epoch)
		if err := tx.UpdateInvoice(ctx, locked); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetPayment(ctx, p.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Amount.IsZero())
	assert.Equal(t, invoice.StatusDraft, got.Status)
}

func testIdempotency(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := idempotency.Key{OrganizationID: "org_1", UserID: "user_1", Route: "payments.apply", Key: "k1"}

	rec := &idempotency.Record{
		ID:             id.NewIdempotencyID(),
		OrganizationID: key.OrganizationID,
		UserID:         key.UserID,
		Route:          key.Route,
		Key:            key.Key,
		RequestHash:    "aa",
		Response:       []byte(`{"id":"pay_1"}`),
		CreatedAt:      epoch,
		ExpiresAt:      epoch.Add(time.Hour),
	}

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetIdempotencyRecord(ctx, key)
		require.ErrorIs(t, err, types.ErrNotFound)
		return tx.PutIdempotencyRecord(ctx, rec)
	})
	require.NoError(t, err)

	replaced := *rec
	replaced.ID = id.NewIdempotencyID()
	replaced.RequestHash = "bb"
	replaced.ExpiresAt = epoch.Add(48 * time.Hour)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetIdempotencyRecord(ctx, key)
		if err != nil {
			return err
		}
		assert.Equal(t, "aa", got.RequestHash)
		assert.JSONEq(t, `{"id":"pay_1"}`, string(got.Response))
		return tx.PutIdempotencyRecord(ctx, &replaced)
	})
	require.NoError(t, err)

	other := *rec
	other.ID = id.NewIdempotencyID()
	other.Key = "k2"
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.PutIdempotencyRecord(ctx, &other)
	}))

	n, err := s.PurgeIdempotency(ctx, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetIdempotencyRecord(ctx, key)
		if err != nil {
			return err
		}
		assert.Equal(t, "bb", got.RequestHash)
		return nil
	})
	require.NoError(t, err)
}

func testConcurrentUnitsOfWork(t *testing.T, s store.Store) {
	ctx := context.Background()

	inv := NewInvoice(t, "org_1")
	require.NoError(t, s.CreateInvoice(ctx, inv))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
				locked, err := tx.LockInvoice(ctx, inv.ID)
				if err != nil {
					return err
				}
				if err := tx.InsertPayment(ctx, NewPayment(locked, "1.00")); err != nil {
					return err
				}
				sum, err := tx.SumPayments(ctx, inv.ID)
				if err != nil {
					return err
				}
				locked.Recompute(sum, epoch)
				return tx.UpdateInvoice(ctx, locked)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	requireDecimal(t, "8", got.PaidAmount.Amount)
}
