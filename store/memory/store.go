// Package memory provides an in-memory store.Store for tests and
// development. Units of work are serialized by a store-wide mutex and
// buffer their writes until commit.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	// txMu serializes units of work; it stands in for row locks.
	txMu sync.Mutex
	mu   sync.RWMutex

	currencies map[string]*currency.Currency
	rates      map[string]*fxrate.Rate
	invoices   map[string]*invoice.Invoice
	payments   map[string]*payment.Payment
	idem       map[idempotency.Key]*idempotency.Record

	closed bool
}

func New() *Store {
	return &Store{
		currencies: make(map[string]*currency.Currency),
		rates:      make(map[string]*fxrate.Rate),
		invoices:   make(map[string]*invoice.Invoice),
		payments:   make(map[string]*payment.Payment),
		idem:       make(map[idempotency.Key]*idempotency.Record),
	}
}

// Currency Store implementation
func (s *Store) PutCurrency(_ context.Context, c *currency.Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreClosed
	}

	cp := *c
	if prev, ok := s.currencies[c.Code]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	s.currencies[c.Code] = &cp
	return nil
}

func (s *Store) GetCurrency(_ context.Context, code string) (*currency.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.currencies[code]
	if !ok {
		return nil, types.NotFound("currency", code)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCurrencies(_ context.Context) ([]*currency.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*currency.Currency, 0, len(s.currencies))
	for _, c := range s.currencies {
		cp := *c
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *currency.Currency) int { return cmp.Compare(a.Code, b.Code) })
	return result, nil
}

// FX rate Store implementation
func (s *Store) CreateRate(_ context.Context, r *fxrate.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreClosed
	}

	for _, existing := range s.rates {
		if existing.Base == r.Base && existing.Quote == r.Quote && existing.EffectiveFrom.Equal(r.EffectiveFrom) {
			return types.Conflict("fx rate", types.ErrDuplicateRate)
		}
	}
	cp := *r
	s.rates[r.ID.String()] = &cp
	return nil
}

func (s *Store) GetRate(_ context.Context, rateID id.FXRateID) (*fxrate.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rates[rateID.String()]
	if !ok {
		return nil, types.NotFound("fx rate", rateID.String())
	}
	cp := *r
	return &cp, nil
}

func (s *Store) LatestRate(_ context.Context, base, quote string, asOf time.Time) (*fxrate.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *fxrate.Rate
	for _, r := range s.rates {
		if r.Base != base || r.Quote != quote || r.EffectiveFrom.After(asOf) {
			continue
		}
		if best == nil || r.EffectiveFrom.After(best.EffectiveFrom) {
			best = r
		}
	}
	if best == nil {
		return nil, &types.NotFoundError{Resource: "fx rate", ID: base + "/" + quote, Cause: types.ErrFXRateNotFound}
	}
	cp := *best
	return &cp, nil
}

func (s *Store) ListRates(_ context.Context, base, quote string) ([]*fxrate.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*fxrate.Rate, 0)
	for _, r := range s.rates {
		if (base == "" || r.Base == base) && (quote == "" || r.Quote == quote) {
			cp := *r
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *fxrate.Rate) int {
		return cmp.Or(
			cmp.Compare(a.Base, b.Base),
			cmp.Compare(a.Quote, b.Quote),
			a.EffectiveFrom.Compare(b.EffectiveFrom),
		)
	})
	return result, nil
}

// Invoice Store implementation
func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreClosed
	}

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return &types.ConflictError{Resource: "invoice", Reason: "already exists"}
	}
	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return nil, types.NotFound("invoice", invID.String())
	}
	return inv.Clone(), nil
}

func (s *Store) ListInvoices(_ context.Context, orgID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.OrganizationID == orgID && opts.Matches(inv) {
			result = append(result, inv.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *invoice.Invoice) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return page(result, opts.Offset, opts.Limit), nil
}

// Payment Store implementation
func (s *Store) GetPayment(_ context.Context, payID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[payID.String()]
	if !ok {
		return nil, types.NotFound("payment", payID.String())
	}
	return p.Clone(), nil
}

func (s *Store) ListPayments(_ context.Context, invID id.InvoiceID) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if p.InvoiceID == invID {
			result = append(result, p.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *payment.Payment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return result, nil
}

// PurgeIdempotency removes records that expired before the given time.
func (s *Store) PurgeIdempotency(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, r := range s.idem {
		if r.ExpiresAt.Before(before) {
			delete(s.idem, k)
			n++
		}
	}
	return n, nil
}

// InTx runs fn under the store-wide transaction mutex. Writes are buffered
// in the tx and applied atomically when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return types.ErrStoreClosed
	}

	t := &tx{
		s:        s,
		invoices: make(map[string]*invoice.Invoice),
		payments: make(map[string]*payment.Payment),
		idem:     make(map[idempotency.Key]*idempotency.Record),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}

// tx buffers writes of one unit of work.
type tx struct {
	s        *Store
	invoices map[string]*invoice.Invoice
	payments map[string]*payment.Payment
	idem     map[idempotency.Key]*idempotency.Record
}

func (t *tx) LockInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	if inv, ok := t.invoices[invID.String()]; ok {
		return inv.Clone(), nil
	}
	return t.s.GetInvoice(ctx, invID)
}

func (t *tx) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := t.LockInvoice(ctx, inv.ID); err != nil {
		return err
	}
	t.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (t *tx) GetPayment(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	if p, ok := t.payments[payID.String()]; ok {
		return p.Clone(), nil
	}
	return t.s.GetPayment(ctx, payID)
}

func (t *tx) InsertPayment(_ context.Context, p *payment.Payment) error {
	t.s.mu.RLock()
	_, exists := t.s.payments[p.ID.String()]
	t.s.mu.RUnlock()
	if _, pending := t.payments[p.ID.String()]; exists || pending {
		return &types.ConflictError{Resource: "payment", Reason: "already exists"}
	}
	t.payments[p.ID.String()] = p.Clone()
	return nil
}

func (t *tx) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	if _, err := t.GetPayment(ctx, p.ID); err != nil {
		return err
	}
	t.payments[p.ID.String()] = p.Clone()
	return nil
}

func (t *tx) SumPayments(_ context.Context, invID id.InvoiceID) (decimal.Decimal, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	sum := decimal.Zero
	for key, p := range t.s.payments {
		if pending, ok := t.payments[key]; ok {
			p = pending
		}
		if p.InvoiceID == invID && p.Counts() {
			sum = sum.Add(p.Amount.Amount)
		}
	}
	for key, p := range t.payments {
		if _, committed := t.s.payments[key]; committed {
			continue
		}
		if p.InvoiceID == invID && p.Counts() {
			sum = sum.Add(p.Amount.Amount)
		}
	}
	return sum, nil
}

func (t *tx) GetIdempotencyRecord(_ context.Context, k idempotency.Key) (*idempotency.Record, error) {
	if r, ok := t.idem[k]; ok {
		cp := *r
		return &cp, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	r, ok := t.s.idem[k]
	if !ok {
		return nil, types.NotFound("idempotency record", k.String())
	}
	cp := *r
	return &cp, nil
}

func (t *tx) PutIdempotencyRecord(_ context.Context, r *idempotency.Record) error {
	cp := *r
	t.idem[r.RecordKey()] = &cp
	return nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for k, inv := range t.invoices {
		t.s.invoices[k] = inv
	}
	for k, p := range t.payments {
		t.s.payments[k] = p
	}
	for k, r := range t.idem {
		t.s.idem[k] = r
	}
}
