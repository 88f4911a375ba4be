package currency

import (
	"context"
	"errors"

	"github.com/xraph/reckon/cache"
	"github.com/xraph/reckon/types"
)

// Registry answers currency lookups through a read-through cache.
type Registry struct {
	store Store
	cache *cache.ReadThrough[string, *Currency]
}

// NewRegistry creates a Registry over s. backend may be nil to disable
// caching; opts configure the read-through layer.
func NewRegistry(s Store, backend cache.Backend[string, *Currency], opts ...cache.Option) *Registry {
	r := &Registry{store: s}
	opts = append([]cache.Option{cache.WithName("currency")}, opts...)
	r.cache = cache.NewReadThrough(backend, r.load, opts...)
	return r
}

func (r *Registry) load(ctx context.Context, code string) (*Currency, error) {
	return r.store.GetCurrency(ctx, code)
}

// Get returns the currency for code, or a NotFoundError. Malformed codes
// are a ValidationError.
func (r *Registry) Get(ctx context.Context, code string) (*Currency, error) {
	code = types.NormalizeCurrency(code)
	if !IsCode(code) {
		return nil, types.InvalidCause("currency", types.ErrUnknownCurrency)
	}
	c, err := r.cache.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

// Validate returns the currency if it exists and is active. Unknown and
// inactive currencies are ValidationErrors on field so they surface as
// request errors.
func (r *Registry) Validate(ctx context.Context, field, code string) (*Currency, error) {
	c, err := r.Get(ctx, code)
	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrValidation):
		return nil, types.InvalidCause(field, types.ErrUnknownCurrency)
	case err != nil:
		return nil, err
	case !c.Active:
		return nil, types.InvalidCause(field, types.ErrInactiveCurrency)
	}
	return c, nil
}

// Decimals returns the decimal places of an active currency.
func (r *Registry) Decimals(ctx context.Context, code string) (int32, error) {
	c, err := r.Validate(ctx, "currency", code)
	if err != nil {
		return 0, err
	}
	return c.DecimalPlaces, nil
}

// Put validates and stores c, then drops any cached copy.
func (r *Registry) Put(ctx context.Context, c *Currency) error {
	c.Code = types.NormalizeCurrency(c.Code)
	if err := c.Validate(); err != nil {
		return err
	}
	if err := r.store.PutCurrency(ctx, c); err != nil {
		return err
	}
	r.Invalidate(ctx, c.Code)
	return nil
}

// Invalidate drops the cached entry for code.
func (r *Registry) Invalidate(ctx context.Context, code string) {
	r.cache.Invalidate(ctx, types.NormalizeCurrency(code))
}

// List returns the whole catalogue from the store.
func (r *Registry) List(ctx context.Context) ([]*Currency, error) {
	return r.store.ListCurrencies(ctx)
}
