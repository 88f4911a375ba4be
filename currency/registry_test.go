package currency_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/cache"
	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/types"
)

type countingStore struct {
	mu    sync.Mutex
	data  map[string]*currency.Currency
	loads int
}

func newCountingStore() *countingStore {
	s := &countingStore{data: make(map[string]*currency.Currency)}
	for _, c := range currency.Defaults() {
		s.data[c.Code] = c
	}
	return s
}

func (s *countingStore) PutCurrency(_ context.Context, c *currency.Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.data[c.Code] = &cp
	return nil
}

func (s *countingStore) GetCurrency(_ context.Context, code string) (*currency.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	c, ok := s.data[code]
	if !ok {
		return nil, types.NotFound("currency", code)
	}
	cp := *c
	return &cp, nil
}

func (s *countingStore) ListCurrencies(context.Context) ([]*currency.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*currency.Currency, 0, len(s.data))
	for _, c := range s.data {
		out = append(out, c)
	}
	return out, nil
}

func TestRegistry_Get(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	r := currency.NewRegistry(s, cache.NewTTLCache[string, *currency.Currency]())

	c, err := r.Get(ctx, "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", c.Code)
	assert.Equal(t, int32(2), c.DecimalPlaces)

	_, err = r.Get(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, 1, s.loads, "second lookup is served from cache")

	_, err = r.Get(ctx, "XYZ")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = r.Get(ctx, "US")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRegistry_Validate(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	r := currency.NewRegistry(s, nil)

	jpy, err := r.Validate(ctx, "currency", "JPY")
	require.NoError(t, err)
	assert.Equal(t, int32(0), jpy.DecimalPlaces)

	_, err = r.Validate(ctx, "currency", "XYZ")
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.ErrorIs(t, err, types.ErrUnknownCurrency)

	require.NoError(t, r.Put(ctx, &currency.Currency{Code: "ZAR", Name: "Rand", DecimalPlaces: 2, Active: false}))
	_, err = r.Validate(ctx, "currency", "ZAR")
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.ErrorIs(t, err, types.ErrInactiveCurrency)

	d, err := r.Decimals(ctx, "KRW")
	require.NoError(t, err)
	assert.Equal(t, int32(0), d)
}

func TestRegistry_PutInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	r := currency.NewRegistry(s, cache.NewTTLCache[string, *currency.Currency]())

	_, err := r.Validate(ctx, "currency", "SEK")
	require.NoError(t, err)

	require.NoError(t, r.Put(ctx, &currency.Currency{Code: "sek", Name: "Swedish Krona", DecimalPlaces: 2, Active: false}))

	_, err = r.Validate(ctx, "currency", "SEK")
	assert.ErrorIs(t, err, types.ErrInactiveCurrency)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r := currency.NewRegistry(newCountingStore(), cache.NewTTLCache[string, *currency.Currency]())

	c, err := r.Get(ctx, "EUR")
	require.NoError(t, err)
	c.DecimalPlaces = 7

	again, err := r.Get(ctx, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int32(2), again.DecimalPlaces)
}

func TestCurrency_Validate(t *testing.T) {
	tests := []struct {
		name  string
		c     currency.Currency
		field string
	}{
		{"lower case", currency.Currency{Code: "usd", Name: "x"}, "code"},
		{"short", currency.Currency{Code: "US", Name: "x"}, "code"},
		{"no name", currency.Currency{Code: "USD"}, "name"},
		{"too many places", currency.Currency{Code: "KWD", Name: "x", DecimalPlaces: 3}, "decimal_places"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			var ve *types.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDefaults(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range currency.Defaults() {
		require.NoError(t, c.Validate(), c.Code)
		assert.True(t, c.Active)
		assert.False(t, seen[c.Code], "duplicate %s", c.Code)
		seen[c.Code] = true
	}
	assert.True(t, seen["NZD"])
	assert.True(t, seen["JPY"])
}
