package fxrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xraph/reckon/types"
)

// Resolver finds the rate in effect for a pair on a date.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver creates a Resolver over s.
func NewResolver(s Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: s, logger: logger.Named("fxrate")}
}

// Resolve returns the rate with the greatest EffectiveFrom <= asOf for the
// exact pair. If none exists it falls back to the inverse pair (1/rate).
// When neither exists the error is a NotFoundError wrapping
// types.ErrFXRateNotFound. Same-currency pairs resolve to an identity rate
// with a Nil ID.
func (r *Resolver) Resolve(ctx context.Context, base, quote string, asOf time.Time) (*Rate, error) {
	base = types.NormalizeCurrency(base)
	quote = types.NormalizeCurrency(quote)
	day := Date(asOf)

	if base == quote {
		return &Rate{Base: base, Quote: quote, Rate: decimal.NewFromInt(1), EffectiveFrom: day, Source: "identity", Verified: true}, nil
	}

	rate, err := r.store.LatestRate(ctx, base, quote, day)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("fxrate: resolve %s/%s: %w", base, quote, err)
	}

	inverse, err := r.store.LatestRate(ctx, quote, base, day)
	if err == nil {
		r.logger.Debug("resolved via inverse pair",
			zap.String("base", base),
			zap.String("quote", quote),
			zap.String("rate_id", inverse.ID.String()),
		)
		return inverse.Invert(), nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("fxrate: resolve %s/%s: %w", quote, base, err)
	}

	return nil, &types.NotFoundError{
		Resource: "fx rate",
		ID:       fmt.Sprintf("%s/%s@%s", base, quote, day.Format(time.DateOnly)),
		Cause:    types.ErrFXRateNotFound,
	}
}

// ConvertForDisplay converts m into target at rate and rounds to
// targetDecimals. It is used for reporting only and never for amounts that
// are persisted as transactional values.
func ConvertForDisplay(m types.Money, target string, rate decimal.Decimal, targetDecimals int32) types.Money {
	return types.Money{
		Amount:   types.RoundHalfUp(m.Amount.Mul(rate), targetDecimals),
		Currency: types.NormalizeCurrency(target),
	}
}
