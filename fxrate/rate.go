// Package fxrate stores historical exchange rates and resolves the rate in
// effect for a currency pair on a given date.
package fxrate

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/types"
)

// RatePlaces is the fixed scale of stored exchange rates.
const RatePlaces = 6

// Rate is the price of one unit of Base expressed in Quote, effective from
// a calendar date (UTC) until superseded by a later rate for the same pair.
type Rate struct {
	types.Entity
	ID            id.FXRateID     `json:"id"`
	Base          string          `json:"base"`
	Quote         string          `json:"quote"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom time.Time       `json:"effective_from"`
	Source        string          `json:"source,omitempty"`
	Verified      bool            `json:"verified"`

	// Inverted is set on resolved rates derived from the opposite pair.
	// It is never persisted.
	Inverted bool `json:"inverted,omitempty"`
}

// Date truncates t to midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Normalize upper-cases the pair, rounds the rate to RatePlaces and
// truncates the effective date.
func (r *Rate) Normalize() {
	r.Base = types.NormalizeCurrency(r.Base)
	r.Quote = types.NormalizeCurrency(r.Quote)
	r.Rate = types.RoundHalfUp(r.Rate, RatePlaces)
	r.EffectiveFrom = Date(r.EffectiveFrom)
}

// Validate checks the structural rules of a rate. Currency existence is
// checked by the caller against the registry.
func (r *Rate) Validate() error {
	if len(r.Base) != 3 {
		return types.Invalid("base", "must be a 3-letter ISO 4217 code")
	}
	if len(r.Quote) != 3 {
		return types.Invalid("quote", "must be a 3-letter ISO 4217 code")
	}
	if r.Base == r.Quote {
		return types.Invalid("quote", "must differ from base")
	}
	if !r.Rate.IsPositive() {
		return types.Invalid("rate", "must be greater than zero")
	}
	if r.EffectiveFrom.IsZero() {
		return types.Invalid("effective_from", "is required")
	}
	return nil
}

// Invert returns the rate for the opposite pair, 1/rate rounded to
// RatePlaces. The ID still references the stored record.
func (r *Rate) Invert() *Rate {
	inv := *r
	inv.Base, inv.Quote = r.Quote, r.Base
	inv.Rate = decimal.NewFromInt(1).DivRound(r.Rate, RatePlaces)
	inv.Inverted = !r.Inverted
	return &inv
}

// Store persists exchange rates.
type Store interface {
	// CreateRate inserts a rate. A second rate for the same (base, quote,
	// effective_from) is a ConflictError wrapping types.ErrDuplicateRate.
	CreateRate(ctx context.Context, r *Rate) error
	GetRate(ctx context.Context, rateID id.FXRateID) (*Rate, error)
	// LatestRate returns the rate with the greatest EffectiveFrom <= asOf
	// for the exact pair, or a NotFoundError.
	LatestRate(ctx context.Context, base, quote string, asOf time.Time) (*Rate, error)
	ListRates(ctx context.Context, base, quote string) ([]*Rate, error)
}
