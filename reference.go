package reckon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xraph/reckon/audit"
	"github.com/xraph/reckon/authz"
	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/types"
)

// ──────────────────────────────────────────────────
// FX rates
// ──────────────────────────────────────────────────

// AddFXRate stores a historical exchange rate. The rate is rounded to six
// decimal places and its effective date truncated to midnight UTC. A second
// rate for the same pair and date is a ConflictError.
func (e *Engine) AddFXRate(ctx context.Context, actor Actor, r *fxrate.Rate) (*fxrate.Rate, error) {
	if err := e.authorize(ctx, actor, authz.FXRateCreate, audit.EntityFXRate, ""); err != nil {
		return nil, err
	}

	rate := *r
	rate.Normalize()
	rate.Inverted = false
	if err := rate.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.currencies.Validate(ctx, "base", rate.Base); err != nil {
		return nil, err
	}
	if _, err := e.currencies.Validate(ctx, "quote", rate.Quote); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	rate.ID = id.NewFXRateID()
	rate.Entity = types.NewEntity(now)

	if err := e.store.CreateRate(ctx, &rate); err != nil {
		return nil, e.fail(ctx, "add fx rate", err,
			zap.String("base", rate.Base),
			zap.String("quote", rate.Quote),
		)
	}

	e.record(ctx, &audit.Event{
		Action:         audit.ActionFXRateCreated,
		EntityType:     audit.EntityFXRate,
		EntityID:       rate.ID.String(),
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		NewValues: map[string]any{
			"base":           rate.Base,
			"quote":          rate.Quote,
			"rate":           rate.Rate.String(),
			"effective_from": rate.EffectiveFrom.Format(time.DateOnly),
			"source":         rate.Source,
		},
	})
	e.plugins.EmitFXRateAdded(ctx, &rate)

	return &rate, nil
}

// ResolveFXRate returns the rate for base/quote in force on asOf, falling
// back to the inverse of the opposite pair.
func (e *Engine) ResolveFXRate(ctx context.Context, base, quote string, asOf time.Time) (*fxrate.Rate, error) {
	rate, err := e.resolver.Resolve(ctx, base, quote, asOf)
	if err != nil {
		return nil, e.fail(ctx, "resolve fx rate", err)
	}
	return rate, nil
}

// ListFXRates lists stored rates, optionally for one pair.
func (e *Engine) ListFXRates(ctx context.Context, base, quote string) ([]*fxrate.Rate, error) {
	return e.store.ListRates(ctx, types.NormalizeCurrency(base), types.NormalizeCurrency(quote))
}

// ──────────────────────────────────────────────────
// Currencies
// ──────────────────────────────────────────────────

// RegisterCurrency adds or replaces a catalogue entry.
func (e *Engine) RegisterCurrency(ctx context.Context, actor Actor, c *currency.Currency) (*currency.Currency, error) {
	if err := e.authorize(ctx, actor, authz.CurrencyManage, audit.EntityCurrency, c.Code); err != nil {
		return nil, err
	}

	entry := *c
	entry.Code = types.NormalizeCurrency(entry.Code)
	now := e.now().UTC()

	var old map[string]any
	existing, err := e.store.GetCurrency(ctx, entry.Code)
	switch {
	case err == nil:
		entry.CreatedAt = existing.CreatedAt
		entry.UpdatedAt = now
		old = currencyValues(existing)
	case errors.Is(err, types.ErrNotFound):
		entry.Entity = types.NewEntity(now)
	default:
		return nil, e.fail(ctx, "register currency", err)
	}

	if err := e.currencies.Put(ctx, &entry); err != nil {
		return nil, e.fail(ctx, "register currency", err, zap.String("code", entry.Code))
	}

	e.record(ctx, &audit.Event{
		Action:         audit.ActionCurrencyUpserted,
		EntityType:     audit.EntityCurrency,
		EntityID:       entry.Code,
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		OldValues:      old,
		NewValues:      currencyValues(&entry),
	})
	return &entry, nil
}

// GetCurrency returns a catalogue entry through the cache.
func (e *Engine) GetCurrency(ctx context.Context, code string) (*currency.Currency, error) {
	return e.currencies.Get(ctx, code)
}

// ListCurrencies returns the catalogue.
func (e *Engine) ListCurrencies(ctx context.Context) ([]*currency.Currency, error) {
	return e.currencies.List(ctx)
}

func currencyValues(c *currency.Currency) map[string]any {
	return map[string]any{
		"name":           c.Name,
		"symbol":         c.Symbol,
		"decimal_places": c.DecimalPlaces,
		"active":         c.Active,
	}
}

// ──────────────────────────────────────────────────
// Maintenance
// ──────────────────────────────────────────────────

// PurgeExpiredIdempotency deletes idempotency records past their replay
// window and returns how many were removed.
func (e *Engine) PurgeExpiredIdempotency(ctx context.Context, actor Actor) (int64, error) {
	if err := e.authorize(ctx, actor, authz.MaintenanceRun, audit.EntityIdempotency, ""); err != nil {
		return 0, err
	}

	n, err := e.store.PurgeIdempotency(ctx, e.now().UTC())
	if err != nil {
		return 0, e.fail(ctx, "purge idempotency", err)
	}

	e.record(ctx, &audit.Event{
		Action:         audit.ActionIdempotencyPurged,
		EntityType:     audit.EntityIdempotency,
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		NewValues:      map[string]any{"deleted": n},
	})
	e.logger.Info("idempotency records purged", zap.Int64("deleted", n))
	return n, nil
}
