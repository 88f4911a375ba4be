package reckon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xraph/reckon/audit"
	"github.com/xraph/reckon/authz"
	"github.com/xraph/reckon/cache"
	"github.com/xraph/reckon/config"
	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/observability"
	"github.com/xraph/reckon/plugin"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/types"
)

// Engine is the quoting, invoicing and payment-ledger engine.
type Engine struct {
	store      store.Store
	currencies *currency.Registry
	resolver   *fxrate.Resolver
	idem       *idempotency.Guard
	plugins    *plugin.Registry
	audit      audit.Sink
	gate       authz.Gate
	instr      *observability.Instrumenter
	logger     *zap.Logger
	now        func() time.Time

	// Configuration
	metrics           observability.MetricFactory
	tracer            trace.Tracer
	idempotencyTTL    time.Duration
	cacheBackend      cache.Backend[string, *currency.Currency]
	cacheTTL          time.Duration
	cacheJitter       time.Duration
	reportingCurrency string
	disableMigrate    bool
}

// Actor identifies who performs a call. Every mutation is scoped to the
// actor's organization and checked against the permission gate.
type Actor struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		plugins:        plugin.NewRegistry(),
		audit:          audit.Nop(),
		gate:           authz.AllowAll(),
		logger:         zap.NewNop(),
		now:            time.Now,
		metrics:        observability.Nop(),
		idempotencyTTL: idempotency.DefaultTTL,
		cacheBackend:   cache.NewTTLCache[string, *currency.Currency](),
		cacheTTL:       5 * time.Minute,
		cacheJitter:    30 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.currencies = currency.NewRegistry(s, e.cacheBackend,
		cache.WithTTL(e.cacheTTL),
		cache.WithJitter(e.cacheJitter),
		cache.WithLogger(e.logger),
		cache.WithMetrics(e.metrics),
	)
	e.resolver = fxrate.NewResolver(s, e.logger)
	e.idem = idempotency.NewGuard(
		idempotency.WithTTL(e.idempotencyTTL),
		idempotency.WithClock(e.now),
	)
	e.instr = observability.NewInstrumenter(e.metrics, e.tracer)

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.Named("reckon")
		e.plugins.WithLogger(e.logger)
	}
}

// WithMetrics sets the metric factory used for operation latency, cache
// statistics and lifecycle counters.
func WithMetrics(factory observability.MetricFactory) Option {
	return func(e *Engine) {
		e.metrics = factory
		_ = e.plugins.Register(observability.NewMetricsExtension(factory)) //nolint:errcheck // registered once per engine
	}
}

// WithTracer sets the OpenTelemetry tracer. The global provider is used
// otherwise.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithAuditSink sets where audit events go.
func WithAuditSink(sink audit.Sink) Option {
	return func(e *Engine) { e.audit = sink }
}

// WithGate sets the permission oracle.
func WithGate(g authz.Gate) Option {
	return func(e *Engine) { e.gate = g }
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIdempotencyTTL sets how long a stored payment response is replayed.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.idempotencyTTL = ttl }
}

// WithCurrencyCache sets the currency cache backend and its TTL. A nil
// backend disables caching.
func WithCurrencyCache(backend cache.Backend[string, *currency.Currency], ttl, jitter time.Duration) Option {
	return func(e *Engine) {
		e.cacheBackend = backend
		e.cacheTTL = ttl
		e.cacheJitter = jitter
	}
}

// WithReportingCurrency sets the currency invoices snapshot an exchange
// rate into.
func WithReportingCurrency(code string) Option {
	return func(e *Engine) { e.reportingCurrency = types.NormalizeCurrency(code) }
}

// WithDisableMigrate skips schema migration in Start.
func WithDisableMigrate() Option {
	return func(e *Engine) { e.disableMigrate = true }
}

// WithConfig applies the engine settings of cfg: idempotency TTL, cache
// timings, reporting currency and the migrate switch. Store selection and
// logging are left to the caller.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		if cfg.Idempotency.TTL > 0 {
			e.idempotencyTTL = cfg.Idempotency.TTL
		}
		if cfg.Cache.TTL > 0 {
			e.cacheTTL = cfg.Cache.TTL
		}
		if cfg.Cache.Jitter > 0 {
			e.cacheJitter = cfg.Cache.Jitter
		}
		if cfg.ReportingCurrency != "" {
			e.reportingCurrency = types.NormalizeCurrency(cfg.ReportingCurrency)
		}
		if cfg.Store.DisableMigrate {
			e.disableMigrate = true
		}
	}
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start migrates the store, seeds the default currency catalogue and
// initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if !e.disableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	seeded, err := e.seedCurrencies(ctx)
	if err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("reckon started",
		zap.Int("currencies_seeded", seeded),
		zap.Duration("idempotency_ttl", e.idempotencyTTL),
		zap.String("reporting_currency", e.reportingCurrency),
		zap.Int("plugins", e.plugins.Count()),
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// seedCurrencies inserts the default catalogue entries that are missing.
// Existing entries are left alone so administrators' edits survive restarts.
func (e *Engine) seedCurrencies(ctx context.Context) (int, error) {
	seeded := 0
	for _, c := range currency.Defaults() {
		_, err := e.store.GetCurrency(ctx, c.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, types.ErrNotFound) {
			return seeded, fmt.Errorf("reckon: seed currencies: %w", err)
		}
		c.Entity = types.NewEntity(e.now().UTC())
		if err := e.store.PutCurrency(ctx, c); err != nil {
			return seeded, fmt.Errorf("reckon: seed currencies: %w", err)
		}
		seeded++
	}
	return seeded, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// authorize consults the gate. A denial is audited and returned as a
// PermissionError.
func (e *Engine) authorize(ctx context.Context, actor Actor, permission, entityType, entityID string) error {
	ok, err := e.gate.Allowed(ctx, actor.UserID, permission)
	if err != nil {
		return fmt.Errorf("reckon: permission check %s: %w", permission, err)
	}
	if ok {
		return nil
	}

	e.record(ctx, &audit.Event{
		Action:         audit.ActionPermissionDenied,
		EntityType:     entityType,
		EntityID:       entityID,
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		Outcome:        audit.OutcomeDenied,
		Reason:         permission,
	})
	observability.WithTrace(ctx, e.logger).Warn("permission denied",
		zap.String("user_id", actor.UserID),
		zap.String("permission", permission),
		zap.String("entity_id", entityID),
	)
	return types.Denied(actor.UserID, permission)
}

func (e *Engine) record(ctx context.Context, event *audit.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now().UTC()
	}
	_ = e.audit.Record(ctx, event) //nolint:errcheck // the sink logs its own failures
}

// fail logs infrastructure errors with context and returns err unchanged.
// Classified domain errors are the caller's business and are not logged.
func (e *Engine) fail(ctx context.Context, op string, err error, fields ...zap.Field) error {
	if err != nil && !isDomain(err) {
		observability.WithTrace(ctx, e.logger).Error(op+" failed", append(fields, zap.Error(err))...)
	}
	return err
}

// ownedBy hides entities of other organizations behind a NotFoundError.
func ownedBy(actor Actor, orgID, resource, entityID string) error {
	if actor.OrganizationID != orgID {
		return types.NotFound(resource, entityID)
	}
	return nil
}
