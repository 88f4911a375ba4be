package extension

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/reckon"
	"github.com/xraph/reckon/plugin"
	"github.com/xraph/reckon/store"
)

// Option configures the Reckon Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine. It bypasses Store.Driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a reckon.Option through to the underlying engine.
func WithEngineOption(opt reckon.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a reckon plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, reckon.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.Store.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithStoreDriver selects the store backend built at Register.
func WithStoreDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Store.Driver = driver
		e.config.Store.DSN = dsn
	}
}

// WithReportingCurrency sets the currency invoices snapshot an FX rate into.
func WithReportingCurrency(code string) Option {
	return func(e *Extension) { e.config.ReportingCurrency = code }
}

// WithIdempotencyTTL sets how long a stored payment response is replayed.
func WithIdempotencyTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.Idempotency.TTL = d }
}

// WithMetricsRegisterer enables Prometheus metrics on reg. A nil reg uses
// the default registerer.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(e *Extension) {
		e.config.Metrics.Enabled = true
		e.registerer = reg
	}
}
