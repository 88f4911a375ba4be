// Package extension provides the Forge extension adapter for Reckon.
//
// It implements the forge.Extension interface to integrate the Reckon
// engine into a Forge application with store construction from config,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.reckon" or "reckon" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/reckon"
	"github.com/xraph/reckon/observability"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/store/dial"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "reckon"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Quoting, invoicing and payment-ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Reckon as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *reckon.Engine
	store      store.Store
	ownStore   bool
	registerer prometheus.Registerer
	engineOpts []reckon.Option
}

// New creates a new Reckon Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *reckon.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration, opens the
// configured store, builds the engine and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	if e.store == nil {
		s, err := dial.Open(context.Background(), e.config.Store, nil)
		if err != nil {
			return fmt.Errorf("reckon: open store: %w", err)
		}
		e.store = s
		e.ownStore = true
	}

	e.engine = reckon.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*reckon.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension]. It migrates the store unless
// disabled and seeds the currency catalogue.
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("reckon: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension]. A store passed with WithStore is
// left open for its owner.
func (e *Extension) Stop(_ context.Context) error {
	defer e.MarkStopped()

	if e.engine == nil {
		return nil
	}
	if e.ownStore {
		return e.engine.Stop()
	}
	e.engine.Plugins().EmitShutdown(context.Background())
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("reckon: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs reckon.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]reckon.Option, error) {
	opts := make([]reckon.Option, 0, len(e.engineOpts)+3)
	opts = append(opts, reckon.WithConfig(e.config.Config))

	logger, err := observability.NewLogger(e.config.Log.Level, e.config.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("reckon: logger: %w", err)
	}
	opts = append(opts, reckon.WithLogger(logger))

	if e.config.Metrics.Enabled {
		factory := observability.NewPrometheusFactory(e.registerer, prometheus.Labels{
			"namespace": e.config.Metrics.Namespace,
		})
		opts = append(opts, reckon.WithMetrics(factory))
	}

	// Pass-through options come last so they win.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("reckon: configuration is required but not found in config files; " +
				"ensure 'extensions.reckon' or 'reckon' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if err := e.config.Validate(); err != nil {
		return fmt.Errorf("reckon: %w", err)
	}

	e.Logger().Debug("reckon: configuration loaded",
		forge.F("store_driver", e.config.Store.Driver),
		forge.F("disable_migrate", e.config.Store.DisableMigrate),
		forge.F("idempotency_ttl", e.config.Idempotency.TTL),
		forge.F("cache_ttl", e.config.Cache.TTL),
		forge.F("reporting_currency", e.config.ReportingCurrency),
		forge.F("metrics_enabled", e.config.Metrics.Enabled),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.reckon", "reckon"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("reckon: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("reckon: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	cfg.FillDefaults()
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill
// gaps and programmatic bool flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	y, p := &yamlConfig.Config, programmaticConfig.Config

	// Programmatic bool flags override when true.
	if p.Store.DisableMigrate {
		y.Store.DisableMigrate = true
	}
	if p.Metrics.Enabled {
		y.Metrics.Enabled = true
	}

	// String fields: YAML takes precedence.
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&y.Store.Driver, p.Store.Driver)
	fill(&y.Store.DSN, p.Store.DSN)
	fill(&y.Store.Database, p.Store.Database)
	fill(&y.Log.Level, p.Log.Level)
	fill(&y.Log.Format, p.Log.Format)
	fill(&y.Metrics.Namespace, p.Metrics.Namespace)
	fill(&y.ReportingCurrency, p.ReportingCurrency)

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if y.Idempotency.TTL == 0 {
		y.Idempotency.TTL = p.Idempotency.TTL
	}
	if y.Cache.TTL == 0 {
		y.Cache.TTL = p.Cache.TTL
	}
	if y.Cache.Jitter == 0 {
		y.Cache.Jitter = p.Cache.Jitter
	}

	yamlConfig.RequireConfig = programmaticConfig.RequireConfig

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
