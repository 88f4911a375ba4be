package extension

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon"
	"github.com/xraph/reckon/config"
	"github.com/xraph/reckon/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{})

	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "reckon", cfg.Metrics.Namespace)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{Config: config.Config{
		Store:             config.StoreConfig{Driver: config.DriverPostgres, DSN: "postgres://yaml"},
		Idempotency:       config.IdempotencyConfig{TTL: time.Hour},
		ReportingCurrency: "usd",
	}}
	programmatic := Config{
		Config: config.Config{
			Store:             config.StoreConfig{Driver: config.DriverSQLite, DSN: "prog.db", DisableMigrate: true},
			Idempotency:       config.IdempotencyConfig{TTL: 2 * time.Hour},
			Cache:             config.CacheConfig{TTL: time.Minute},
			Metrics:           config.MetricsConfig{Enabled: true},
			ReportingCurrency: "EUR",
		},
		RequireConfig: true,
	}

	got := mergeConfigurations(yaml, programmatic)

	assert.Equal(t, config.DriverPostgres, got.Store.Driver, "yaml wins")
	assert.Equal(t, "postgres://yaml", got.Store.DSN)
	assert.Equal(t, time.Hour, got.Idempotency.TTL)
	assert.Equal(t, "USD", got.ReportingCurrency)
	assert.Equal(t, time.Minute, got.Cache.TTL, "programmatic fills gaps")
	assert.True(t, got.Store.DisableMigrate, "programmatic flags override")
	assert.True(t, got.Metrics.Enabled)
	assert.True(t, got.RequireConfig)
	assert.Equal(t, "info", got.Log.Level)
}

func TestBuildEngineOpts(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(
		WithStore(memory.New()),
		WithMetricsRegisterer(reg),
		WithReportingCurrency("nzd"),
		WithEngineOption(reckon.WithIdempotencyTTL(time.Minute)),
	)
	e.config = mergeWithDefaults(e.config)

	opts, err := e.buildEngineOpts()
	require.NoError(t, err)
	require.Len(t, opts, 4)

	eng := reckon.New(e.store, opts...)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Stop() })

	assert.Equal(t, 1, eng.Plugins().Count(), "metrics plugin registered")
	_, err = reg.Gather()
	require.NoError(t, err)
}

func TestBuildEngineOptsRejectsBadLogLevel(t *testing.T) {
	e := New(WithConfig(Config{Config: config.Config{Log: config.LogConfig{Level: "loud", Format: "json"}}}))

	_, err := e.buildEngineOpts()
	require.Error(t, err)
}
