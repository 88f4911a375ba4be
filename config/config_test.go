package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/types"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "reckon.yaml", `
store:
  driver: sqlite
  dsn: reckon.db
idempotency:
  ttl: 12h
cache:
  ttl: 1m
reporting_currency: nzd
`)
	writeFile(t, dir, ".env", "RECKON_LOG_FORMAT=console\n")
	t.Cleanup(func() { _ = os.Unsetenv("RECKON_LOG_FORMAT") })
	t.Setenv("RECKON_CACHE_TTL", "90s")
	t.Setenv("RECKON_METRICS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "reckon.db", cfg.Store.DSN)
	assert.Equal(t, 12*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL, "env overrides file")
	assert.Equal(t, "console", cfg.Log.Format, ".env is loaded")
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "NZD", cfg.ReportingCurrency)
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("does-not-exist.yaml")
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("RECKON_IDEMPOTENCY_TTL", "soon")
		_, err := Load("")
		require.ErrorContains(t, err, "RECKON_IDEMPOTENCY_TTL")
	})

	t.Run("dsn required", func(t *testing.T) {
		t.Setenv("RECKON_STORE_DRIVER", DriverPostgres)
		_, err := Load("")
		require.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(*Config)
		ok    bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }, false},
		{"mongo with dsn", func(c *Config) { c.Store.Driver = DriverMongo; c.Store.DSN = "mongodb://x" }, true},
		{"negative ttl", func(c *Config) { c.Idempotency.TTL = -time.Second }, false},
		{"bad reporting currency", func(c *Config) { c.ReportingCurrency = "EURO" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.tweak(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, types.ErrValidation)
			}
		})
	}
}
