// Package config loads reckon settings from defaults, an optional YAML
// file, a .env file and RECKON_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/types"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RECKON_"

// Config holds reckon settings.
// Fields can be set programmatically or loaded from YAML (the Forge
// extension binds the same struct under "extensions.reckon" or "reckon").
type Config struct {
	Store       StoreConfig       `json:"store" mapstructure:"store" yaml:"store"`
	Idempotency IdempotencyConfig `json:"idempotency" mapstructure:"idempotency" yaml:"idempotency"`
	Cache       CacheConfig       `json:"cache" mapstructure:"cache" yaml:"cache"`
	Log         LogConfig         `json:"log" mapstructure:"log" yaml:"log"`
	Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	// ReportingCurrency is the currency invoices snapshot an FX rate into.
	// Empty disables snapshots.
	ReportingCurrency string `json:"reporting_currency" mapstructure:"reporting_currency" yaml:"reporting_currency"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is one of memory, postgres, sqlite or mongo (default: memory).
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string. For sqlite it is a file path.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name (default: reckon).
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// DisableMigrate skips schema migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`
}

// IdempotencyConfig controls replay storage.
type IdempotencyConfig struct {
	// TTL is how long a stored response can be replayed (default: 24h).
	TTL time.Duration `json:"ttl" mapstructure:"ttl" yaml:"ttl"`
}

// CacheConfig controls the currency read-through cache.
type CacheConfig struct {
	TTL    time.Duration `json:"ttl" mapstructure:"ttl" yaml:"ttl"`
	Jitter time.Duration `json:"jitter" mapstructure:"jitter" yaml:"jitter"`
}

// LogConfig controls the zap logger built by the CLI.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`
	Format string `json:"format" mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" mapstructure:"namespace" yaml:"namespace"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Store:       StoreConfig{Driver: DriverMemory, Database: "reckon"},
		Idempotency: IdempotencyConfig{TTL: 24 * time.Hour},
		Cache:       CacheConfig{TTL: 5 * time.Minute, Jitter: 30 * time.Second},
		Log:         LogConfig{Level: "info", Format: "json"},
		Metrics:     MetricsConfig{Namespace: "reckon"},
	}
}

// Load builds a Config. An empty path skips the YAML file; a missing .env
// file is ignored. Environment variables win over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("STORE_DATABASE", &c.Store.Database)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("METRICS_NAMESPACE", &c.Metrics.Namespace)
	str("REPORTING_CURRENCY", &c.ReportingCurrency)

	if v, ok := lookup(EnvPrefix + "METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v == "1" || strings.EqualFold(v, "true")
	}

	for name, dst := range map[string]*time.Duration{
		"IDEMPOTENCY_TTL": &c.Idempotency.TTL,
		"CACHE_TTL":       &c.Cache.TTL,
		"CACHE_JITTER":    &c.Cache.Jitter,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// FillDefaults sets zero-valued fields to their defaults.
func (c *Config) FillDefaults() {
	d := Default()
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Store.Database == "" {
		c.Store.Database = d.Store.Database
	}
	if c.Idempotency.TTL == 0 {
		c.Idempotency.TTL = d.Idempotency.TTL
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	c.ReportingCurrency = types.NormalizeCurrency(c.ReportingCurrency)
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite, DriverMongo:
		if c.Store.DSN == "" {
			return types.Invalid("store.dsn", "is required for driver "+c.Store.Driver)
		}
	default:
		return types.Invalid("store.driver", fmt.Sprintf("unknown driver %q", c.Store.Driver))
	}
	if c.Idempotency.TTL < 0 {
		return types.Invalid("idempotency.ttl", "must not be negative")
	}
	if c.Cache.Jitter < 0 || c.Cache.TTL < 0 {
		return types.Invalid("cache", "durations must not be negative")
	}
	if c.ReportingCurrency != "" && !currency.IsCode(c.ReportingCurrency) {
		return types.Invalid("reporting_currency", "must be a 3-letter ISO 4217 code")
	}
	return nil
}
