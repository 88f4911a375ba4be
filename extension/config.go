package extension

import "github.com/xraph/reckon/config"

// Config holds the Reckon extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.reckon" or "reckon" keys).
// The engine settings are the same ones the CLI reads, so one YAML block
// serves both.
type Config struct {
	config.Config `mapstructure:",squash" yaml:",inline"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Config: config.Default()}
}
