package config

import (
	"fmt"

	"github.com/trackforge/tld/internal/detect"
)

// Config is the application configuration for the tld CLI. It layers the
// cascade parameters with the ambient settings (logging, metrics) and
// supports loading from configuration files and environment variables.
type Config struct {
	// LogLevel controls slog verbosity: debug, info, warn or error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`

	// Cascade holds the detection cascade parameters. Template and image
	// dimensions stay unset here; they are assigned at runtime from the
	// selected object and the first frame.
	Cascade detect.Config `mapstructure:"cascade" yaml:"cascade" json:"cascade"`

	// Metrics configures the optional prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// MetricsConfig configures metrics exposure.
type MetricsConfig struct {
	// Addr is the listen address for the scrape endpoint; empty disables it.
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Cascade:  detect.DefaultConfig(),
	}
}

// Validate checks everything that can be checked before runtime dimensions
// are known. Full cascade validation happens in detect at Init.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Cascade.NumTrees <= 0 || c.Cascade.NumFeatures <= 0 {
		return fmt.Errorf("config: invalid ensemble shape %d trees x %d features",
			c.Cascade.NumTrees, c.Cascade.NumFeatures)
	}
	if c.Cascade.ShiftRatio < 0 || c.Cascade.ShiftRatio > 1 {
		return fmt.Errorf("config: shift ratio %v outside [0,1]", c.Cascade.ShiftRatio)
	}
	if c.Cascade.MinScaleExp > c.Cascade.MaxScaleExp {
		return fmt.Errorf("config: scale range [%d,%d] is empty",
			c.Cascade.MinScaleExp, c.Cascade.MaxScaleExp)
	}
	if c.Cascade.NNTheta < 0 || c.Cascade.NNTheta > 1 {
		return fmt.Errorf("config: nn theta %v outside [0,1]", c.Cascade.NNTheta)
	}
	if c.Cascade.Workers < 0 {
		return fmt.Errorf("config: negative worker count %d", c.Cascade.Workers)
	}
	return nil
}
