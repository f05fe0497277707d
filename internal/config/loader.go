package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/trackforge/tld/internal/detect"
	"github.com/trackforge/tld/internal/geometry"
)

const (
	// ConfigFileName is the base name of configuration files (no extension).
	ConfigFileName = "tld"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "TLD"
)

// Loader reads configuration from files, environment variables and defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load reads configuration from the search paths and environment, applies
// defaults, and validates the result. A missing config file is not an
// error; defaults and environment take over.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	l.v.AddConfigPath("$HOME/.config/tld")

	l.setupEnvironment()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	return l.unmarshal()
}

// LoadFile reads configuration from an explicit file path.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	l.setupEnvironment()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setupEnvironment() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

func (l *Loader) setDefaults() {
	defaults := detect.DefaultConfig()

	l.v.SetDefault("log_level", "info")
	l.v.SetDefault("metrics.addr", "")

	l.v.SetDefault("cascade.template_width", geometry.Unset)
	l.v.SetDefault("cascade.template_height", geometry.Unset)
	l.v.SetDefault("cascade.image_width", geometry.Unset)
	l.v.SetDefault("cascade.image_height", geometry.Unset)
	l.v.SetDefault("cascade.image_stride", geometry.Unset)
	l.v.SetDefault("cascade.min_scale_exp", defaults.MinScaleExp)
	l.v.SetDefault("cascade.max_scale_exp", defaults.MaxScaleExp)
	l.v.SetDefault("cascade.min_size", defaults.MinSize)
	l.v.SetDefault("cascade.use_shift", defaults.UseShift)
	l.v.SetDefault("cascade.shift_ratio", defaults.ShiftRatio)
	l.v.SetDefault("cascade.num_trees", defaults.NumTrees)
	l.v.SetDefault("cascade.num_features", defaults.NumFeatures)
	l.v.SetDefault("cascade.min_variance", defaults.MinVariance)
	l.v.SetDefault("cascade.nn_theta", defaults.NNTheta)
	l.v.SetDefault("cascade.cluster_cutoff", defaults.ClusterCutoff)
	l.v.SetDefault("cascade.workers", defaults.Workers)
	l.v.SetDefault("cascade.seed", defaults.Seed)
}
