package detect

import (
	"errors"
	"fmt"

	"github.com/trackforge/tld/internal/geometry"
)

// ErrUnsetDimension is returned by Init when a required dimension is still
// at its sentinel value.
var ErrUnsetDimension = errors.New("detect: required dimension not set")

// Config describes one cascade instance. Template and image dimensions
// default to the unset sentinel and must be assigned before Init; everything
// else carries usable defaults. The configuration is treated as immutable
// once Init succeeds.
type Config struct {
	TemplateWidth  int `mapstructure:"template_width"  yaml:"template_width"  json:"template_width"`
	TemplateHeight int `mapstructure:"template_height" yaml:"template_height" json:"template_height"`
	ImageWidth     int `mapstructure:"image_width"     yaml:"image_width"     json:"image_width"`
	ImageHeight    int `mapstructure:"image_height"    yaml:"image_height"    json:"image_height"`

	// ImageStride is the row stride of the integral-image representation,
	// normally equal to ImageWidth.
	ImageStride int `mapstructure:"image_stride" yaml:"image_stride" json:"image_stride"`

	MinScaleExp int `mapstructure:"min_scale_exp" yaml:"min_scale_exp" json:"min_scale_exp"`
	MaxScaleExp int `mapstructure:"max_scale_exp" yaml:"max_scale_exp" json:"max_scale_exp"`
	MinSize     int `mapstructure:"min_size"      yaml:"min_size"      json:"min_size"`

	UseShift   bool    `mapstructure:"use_shift"   yaml:"use_shift"   json:"use_shift"`
	ShiftRatio float64 `mapstructure:"shift_ratio" yaml:"shift_ratio" json:"shift_ratio"`

	NumTrees    int `mapstructure:"num_trees"    yaml:"num_trees"    json:"num_trees"`
	NumFeatures int `mapstructure:"num_features" yaml:"num_features" json:"num_features"`

	// MinVariance is the variance-stage rejection threshold. Callers
	// typically set it to half the variance of the template patch.
	MinVariance float64 `mapstructure:"min_variance" yaml:"min_variance" json:"min_variance"`

	// NNTheta is the relative-similarity acceptance threshold of the
	// nearest-neighbor stage.
	NNTheta float64 `mapstructure:"nn_theta" yaml:"nn_theta" json:"nn_theta"`

	// ClusterCutoff is the minimum pairwise overlap for two confident
	// windows to merge into one detection.
	ClusterCutoff float64 `mapstructure:"cluster_cutoff" yaml:"cluster_cutoff" json:"cluster_cutoff"`

	// Workers bounds the parallel stage loops; 0 means one worker per CPU.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`

	// Seed drives the randomized fern feature geometry so a cascade is
	// reproducible across runs.
	Seed int64 `mapstructure:"seed" yaml:"seed" json:"seed"`
}

// DefaultConfig returns the cascade defaults. Template and image dimensions
// are left unset on purpose.
func DefaultConfig() Config {
	return Config{
		TemplateWidth:  geometry.Unset,
		TemplateHeight: geometry.Unset,
		ImageWidth:     geometry.Unset,
		ImageHeight:    geometry.Unset,
		ImageStride:    geometry.Unset,
		MinScaleExp:    -10,
		MaxScaleExp:    10,
		MinSize:        25,
		UseShift:       true,
		ShiftRatio:     0.1,
		NumTrees:       13,
		NumFeatures:    10,
		MinVariance:    0,
		NNTheta:        0.65,
		ClusterCutoff:  0.5,
		Workers:        0,
		Seed:           1,
	}
}

// Validate checks that every required dimension has been assigned and the
// remaining parameters are sane. It must pass before any allocation happens.
func (c Config) Validate() error {
	if c.TemplateWidth == geometry.Unset || c.TemplateHeight == geometry.Unset {
		return fmt.Errorf("%w: template size", ErrUnsetDimension)
	}
	if c.ImageWidth == geometry.Unset || c.ImageHeight == geometry.Unset {
		return fmt.Errorf("%w: image size", ErrUnsetDimension)
	}
	if c.ImageStride == geometry.Unset {
		return fmt.Errorf("%w: image stride", ErrUnsetDimension)
	}
	if c.ImageStride < c.ImageWidth {
		return fmt.Errorf("detect: stride %d smaller than image width %d", c.ImageStride, c.ImageWidth)
	}
	if c.NumTrees <= 0 || c.NumFeatures <= 0 {
		return fmt.Errorf("detect: invalid ensemble shape %d trees x %d features", c.NumTrees, c.NumFeatures)
	}
	if c.NumFeatures > 30 {
		return fmt.Errorf("detect: %d features per tree overflows the fern leaf index", c.NumFeatures)
	}
	return c.gridConfig().Validate()
}

func (c Config) gridConfig() geometry.GridConfig {
	return geometry.GridConfig{
		TemplateWidth:  c.TemplateWidth,
		TemplateHeight: c.TemplateHeight,
		ImageWidth:     c.ImageWidth,
		ImageHeight:    c.ImageHeight,
		MinScaleExp:    c.MinScaleExp,
		MaxScaleExp:    c.MaxScaleExp,
		MinSize:        c.MinSize,
		UseShift:       c.UseShift,
		ShiftRatio:     c.ShiftRatio,
	}
}
