// Package config - YAML application configuration for the detector CLI and
// HTTP service.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/logger"
	"github.com/nvr-ai/go-darknet/models/model"
	"github.com/nvr-ai/go-darknet/models/postprocess"
)

const (
	// DefaultConfidenceThreshold drops candidates scoring below it.
	DefaultConfidenceThreshold = float32(0.12)
	// DefaultNMSThreshold is the per-class suppression IoU.
	DefaultNMSThreshold = float32(0.3)
	// DefaultSmoothingThreshold is the IoU used when merging recent frames.
	DefaultSmoothingThreshold = float32(0.2)
	// DefaultAddr is the HTTP listen address.
	DefaultAddr = ":8080"
)

// Detection holds the post-processing parameters.
type Detection struct {
	// ConfidenceThreshold keeps candidates with at least this confidence.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// NMS configures the per-class suppression pass.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// SmoothingFrames is how many recent frames are merged in camera and
	// video modes. Zero or one disables smoothing.
	SmoothingFrames int `json:"smoothing_frames" yaml:"smoothing_frames"`
	// SmoothingThreshold is the class-agnostic IoU used for smoothing.
	SmoothingThreshold float32 `json:"smoothing_threshold" yaml:"smoothing_threshold"`
	// Resize scales inputs to the network size instead of rejecting them.
	Resize bool `json:"resize" yaml:"resize"`
}

// Inference returns the detector post-processing settings.
func (d Detection) Inference() inference.Config {
	return inference.Config{
		ConfidenceThreshold: d.ConfidenceThreshold,
		NMS:                 d.NMS,
		Resize:              d.Resize,
	}
}

// Server holds the HTTP service settings.
type Server struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Config is the root of the YAML file.
type Config struct {
	Model     model.NewModelArgs `json:"model" yaml:"model"`
	Detection Detection          `json:"detection" yaml:"detection"`
	Server    Server             `json:"server" yaml:"server"`
	LogMode   logger.Mode        `json:"log_mode" yaml:"log_mode"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Model: model.NewModelArgs{
			Family: model.ModelFamilyYOLO,
		},
		Detection: Detection{
			ConfidenceThreshold: DefaultConfidenceThreshold,
			NMS: postprocess.NMSConfig{
				IoUThreshold: DefaultNMSThreshold,
				ClassAware:   true,
			},
			SmoothingThreshold: DefaultSmoothingThreshold,
			Resize:             true,
		},
		Server:  Server{Addr: DefaultAddr},
		LogMode: logger.ModeProduction,
	}
}

// Load reads path over the defaults and validates the result.
//
// Arguments:
//   - path: Location of the YAML file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: A read, decode or validation error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "decode config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}

	return cfg, nil
}

// Validate checks threshold ranges and the smoothing window.
func (c Config) Validate() error {
	d := c.Detection
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold >= 1 {
		return errors.Errorf("confidence_threshold %v outside [0, 1)", d.ConfidenceThreshold)
	}
	if d.NMS.IoUThreshold < 0 || d.NMS.IoUThreshold >= 1 {
		return errors.Errorf("nms.iou_threshold %v outside [0, 1)", d.NMS.IoUThreshold)
	}
	if d.SmoothingThreshold < 0 || d.SmoothingThreshold >= 1 {
		return errors.Errorf("smoothing_threshold %v outside [0, 1)", d.SmoothingThreshold)
	}
	if d.SmoothingFrames < 0 {
		return errors.Errorf("smoothing_frames %d is negative", d.SmoothingFrames)
	}
	if d.NMS.NumWorkers < 0 {
		return errors.Errorf("nms.num_workers %d is negative", d.NMS.NumWorkers)
	}
	switch c.LogMode {
	case logger.ModeProduction, logger.ModeDevelopment:
	default:
		return errors.Errorf("unknown log_mode %q", c.LogMode)
	}
	return nil
}
