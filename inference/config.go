package inference

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-darknet/models/postprocess"
)

// Config controls post-processing of a forward pass.
type Config struct {
	// ConfidenceThreshold keeps candidates with at least this confidence.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// NMS configures suppression of overlapping boxes.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// Resize scales images to the network input size. When false, images
	// of another size are rejected.
	Resize bool `json:"resize" yaml:"resize"`
}

// DefaultConfig returns per-class NMS at IoU 0.3 with a 0.12 confidence
// threshold and input resizing enabled.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.12,
		NMS: postprocess.NMSConfig{
			IoUThreshold: 0.3,
			ClassAware:   true,
		},
		Resize: true,
	}
}

// Validate checks the threshold ranges.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return errors.Errorf("inference: confidence threshold %v outside [0, 1)", c.ConfidenceThreshold)
	}
	if c.NMS.IoUThreshold < 0 || c.NMS.IoUThreshold >= 1 {
		return errors.Errorf("inference: nms threshold %v outside [0, 1)", c.NMS.IoUThreshold)
	}
	return nil
}
