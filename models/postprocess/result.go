// Package postprocess - decoding of detection heads, rescaling and
// Non-Maximum Suppression.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-darknet/images"
)

// Anchor is a (width, height) box prior in network input pixels.
type Anchor struct {
	W, H float32
}

// Candidate is one decoded box before suppression. CX and CY are fractions
// of the image; W and H are in anchor units until MergeHeads normalizes them.
type Candidate struct {
	CX, CY, W, H float32
	// Confidence is objectness times the best class probability.
	Confidence float32
	// Class is the arg-max class index.
	Class int
}

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result, inclusive pixel coordinates.
	Box images.Rect `json:"box"`
	// The confidence score of the result.
	Score float32 `json:"score"`
	// The predicted class index of the result.
	Class int `json:"class"`
	// Label is the class name, empty when no names are configured.
	Label string `json:"label,omitempty"`
}

func (r Result) String() string {
	name := r.Label
	if name == "" {
		name = fmt.Sprint(r.Class)
	}
	return fmt.Sprintf("%s (%.2f) [%d,%d %d,%d]", name, r.Score, r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2)
}
