package postprocess

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-darknet/ops"
)

// ErrHeadShape is matched by *HeadShapeError through errors.Is.
var ErrHeadShape = errors.New("postprocess: detection head shape mismatch")

// HeadShapeError reports a raw head tensor whose shape cannot be split into
// anchors × (5 + classes).
type HeadShapeError struct {
	Shape   []int
	Anchors int
	Reason  string
}

func (e *HeadShapeError) Error() string {
	return fmt.Sprintf("postprocess: head shape %v with %d anchors: %s", e.Shape, e.Anchors, e.Reason)
}

// Is reports whether target is ErrHeadShape.
func (e *HeadShapeError) Is(target error) bool { return target == ErrHeadShape }

// DecodeHead converts one raw detection head into candidates.
//
// The raw tensor has shape (batch, anchors×(5+C), H, W); C is derived from
// the channel count. Per anchor and grid cell the attributes are
// [tx, ty, tw, th, objectness, class logits...]:
//
//	cx = (sigmoid(tx) + col) / W
//	cy = (sigmoid(ty) + row) / H
//	w  = exp(tw) * anchor.W
//	h  = exp(th) * anchor.H
//	confidence = max(softmax(classes)) * sigmoid(objectness)
//
// Arguments:
//   - raw: The head input tensor.
//   - anchors: The anchors selected by the head's mask, in mask order.
//
// Returns:
//   - [][]Candidate: Per batch entry, anchors×H×W candidates ordered by
//     anchor, then row, then column.
//   - error: *HeadShapeError when the tensor does not fit the anchors.
func DecodeHead(raw *tensor.Dense, anchors []Anchor) ([][]Candidate, error) {
	shape := []int(raw.Shape().Clone())
	if len(shape) != 4 {
		return nil, &HeadShapeError{Shape: shape, Anchors: len(anchors), Reason: "want 4 dimensions"}
	}
	if len(anchors) == 0 {
		return nil, &HeadShapeError{Shape: shape, Anchors: 0, Reason: "no anchors"}
	}

	batch, channels, h, w := shape[0], shape[1], shape[2], shape[3]
	if channels%len(anchors) != 0 {
		return nil, &HeadShapeError{Shape: shape, Anchors: len(anchors), Reason: "channels not divisible by anchors"}
	}
	attrs := channels / len(anchors)
	classes := attrs - 5
	if classes < 1 {
		return nil, &HeadShapeError{Shape: shape, Anchors: len(anchors), Reason: "fewer than one class"}
	}

	data := ops.Float32s(raw)
	plane := h * w
	logits := make([]float32, classes)
	out := make([][]Candidate, batch)
	for b := 0; b < batch; b++ {
		cands := make([]Candidate, 0, len(anchors)*plane)
		for a, anchor := range anchors {
			base := (b*channels + a*attrs) * plane
			for row := 0; row < h; row++ {
				for col := 0; col < w; col++ {
					cell := base + row*w + col
					at := func(k int) float32 { return data[cell+k*plane] }

					for k := range logits {
						logits[k] = at(5 + k)
					}
					score, class := softmaxMax(logits)

					cands = append(cands, Candidate{
						CX:         (sigmoid(at(0)) + float32(col)) / float32(w),
						CY:         (sigmoid(at(1)) + float32(row)) / float32(h),
						W:          math32.Exp(at(2)) * anchor.W,
						H:          math32.Exp(at(3)) * anchor.H,
						Confidence: score * sigmoid(at(4)),
						Class:      class,
					})
				}
			}
		}
		out[b] = cands
	}

	return out, nil
}

// MergeHeads concatenates per-head candidates for each batch entry, in head
// order, and divides widths and heights by the network input size so they
// share the normalized scale of the centers.
//
// Arguments:
//   - heads: DecodeHead outputs, one per detection head.
//   - batch: The batch size.
//   - netW, netH: The network input width and height.
//
// Returns:
//   - [][]Candidate: One candidate list per batch entry.
func MergeHeads(heads [][][]Candidate, batch, netW, netH int) [][]Candidate {
	out := make([][]Candidate, batch)
	for b := range out {
		n := 0
		for _, head := range heads {
			n += len(head[b])
		}
		merged := make([]Candidate, 0, n)
		for _, head := range heads {
			for _, c := range head[b] {
				c.W /= float32(netW)
				c.H /= float32(netH)
				merged = append(merged, c)
			}
		}
		out[b] = merged
	}
	return out
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// softmaxMax returns the largest softmax probability of logits and its
// index; ties go to the lowest index.
func softmaxMax(logits []float32) (float32, int) {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}

	var sum float32
	for _, v := range logits {
		sum += math32.Exp(v - logits[best])
	}
	return 1 / sum, best
}
