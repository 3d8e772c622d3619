package postprocess

import "github.com/nvr-ai/go-darknet/images"

// Threshold keeps candidates whose confidence is at least conf.
func Threshold(cands []Candidate, conf float32) []Candidate {
	kept := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Confidence >= conf {
			kept = append(kept, c)
		}
	}
	return kept
}

// Rescale converts normalized center/size candidates to integer corner boxes
// in the pixel space of the original image. Coordinates are truncated to
// whole pixels and the half extents use integer division, so
// X1 = cx - w/2 and X2 = cx + w/2.
//
// Arguments:
//   - cands: Candidates with normalized CX, CY, W, H.
//   - origW, origH: Size of the image before it was resized for the network.
//
// Returns:
//   - []Result: One result per candidate, in input order.
func Rescale(cands []Candidate, origW, origH int) []Result {
	out := make([]Result, len(cands))
	for i, c := range cands {
		cx := int(c.CX * float32(origW))
		cy := int(c.CY * float32(origH))
		hw := int(c.W*float32(origW)) / 2
		hh := int(c.H*float32(origH)) / 2
		out[i] = Result{
			Box:   images.Rect{X1: cx - hw, Y1: cy - hh, X2: cx + hw, Y2: cy + hh},
			Score: c.Confidence,
			Class: c.Class,
		}
	}
	return out
}
