package pipeline

import "github.com/nvr-ai/go-darknet/models/postprocess"

// Smoother merges the detections of the last few frames to reduce flicker.
// It is not safe for concurrent use.
type Smoother struct {
	frames  int
	nms     postprocess.NMSConfig
	history [][]postprocess.Result
}

// NewSmoother keeps up to frames frames and suppresses across them with a
// class-agnostic NMS at iou. A window of 0 or 1 disables smoothing.
func NewSmoother(frames int, iou float32) *Smoother {
	return &Smoother{
		frames: frames,
		nms:    postprocess.NMSConfig{IoUThreshold: iou},
	}
}

// Add records the detections of a new frame and returns the smoothed set:
// the concatenation of the retained frames, oldest first, reduced by NMS.
func (s *Smoother) Add(results []postprocess.Result) []postprocess.Result {
	if s.frames <= 1 {
		return results
	}

	if len(s.history) == s.frames {
		copy(s.history, s.history[1:])
		s.history = s.history[:s.frames-1]
	}
	s.history = append(s.history, results)

	var merged []postprocess.Result
	for _, frame := range s.history {
		merged = append(merged, frame...)
	}
	return postprocess.ApplyGreedyNMS(merged, &s.nms)
}

// Len returns the number of retained frames.
func (s *Smoother) Len() int {
	return len(s.history)
}

// Reset forgets every retained frame.
func (s *Smoother) Reset() {
	s.history = s.history[:0]
}
