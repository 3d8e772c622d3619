package pipeline

import "time"

// FPSWindow is the number of frames averaged by an FPSMeter.
const FPSWindow = 30

// FPSMeter averages the frame rate over a sliding window of frame times.
type FPSMeter struct {
	window  int
	samples []time.Duration
	next    int
}

// NewFPSMeter averages over the last window frames.
func NewFPSMeter(window int) *FPSMeter {
	if window < 1 {
		window = 1
	}
	return &FPSMeter{window: window}
}

// Tick records the duration of one frame.
func (m *FPSMeter) Tick(d time.Duration) {
	if len(m.samples) < m.window {
		m.samples = append(m.samples, d)
		return
	}
	m.samples[m.next] = d
	m.next = (m.next + 1) % m.window
}

// FPS returns frames per second over the recorded frames, zero before the
// first tick.
func (m *FPSMeter) FPS() float64 {
	var total time.Duration
	for _, d := range m.samples {
		total += d
	}
	if total <= 0 {
		return 0
	}
	return float64(len(m.samples)) / total.Seconds()
}
