package pipeline

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/models/postprocess"
)

func box(x int, score float32, class int) postprocess.Result {
	return postprocess.Result{Box: images.Rect{X1: x, Y1: 0, X2: x + 9, Y2: 9}, Score: score, Class: class}
}

func TestSmootherDisabled(t *testing.T) {
	s := NewSmoother(1, 0.2)
	in := []postprocess.Result{box(0, 0.5, 0), box(1, 0.6, 0)}
	assert.Equal(t, in, s.Add(in))
	assert.Equal(t, 0, s.Len())
}

func TestSmootherMergesRecentFrames(t *testing.T) {
	s := NewSmoother(2, 0.2)

	out := s.Add([]postprocess.Result{box(0, 0.9, 0)})
	assert.Equal(t, []postprocess.Result{box(0, 0.9, 0)}, out)

	// Overlapping box of another class is still suppressed.
	out = s.Add([]postprocess.Result{box(1, 0.5, 3), box(50, 0.4, 1)})
	assert.Equal(t, []postprocess.Result{box(0, 0.9, 0), box(50, 0.4, 1)}, out)
	assert.Equal(t, 2, s.Len())

	// The first frame falls out of the window.
	out = s.Add(nil)
	assert.Equal(t, []postprocess.Result{box(1, 0.5, 3), box(50, 0.4, 1)}, out)
	assert.Equal(t, 2, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Add(nil))
}

func TestPalette(t *testing.T) {
	p := NewPalette(3)
	require.Len(t, p, 3)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, p[0])
	assert.Equal(t, color.RGBA{G: 255, A: 255}, p[1])
	assert.Equal(t, color.RGBA{B: 255, A: 255}, p[2])

	assert.Equal(t, DefaultColor, p.For(3))
	assert.Equal(t, DefaultColor, p.For(-1))
	assert.Equal(t, DefaultColor, Palette(nil).For(0))

	seen := map[color.RGBA]bool{}
	for _, c := range NewPalette(80) {
		seen[c] = true
	}
	assert.Len(t, seen, 80)
}

func TestFPSMeter(t *testing.T) {
	m := NewFPSMeter(2)
	assert.Zero(t, m.FPS())

	m.Tick(100 * time.Millisecond)
	assert.InDelta(t, 10, m.FPS(), 1e-6)

	m.Tick(50 * time.Millisecond)
	m.Tick(50 * time.Millisecond)
	assert.InDelta(t, 20, m.FPS(), 1e-6)
}
