package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-darknet/images"
)

func det(x1, y1, x2, y2 int, score float32, class int) Result {
	return Result{Box: images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}, Score: score, Class: class}
}

func TestApplyGreedyNMS(t *testing.T) {
	cfg := &NMSConfig{IoUThreshold: 0.3}

	tests := []struct {
		name string
		in   []Result
		want []Result
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "overlap suppresses lower score",
			in:   []Result{det(0, 0, 9, 9, 0.6, 0), det(1, 1, 10, 10, 0.9, 0)},
			want: []Result{det(1, 1, 10, 10, 0.9, 0)},
		},
		{
			name: "low overlap keeps both",
			// 3x10 overlap, union 170: IoU ~0.176.
			in:   []Result{det(0, 0, 9, 9, 0.8, 0), det(7, 0, 16, 9, 0.7, 0)},
			want: []Result{det(0, 0, 9, 9, 0.8, 0), det(7, 0, 16, 9, 0.7, 0)},
		},
		{
			name: "equal scores keep input order",
			in:   []Result{det(0, 0, 9, 9, 0.5, 0), det(0, 0, 9, 9, 0.5, 0)},
			want: []Result{det(0, 0, 9, 9, 0.5, 0)},
		},
		{
			name: "chain",
			in: []Result{
				det(0, 0, 9, 9, 0.9, 0),
				det(2, 0, 11, 9, 0.8, 0),
				det(20, 20, 29, 29, 0.7, 0),
			},
			want: []Result{det(0, 0, 9, 9, 0.9, 0), det(20, 20, 29, 29, 0.7, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyGreedyNMS(tt.in, cfg))
		})
	}
}

func TestApplyGreedyNMSThresholdInclusive(t *testing.T) {
	// 4x10 overlap, union 160: IoU exactly 0.25.
	in := []Result{det(0, 0, 9, 9, 0.9, 0), det(6, 0, 15, 9, 0.8, 0)}
	require.Equal(t, float32(0.25), images.CalculateIoU(in[0].Box, in[1].Box))

	assert.Equal(t, in, ApplyGreedyNMS(in, &NMSConfig{IoUThreshold: 0.25}))
	assert.Equal(t, in[:1], ApplyGreedyNMS(in, &NMSConfig{IoUThreshold: 0.24}))
}

func TestApplyGreedyNMSIdempotent(t *testing.T) {
	cfg := &NMSConfig{IoUThreshold: 0.3}
	in := []Result{
		det(0, 0, 9, 9, 0.4, 0),
		det(1, 1, 10, 10, 0.9, 0),
		det(30, 30, 40, 40, 0.5, 0),
		det(31, 30, 41, 40, 0.6, 0),
	}

	once := ApplyGreedyNMS(in, cfg)
	assert.Equal(t, once, ApplyGreedyNMS(once, cfg))
	assert.Equal(t, float32(0.4), in[0].Score)
}

func TestApplyClassNMS(t *testing.T) {
	in := []Result{
		det(0, 0, 9, 9, 0.7, 2),
		det(0, 0, 9, 9, 0.9, 0),
		det(1, 1, 10, 10, 0.8, 2),
		det(0, 0, 9, 9, 0.6, 1),
		det(1, 0, 10, 9, 0.5, 0),
	}
	want := []Result{
		det(0, 0, 9, 9, 0.9, 0),
		det(0, 0, 9, 9, 0.6, 1),
		det(1, 1, 10, 10, 0.8, 2),
	}

	for _, workers := range []int{0, 1, 4} {
		cfg := &NMSConfig{IoUThreshold: 0.3, ClassAware: true, NumWorkers: workers}
		assert.Equal(t, want, ApplyClassNMS(in, cfg), "workers=%d", workers)
		assert.Equal(t, want, ApplyNMS(in, cfg), "workers=%d", workers)
	}

	assert.Nil(t, ApplyClassNMS(nil, &NMSConfig{}))

	agnostic := ApplyNMS(in, &NMSConfig{IoUThreshold: 0.3})
	require.Len(t, agnostic, 1)
	assert.Equal(t, 0, agnostic[0].Class)
}

func TestThreshold(t *testing.T) {
	cands := []Candidate{{Confidence: 0.1}, {Confidence: 0.12}, {Confidence: 0.5}}
	kept := Threshold(cands, 0.12)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.12), kept[0].Confidence)
	assert.Empty(t, Threshold(nil, 0.5))
}

func TestRescale(t *testing.T) {
	cands := []Candidate{
		{CX: 0.5, CY: 0.5, W: 0.5, H: 0.25, Confidence: 0.9, Class: 3},
		{CX: 0.25, CY: 0.125, W: 0.125, H: 0.0625, Confidence: 0.4, Class: 1},
	}

	out := Rescale(cands, 200, 100)
	require.Len(t, out, 2)
	assert.Equal(t, det(50, 38, 150, 62, 0.9, 3), out[0])
	// cx=50, cy=12, w=25 -> 12, h=6 -> 3
	assert.Equal(t, det(38, 9, 62, 15, 0.4, 1), out[1])
}

func TestResultString(t *testing.T) {
	r := det(1, 2, 3, 4, 0.5, 7)
	assert.Equal(t, "7 (0.50) [1,2 3,4]", r.String())
	r.Label = "dog"
	assert.Equal(t, "dog (0.50) [1,2 3,4]", r.String())
}
