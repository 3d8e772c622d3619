package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases.
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{
			name:     "Identical rectangles",
			r1:       Rect{0, 0, 99, 99},
			r2:       Rect{0, 0, 99, 99},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			r1:       Rect{0, 0, 99, 99},
			r2:       Rect{200, 200, 299, 299},
			expected: 0.0,
		},
		{
			name:     "Adjacent edges",
			r1:       Rect{0, 0, 99, 99},
			r2:       Rect{100, 0, 199, 99},
			expected: 0.0,
		},
		{
			name:     "Shared edge column",
			r1:       Rect{0, 0, 9, 9},
			r2:       Rect{9, 0, 18, 9},
			expected: 10.0 / 190.0, // 1x10 overlap, union 100+100-10
		},
		{
			name:     "Quarter overlap",
			r1:       Rect{0, 0, 9, 9},
			r2:       Rect{5, 5, 14, 14},
			expected: 25.0 / 175.0,
		},
		{
			name:     "One inside other",
			r1:       Rect{0, 0, 99, 99},
			r2:       Rect{25, 25, 74, 74},
			expected: 0.25,
		},
		{
			name:     "Single pixel boxes",
			r1:       Rect{3, 3, 3, 3},
			r2:       Rect{3, 3, 3, 3},
			expected: 1.0,
		},
		{
			name:     "Inverted box",
			r1:       Rect{10, 10, 0, 0},
			r2:       Rect{10, 10, 0, 0},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.InDelta(t, tt.expected, result, 1e-5)

			// IoU(A, B) == IoU(B, A)
			assert.InDelta(t, result, CalculateIoU(tt.r2, tt.r1), 1e-6)
		})
	}
}

// TestIoU_vs_ImageRectangle compares against image.Rectangle, whose max
// corner is exclusive.
func TestIoU_vs_ImageRectangle(t *testing.T) {
	testCases := []struct {
		name string
		r1   Rect
		r2   Rect
	}{
		{"No overlap", Rect{0, 0, 100, 100}, Rect{200, 200, 300, 300}},
		{"Partial overlap", Rect{0, 0, 100, 100}, Rect{50, 50, 150, 150}},
		{"Full overlap", Rect{50, 50, 150, 150}, Rect{50, 50, 150, 150}},
		{"One inside other", Rect{0, 0, 100, 100}, Rect{25, 25, 75, 75}},
		{"Large boxes", Rect{0, 0, 1919, 1079}, Rect{960, 540, 1919, 1079}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, imageRectIoU(tc.r1.Image(), tc.r2.Image()), CalculateIoU(tc.r1, tc.r2), 1e-4)
		})
	}
}

func imageRectIoU(r1, r2 image.Rectangle) float32 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0.0
	}

	intersectArea := intersect.Dx() * intersect.Dy()
	union := r1.Dx()*r1.Dy() + r2.Dx()*r2.Dy() - intersectArea
	return float32(intersectArea) / float32(union)
}

func TestRectArea(t *testing.T) {
	assert.Equal(t, 100, Rect{0, 0, 9, 9}.Area())
	assert.Equal(t, 1, Rect{4, 4, 4, 4}.Area())
	assert.Equal(t, 0, Rect{5, 0, 3, 9}.Area())
	assert.Equal(t, image.Rect(2, 3, 11, 21), Rect{2, 3, 10, 20}.Image())
}

func BenchmarkCalculateIoU(b *testing.B) {
	r1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	r2 := Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(r1, r2)
	}
}
