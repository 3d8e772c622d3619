package pipeline

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultColor is used when no palette entry exists for a class.
var DefaultColor = color.RGBA{G: 255, A: 255}

// Palette maps class indices to box colours.
type Palette []color.RGBA

// NewPalette returns n fully saturated colours with hues evenly spaced
// around the HSV circle, starting at red.
func NewPalette(n int) Palette {
	p := make(Palette, n)
	for i := range p {
		r, g, b := colorful.Hsv(360*float64(i)/float64(n), 1, 1).RGB255()
		p[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return p
}

// For returns the colour of class, or DefaultColor when out of range.
func (p Palette) For(class int) color.RGBA {
	if class < 0 || class >= len(p) {
		return DefaultColor
	}
	return p[class]
}
