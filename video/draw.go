// Package video - OpenCV frame sources, display, annotation and mp4 output
// for the camera, video and image front ends.
package video

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/models/postprocess"
	"github.com/nvr-ai/go-darknet/pipeline"
)

const (
	boxThickness = 2
	captionWidth = 8 // pixels per caption character
	captionH     = 18
)

var (
	captionBackground = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	captionText       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Caption is the text drawn above a box: the label (or class index when
// unnamed) and the score.
func Caption(r postprocess.Result) string {
	name := r.Label
	if name == "" {
		name = strconv.Itoa(r.Class)
	}
	return fmt.Sprintf("%s (%.2f)", name, r.Score)
}

// captionRect is the filled background behind the caption, anchored inside
// the top-left corner of box.
func captionRect(box image.Rectangle, text string) image.Rectangle {
	return image.Rectangle{Min: box.Min.Add(image.Pt(1, 1)), Max: image.Pt(box.Min.X+captionWidth*len(text), box.Min.Y+captionH)}
}

// DrawResults draws each result onto img with its class colour and caption.
func DrawResults(img *gocv.Mat, results []postprocess.Result, palette pipeline.Palette) {
	for _, r := range results {
		box := r.Box.Image()
		_ = gocv.Rectangle(img, box, palette.For(r.Class), boxThickness)

		text := Caption(r)
		_ = gocv.Rectangle(img, captionRect(box, text), captionBackground, -1)
		_ = gocv.PutText(img, text, box.Min.Add(image.Pt(1, 13)), gocv.FontHersheySimplex, 0.45, captionText, 1)
	}
}

// DrawFPS writes the frame rate in the top-left corner.
func DrawFPS(img *gocv.Mat, fps float64) {
	_ = gocv.PutText(img, fmt.Sprintf("%d fps", int(fps)), image.Pt(2, 20), gocv.FontHersheyComplexSmall, 0.9, captionText, 1)
}
