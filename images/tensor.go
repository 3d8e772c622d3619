package images

import (
	"bytes"
	"image"
	"os"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Decode decodes JPEG, PNG or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	if f, _ := DetectFormat(data); f == FormatWebP {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "decode webp")
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return img, nil
}

// LoadFile reads and decodes an image file.
func LoadFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read image %s", path)
	}
	return Decode(data)
}

// ToTensor packs a batch of images into a (n, 3, height, width) float32
// tensor with RGB channels scaled to [0, 1].
//
// Images whose size differs from width×height are resized with bilinear
// interpolation when resizeInput is set; otherwise a size mismatch is an
// error.
//
// Arguments:
//   - imgs: The batch. Must not be empty.
//   - width, height: The network input size.
//   - resizeInput: Whether to resize images that do not match.
//
// Returns:
//   - *tensor.Dense: The packed batch.
//   - error: An error for an empty batch or a size mismatch.
func ToTensor(imgs []image.Image, width, height int, resizeInput bool) (*tensor.Dense, error) {
	if len(imgs) == 0 {
		return nil, errors.New("images: empty batch")
	}

	plane := width * height
	data := make([]float32, len(imgs)*3*plane)
	for n, img := range imgs {
		b := img.Bounds()
		if b.Dx() != width || b.Dy() != height {
			if !resizeInput {
				return nil, errors.Errorf("images: image %d is %dx%d, want %dx%d", n, b.Dx(), b.Dy(), width, height)
			}
			img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
			b = img.Bounds()
		}

		base := n * 3 * plane
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				i := y*width + x
				data[base+i] = float32(r>>8) / 255.0
				data[base+plane+i] = float32(g>>8) / 255.0
				data[base+2*plane+i] = float32(bl>>8) / 255.0
			}
		}
	}

	return tensor.New(tensor.WithShape(len(imgs), 3, height, width), tensor.WithBacking(data)), nil
}
