package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat is an encoded image container.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// ErrUnknownFormat is returned for data in none of the supported formats.
var ErrUnknownFormat = errors.New("images: unknown image format")

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// DetectFormat sniffs the container from the leading bytes.
func DetectFormat(data []byte) (ImageFormat, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG, nil
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG, nil
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP, nil
	}
	return "", ErrUnknownFormat
}

// ParseFormat maps a name such as "jpg" or "webp" to its format.
func ParseFormat(name string) (ImageFormat, error) {
	switch name {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", errors.Wrapf(ErrUnknownFormat, "%q", name)
}

// Encode writes img to w in format f. JPEG and WebP use quality 90.
func Encode(w io.Writer, img image.Image, f ImageFormat) error {
	var err error
	switch f {
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatWebP:
		err = webp.Encode(w, img, &webp.Options{Quality: 90})
	default:
		return errors.Wrapf(ErrUnknownFormat, "%q", f)
	}
	return errors.Wrapf(err, "encode %s", f)
}
