package inference

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/models"
	"github.com/nvr-ai/go-darknet/models/darknet"
	"github.com/nvr-ai/go-darknet/models/model"
	"github.com/nvr-ai/go-darknet/models/postprocess"
)

// oneBoxModel predicts, in every cell, a confident box 4.1 times the input
// size.
func oneBoxModel(t *testing.T, objectness float32) *darknet.Model {
	t.Helper()
	m, err := darknet.FromConfig(strings.NewReader(`
[net]
width=4
height=4
channels=3
[convolutional]
filters=6
[yolo]
anchors=16.4,16.4
classes=1
`))
	require.NoError(t, err)
	m.Params[0].Bias[4] = objectness
	return m
}

func blank(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestDetectorDetect(t *testing.T) {
	classes := models.NewOutputClassSet([]string{"plate"})
	d, err := NewDetector(oneBoxModel(t, 10), classes, DefaultConfig(), nil)
	require.NoError(t, err)

	out, err := d.Detect(context.Background(), []image.Image{blank(8, 8), blank(16, 8)})
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.Len(t, out[0], 1)
	assert.Equal(t, images.Rect{X1: -15, Y1: -15, X2: 17, Y2: 17}, out[0][0].Box)
	assert.Equal(t, "plate", out[0][0].Label)
	assert.Equal(t, 0, out[0][0].Class)
	assert.Greater(t, out[0][0].Score, float32(0.99))

	require.Len(t, out[1], 1)
	assert.Equal(t, images.Rect{X1: -30, Y1: -15, X2: 34, Y2: 17}, out[1][0].Box)

	single, err := d.DetectOne(context.Background(), blank(8, 8))
	require.NoError(t, err)
	assert.Equal(t, out[0], single)
}

func TestDetectorThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.6
	d, err := NewDetector(oneBoxModel(t, 0), nil, cfg, nil)
	require.NoError(t, err)

	out, err := d.DetectOne(context.Background(), blank(4, 4))
	require.NoError(t, err)
	assert.Empty(t, out)

	cfg.ConfidenceThreshold = 0.5
	cfg.NMS = postprocess.NMSConfig{IoUThreshold: 0.99}
	d, err = NewDetector(oneBoxModel(t, 0), nil, cfg, nil)
	require.NoError(t, err)

	out, err = d.DetectOne(context.Background(), blank(4, 4))
	require.NoError(t, err)
	assert.Len(t, out, 16)
	assert.Empty(t, out[0].Label)
}

func TestDetectorErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resize = false
	d, err := NewDetector(oneBoxModel(t, 0), nil, cfg, nil)
	require.NoError(t, err)

	_, err = d.DetectOne(context.Background(), blank(8, 8))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.DetectOne(ctx, blank(4, 4))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewDetector(nil, nil, DefaultConfig(), nil)
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.ConfidenceThreshold = 1.5
	_, err = NewDetector(oneBoxModel(t, 0), nil, bad, nil)
	assert.Error(t, err)

	gray, err := darknet.FromConfig(strings.NewReader("[net]\nwidth=2\nheight=2\nchannels=1\n[convolutional]\nfilters=6\n[yolo]\nanchors=1,1\n"))
	require.NoError(t, err)
	_, err = NewDetector(gray, nil, DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestEngineBuilder(t *testing.T) {
	e, err := NewEngineBuilder().
		WithModel(model.NewModelArgs{ConfigPath: "../models/darknet/testdata/tiny.cfg"}).
		WithDetector(DefaultConfig()).
		Build()
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Detect(context.Background(), []image.Image{blank(64, 48)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotEmpty(t, out[0])
	assert.Equal(t, "person", out[0][0].Label)
	assert.Equal(t, 32, e.Detector().Model().Info().Width)

	_, err = NewEngineBuilder().WithDetector(DefaultConfig()).Build()
	assert.Error(t, err)

	_, err = NewEngineBuilder().WithModel(model.NewModelArgs{ConfigPath: "missing.cfg"}).WithDetector(DefaultConfig()).Build()
	assert.Error(t, err)

	_, err = NewEngineBuilder().WithLoadedModel(oneBoxModel(t, 0), nil).Build()
	assert.Error(t, err)

	assert.Panics(t, func() { NewEngineBuilder().MustBuild() })
}
