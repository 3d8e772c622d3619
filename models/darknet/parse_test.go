package darknet

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-darknet/models/postprocess"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"integer", " 16 ", 16},
		{"negative integer", "-4", -4},
		{"float", "0.001", 0.001},
		{"string", "leaky", "leaky"},
		{"int list", "-1, 8", []any{-1, 8}},
		{"mixed list", "1, 2.5, x", []any{1, 2.5, "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coerce(tt.raw))
		})
	}
}

func TestParseTinyConfig(t *testing.T) {
	specs, info, err := ParseFile("testdata/tiny.cfg")
	require.NoError(t, err)

	assert.Equal(t, 32, info.Width)
	assert.Equal(t, 32, info.Height)
	assert.Equal(t, 3, info.Channels)
	assert.Equal(t, 0.9, info.Options["momentum"])
	assert.Equal(t, 1, info.Options["batch"])
	assert.NotContains(t, info.Options, "width")

	require.Len(t, specs, 14)
	assert.Equal(t, &Convolutional{Filters: 8, Size: 3, Stride: 1, Pad: true, BatchNorm: true, Activation: ActivationLeaky}, specs[0])
	assert.Equal(t, &MaxPool{Size: 2, Stride: 2}, specs[1])
	assert.Equal(t, &Shortcut{From: -3, Activation: ActivationLinear}, specs[5])
	assert.Equal(t, &Route{Layers: []int{-4}}, specs[8])
	assert.Equal(t, &Upsample{Stride: 2}, specs[10])
	assert.Equal(t, &Route{Layers: []int{-1, 0}}, specs[11])

	head, ok := specs[7].(*Detection)
	require.True(t, ok)
	assert.Equal(t, []int{3, 4, 5}, head.Mask)
	assert.Len(t, head.Anchors, 6)
	assert.Equal(t, []postprocess.Anchor{{W: 81, H: 82}, {W: 135, H: 169}, {W: 344, H: 319}}, head.HeadAnchors())
	assert.Equal(t, 1, head.Classes)
}

func TestParseDefaults(t *testing.T) {
	cfg := `
[net]
width=8
height=8
channels=3

[convolutional]
filters=4

[maxpool]
stride=2

[upsample]

[yolo]
anchors=1,2,3,4
`
	specs, _, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)
	require.Len(t, specs, 4)

	assert.Equal(t, &Convolutional{Filters: 4, Size: 1, Stride: 1, Activation: ActivationLinear}, specs[0])
	assert.Equal(t, &MaxPool{Size: 2, Stride: 2}, specs[1])
	assert.Equal(t, &Upsample{Stride: 2}, specs[2])
	assert.Equal(t, []int{0, 1}, specs[3].(*Detection).Mask)
}

func TestParseNetAnywhere(t *testing.T) {
	cfg := `
[convolutional]
filters=4
[net]
width=8
height=8
channels=1
`
	specs, info, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)
	assert.Len(t, specs, 1)
	assert.Equal(t, 1, info.Channels)
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  string
		line int
	}{
		{"key before header", "width=3\n[net]\n", 1},
		{"malformed header", "[net]\nwidth=1\n[conv\n", 3},
		{"header with space", "[net]\n[ yolo ]\n", 2},
		{"missing equals", "[net]\nwidth 3\n", 2},
		{"empty key", "[net]\n = 3\n", 2},
		{"odd anchors", "[net]\nwidth=1\nheight=1\nchannels=1\n[yolo]\nanchors=1,2,3\n", 6},
		{"non numeric anchors", "[net]\nwidth=1\nheight=1\nchannels=1\n[yolo]\nanchors=1,a\n", 6},
		{"unknown block", "[net]\nwidth=1\nheight=1\nchannels=1\n[softmax]\n", 5},
		{"bad activation", "[net]\nwidth=1\nheight=1\nchannels=1\n[convolutional]\nfilters=2\nactivation=mish\n", 7},
		{"string filters", "[net]\nwidth=1\nheight=1\nchannels=1\n[convolutional]\nfilters=many\n", 6},
		{"missing filters", "[net]\nwidth=1\nheight=1\nchannels=1\n[convolutional]\nsize=3\n", 5},
		{"mask out of range", "[net]\nwidth=1\nheight=1\nchannels=1\n[yolo]\nanchors=1,2\nmask=1\n", 7},
		{"duplicate net", "[net]\nwidth=1\nheight=1\nchannels=1\n[net]\nwidth=1\nheight=1\nchannels=1\n", 5},
		{"missing net", "[convolutional]\nfilters=1\n", 0},
		{"no layers", "[net]\nwidth=1\nheight=1\nchannels=1\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(strings.NewReader(tt.cfg))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfigSyntax), "got %v", err)

			var syntaxErr *ConfigSyntaxError
			require.True(t, errors.As(err, &syntaxErr))
			assert.Equal(t, tt.line, syntaxErr.Line)
		})
	}
}

func TestParseSkipsComments(t *testing.T) {
	cfg := "# header\n\n[net]\n; darknet comment\nwidth=2\nheight=2\n   \nchannels=3\n[route]\nlayers=0\n"
	specs, info, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)
	assert.Equal(t, 2, info.Width)
	assert.Equal(t, &Route{Layers: []int{0}}, specs[0])
}
