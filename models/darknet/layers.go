// Package darknet - darknet cfg parsing, graph building, weight loading and
// forward execution.
package darknet

import (
	"fmt"

	"github.com/nvr-ai/go-darknet/models/postprocess"
)

// Activation is the nonlinearity applied after a convolution.
type Activation string

const (
	// ActivationLeaky is leaky-rectify with a 0.1 negative slope.
	ActivationLeaky Activation = "leaky"
	// ActivationLinear is the identity.
	ActivationLinear Activation = "linear"
)

// LeakySlope is the negative slope darknet uses for leaky activations.
const LeakySlope = float32(0.1)

// Layer kinds as they appear in cfg block headers.
const (
	KindConvolutional = "convolutional"
	KindMaxPool       = "maxpool"
	KindUpsample      = "upsample"
	KindRoute         = "route"
	KindShortcut      = "shortcut"
	KindDetection     = "yolo"
)

// NetworkInfo holds the global [net] parameters.
type NetworkInfo struct {
	// Width is the network input width in pixels.
	Width int
	// Height is the network input height in pixels.
	Height int
	// Channels is the number of input channels.
	Channels int
	// Options keeps every other [net] field (training hyperparameters etc.)
	// with its coerced value.
	Options map[string]any
}

// LayerSpec is one layer of the graph. The set of implementations is closed:
// *Convolutional, *MaxPool, *Upsample, *Route, *Shortcut and *Detection.
type LayerSpec interface {
	// Kind returns the cfg block name of the layer.
	Kind() string
	clone() LayerSpec
}

// Convolutional is a [convolutional] block.
type Convolutional struct {
	Filters    int
	Size       int
	Stride     int
	Pad        bool
	BatchNorm  bool
	Activation Activation
}

// Padding returns the symmetric zero padding applied on each spatial edge.
func (c *Convolutional) Padding() int {
	if !c.Pad {
		return 0
	}
	return (c.Size - 1) / 2
}

// Kind implements LayerSpec.
func (c *Convolutional) Kind() string { return KindConvolutional }

func (c *Convolutional) clone() LayerSpec {
	cp := *c
	return &cp
}

// MaxPool is a [maxpool] block.
type MaxPool struct {
	Size   int
	Stride int
}

// Kind implements LayerSpec.
func (m *MaxPool) Kind() string { return KindMaxPool }

func (m *MaxPool) clone() LayerSpec {
	cp := *m
	return &cp
}

// Upsample is an [upsample] block (nearest neighbour, integer factor).
type Upsample struct {
	Stride int
}

// Kind implements LayerSpec.
func (u *Upsample) Kind() string { return KindUpsample }

func (u *Upsample) clone() LayerSpec {
	cp := *u
	return &cp
}

// Route is a [route] block. Layers holds relative (negative) or absolute
// references as parsed; after Build every entry is absolute.
type Route struct {
	Layers []int
}

// Kind implements LayerSpec.
func (r *Route) Kind() string { return KindRoute }

func (r *Route) clone() LayerSpec {
	return &Route{Layers: append([]int(nil), r.Layers...)}
}

// Shortcut is a [shortcut] block. From is relative as parsed and absolute
// after Build.
type Shortcut struct {
	From       int
	Activation Activation
}

// Kind implements LayerSpec.
func (s *Shortcut) Kind() string { return KindShortcut }

func (s *Shortcut) clone() LayerSpec {
	cp := *s
	return &cp
}

// Detection is a [yolo] block.
type Detection struct {
	// Anchors are all anchor priors declared on the block.
	Anchors []postprocess.Anchor
	// Mask selects the anchors used by this head.
	Mask []int
	// Classes is the declared class count. It is informational only; the
	// decoder derives the class count from the tensor shape.
	Classes int
}

// HeadAnchors returns the anchors selected by the mask, in mask order.
func (d *Detection) HeadAnchors() []postprocess.Anchor {
	out := make([]postprocess.Anchor, len(d.Mask))
	for i, m := range d.Mask {
		out[i] = d.Anchors[m]
	}
	return out
}

// Kind implements LayerSpec.
func (d *Detection) Kind() string { return KindDetection }

func (d *Detection) clone() LayerSpec {
	return &Detection{
		Anchors: append([]postprocess.Anchor(nil), d.Anchors...),
		Mask:    append([]int(nil), d.Mask...),
		Classes: d.Classes,
	}
}

// describe renders the layer parameters for Summary.
func describe(l LayerSpec) string {
	switch v := l.(type) {
	case *Convolutional:
		s := fmt.Sprintf("%d %dx%d/%d %s", v.Filters, v.Size, v.Size, v.Stride, v.Activation)
		if v.BatchNorm {
			s += " bn"
		}
		return s
	case *MaxPool:
		return fmt.Sprintf("%dx%d/%d", v.Size, v.Size, v.Stride)
	case *Upsample:
		return fmt.Sprintf("x%d", v.Stride)
	case *Route:
		return fmt.Sprintf("layers=%s", joinInts(v.Layers))
	case *Shortcut:
		return fmt.Sprintf("from=%d %s", v.From, v.Activation)
	case *Detection:
		return fmt.Sprintf("mask=%s", joinInts(v.Mask))
	default:
		return ""
	}
}

func joinInts(xs []int) string {
	s := ""
	for i, x := range xs {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprint(x)
	}
	return s
}
