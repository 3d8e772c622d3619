package ops

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Float32s returns the row-major float32 backing of t, materializing views.
func Float32s(t *tensor.Dense) []float32 {
	if t.IsView() {
		if m, ok := t.Materialize().(*tensor.Dense); ok {
			t = m
		}
	}
	return t.Data().([]float32)
}

// Zeros allocates a zero-filled float32 tensor.
func Zeros(shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float32))
}

func check4D(t *tensor.Dense) error {
	if t == nil {
		return errors.New("ops: nil tensor")
	}
	if t.Dims() != 4 {
		return errors.Errorf("ops: want a 4-d tensor, got shape %v", t.Shape())
	}
	if t.Dtype() != tensor.Float32 {
		return errors.Errorf("ops: want float32, got %v", t.Dtype())
	}
	return nil
}

func dense(t tensor.Tensor) (*tensor.Dense, error) {
	d, ok := t.(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("ops: unexpected tensor type %T", t)
	}
	if d.IsView() {
		m, ok := d.Materialize().(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("ops: cannot materialize %T", d)
		}
		return m, nil
	}
	return d, nil
}

// perChannel maps fn over every element with its channel index.
func perChannel(x *tensor.Dense, channels int, fn func(ch int, v float32) float32) (*tensor.Dense, error) {
	if err := check4D(x); err != nil {
		return nil, err
	}
	s := x.Shape()
	if s[1] != channels {
		return nil, errors.Errorf("ops: %d per-channel parameters for %d channels", channels, s[1])
	}

	src := Float32s(x)
	out := make([]float32, len(src))
	plane := s[2] * s[3]
	for i, v := range src {
		out[i] = fn((i/plane)%channels, v)
	}
	return tensor.New(tensor.WithShape(s.Clone()...), tensor.WithBacking(out)), nil
}

// padSpatial zero pads the last two axes: before rows/cols on the top/left
// and after on the bottom/right.
func padSpatial(x *tensor.Dense, before, after int) *tensor.Dense {
	s := x.Shape()
	n, c, h, w := s[0], s[1], s[2], s[3]
	ph, pw := h+before+after, w+before+after

	src := Float32s(x)
	out := make([]float32, n*c*ph*pw)
	for nc := 0; nc < n*c; nc++ {
		for y := 0; y < h; y++ {
			from := (nc*h + y) * w
			to := (nc*ph+y+before)*pw + before
			copy(out[to:to+w], src[from:from+w])
		}
	}
	return tensor.New(tensor.WithShape(n, c, ph, pw), tensor.WithBacking(out))
}
