// Package ops - eager NCHW tensor operations used by the darknet executor.
package ops

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// BatchNormEpsilon is added to the running variance before the square root.
const BatchNormEpsilon = float32(1e-5)

// BatchNorm holds per-channel inference-mode batch normalization parameters.
type BatchNorm struct {
	Scale    []float32
	Shift    []float32
	Mean     []float32
	Variance []float32
}

// Ops is the set of tensor operations a forward pass needs. All tensors are
// float32 in (batch, channels, height, width) layout. Implementations return
// new tensors and never modify their inputs.
type Ops interface {
	Conv2D(x, w *tensor.Dense, stride, pad int) (*tensor.Dense, error)
	AddBias(x *tensor.Dense, bias []float32) (*tensor.Dense, error)
	BatchNorm(x *tensor.Dense, bn BatchNorm) (*tensor.Dense, error)
	LeakyReLU(x *tensor.Dense, slope float32) (*tensor.Dense, error)
	MaxPool2D(x *tensor.Dense, size, stride int) (*tensor.Dense, error)
	Upsample2D(x *tensor.Dense, stride int) (*tensor.Dense, error)
	Concat(xs ...*tensor.Dense) (*tensor.Dense, error)
	Add(a, b *tensor.Dense) (*tensor.Dense, error)
}

// CPU implements Ops. Convolution and max pooling run as single-node
// gorgonia graphs; the rest are direct loops or tensor package calls.
type CPU struct{}

// NewCPU returns the CPU backend.
func NewCPU() *CPU {
	return &CPU{}
}

// Conv2D convolves x with w (out, in, k, k) using symmetric zero padding.
func (c *CPU) Conv2D(x, w *tensor.Dense, stride, pad int) (*tensor.Dense, error) {
	if err := check4D(x); err != nil {
		return nil, err
	}
	if err := check4D(w); err != nil {
		return nil, err
	}
	ws := w.Shape()
	if ws[1] != x.Shape()[1] {
		return nil, errors.Errorf("ops: conv weights expect %d input channels, got %d", ws[1], x.Shape()[1])
	}

	g := G.NewGraph()
	xn := G.NewTensor(g, tensor.Float32, 4, G.WithShape(x.Shape()...), G.WithValue(x), G.WithName("x"))
	wn := G.NewTensor(g, tensor.Float32, 4, G.WithShape(ws...), G.WithValue(w), G.WithName("w"))
	out, err := G.Conv2d(xn, wn, tensor.Shape{ws[2], ws[3]}, []int{pad, pad}, []int{stride, stride}, []int{1, 1})
	if err != nil {
		return nil, errors.Wrap(err, "ops: conv2d")
	}

	return run(g, out)
}

// MaxPool2D applies max pooling. With stride 1 the input is zero padded by
// size-1 (left/top get the smaller half) so the spatial size is preserved;
// otherwise no padding is applied.
func (c *CPU) MaxPool2D(x *tensor.Dense, size, stride int) (*tensor.Dense, error) {
	if err := check4D(x); err != nil {
		return nil, err
	}

	in := x
	if stride == 1 && size > 1 {
		before := (size - 1) / 2
		in = padSpatial(x, before, size-1-before)
	}

	g := G.NewGraph()
	xn := G.NewTensor(g, tensor.Float32, 4, G.WithShape(in.Shape()...), G.WithValue(in), G.WithName("x"))
	out, err := G.MaxPool2D(xn, tensor.Shape{size, size}, []int{0, 0}, []int{stride, stride})
	if err != nil {
		return nil, errors.Wrap(err, "ops: maxpool2d")
	}

	return run(g, out)
}

// run executes g on a tape machine and returns a copy of out's value.
func run(g *G.ExprGraph, out *G.Node) (*tensor.Dense, error) {
	vm := G.NewTapeMachine(g)
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "ops: run graph")
	}
	t, ok := out.Value().(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("ops: unexpected graph output %T", out.Value())
	}
	return t.Clone().(*tensor.Dense), nil
}

// Upsample2D repeats every pixel stride times along both spatial axes.
func (c *CPU) Upsample2D(x *tensor.Dense, stride int) (*tensor.Dense, error) {
	if err := check4D(x); err != nil {
		return nil, err
	}
	if stride == 1 {
		return x.Clone().(*tensor.Dense), nil
	}

	rows, err := tensor.Repeat(x, 2, stride)
	if err != nil {
		return nil, errors.Wrap(err, "ops: upsample rows")
	}
	out, err := tensor.Repeat(rows, 3, stride)
	if err != nil {
		return nil, errors.Wrap(err, "ops: upsample cols")
	}
	return dense(out)
}

// Concat joins tensors along the channel axis in argument order.
func (c *CPU) Concat(xs ...*tensor.Dense) (*tensor.Dense, error) {
	switch len(xs) {
	case 0:
		return nil, errors.New("ops: concat of nothing")
	case 1:
		return xs[0].Clone().(*tensor.Dense), nil
	}

	rest := make([]tensor.Tensor, len(xs)-1)
	for i, t := range xs[1:] {
		rest[i] = t
	}
	out, err := tensor.Concat(1, xs[0], rest...)
	if err != nil {
		return nil, errors.Wrap(err, "ops: concat")
	}
	return dense(out)
}

// Add sums two tensors of identical shape.
func (c *CPU) Add(a, b *tensor.Dense) (*tensor.Dense, error) {
	if !a.Shape().Eq(b.Shape()) {
		return nil, errors.Errorf("ops: add shapes %v and %v differ", a.Shape(), b.Shape())
	}
	out, err := tensor.Add(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "ops: add")
	}
	return dense(out)
}

// AddBias adds bias[c] to every element of channel c.
func (c *CPU) AddBias(x *tensor.Dense, bias []float32) (*tensor.Dense, error) {
	return perChannel(x, len(bias), func(ch int, v float32) float32 {
		return v + bias[ch]
	})
}

// BatchNorm normalizes each channel with its running statistics, then
// scales and shifts it.
func (c *CPU) BatchNorm(x *tensor.Dense, bn BatchNorm) (*tensor.Dense, error) {
	n := len(bn.Scale)
	if len(bn.Shift) != n || len(bn.Mean) != n || len(bn.Variance) != n {
		return nil, errors.New("ops: batch norm parameter lengths differ")
	}

	inv := make([]float32, n)
	for i, v := range bn.Variance {
		inv[i] = bn.Scale[i] / math32.Sqrt(v+BatchNormEpsilon)
	}
	return perChannel(x, n, func(ch int, v float32) float32 {
		return (v-bn.Mean[ch])*inv[ch] + bn.Shift[ch]
	})
}

// LeakyReLU keeps positive values and multiplies negative ones by slope.
func (c *CPU) LeakyReLU(x *tensor.Dense, slope float32) (*tensor.Dense, error) {
	src := Float32s(x)
	out := make([]float32, len(src))
	for i, v := range src {
		if v < 0 {
			v *= slope
		}
		out[i] = v
	}
	return tensor.New(tensor.WithShape(x.Shape().Clone()...), tensor.WithBacking(out)), nil
}
