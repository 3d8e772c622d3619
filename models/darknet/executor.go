package darknet

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-darknet/models/postprocess"
	"github.com/nvr-ai/go-darknet/ops"
)

// HeadOutput is the decoded output of one detection layer.
type HeadOutput struct {
	// Layer is the index of the detection layer.
	Layer int
	// Candidates holds one list per batch entry.
	Candidates [][]postprocess.Candidate
}

// Executor runs forward passes over a built graph. It holds no per-pass
// state: every Run owns its feature map cache, so concurrent runs against
// the same read-only parameters are safe.
type Executor struct {
	graph  *LayerGraph
	params []*ConvParams
	ops    ops.Ops
	log    *zap.Logger
}

// NewExecutor binds a graph to its convolution parameters (indexed by layer,
// nil for non-convolutional layers) and a tensor backend.
func NewExecutor(graph *LayerGraph, params []*ConvParams, backend ops.Ops, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{graph: graph, params: params, ops: backend, log: log}
}

// Run executes every layer once, in order.
//
// Outputs of layers in the cache set are retained for the rest of the pass;
// route layers concatenate cached outputs along channels and shortcut layers
// add the previous output to the referenced one. Detection layers decode
// their input and leave it flowing unchanged to any following layer.
//
// Arguments:
//   - x: Input tensor (batch, channels, height, width).
//
// Returns:
//   - []HeadOutput: One entry per detection layer, in layer order.
//   - error: *CacheMissError, a decode error or a tensor backend error,
//     wrapped with the failing layer.
func (e *Executor) Run(x *tensor.Dense) ([]HeadOutput, error) {
	cache := make(map[int]*tensor.Dense, len(e.graph.CacheSet))
	for idx := range e.graph.CacheSet {
		cache[idx] = nil
	}

	fetch := func(layer, idx int) (*tensor.Dense, error) {
		t := cache[idx]
		if t == nil {
			return nil, &CacheMissError{Layer: layer, Index: idx}
		}
		return t, nil
	}

	var heads []HeadOutput
	current := x
	for i, layer := range e.graph.Layers {
		var err error
		switch l := layer.(type) {
		case *Convolutional:
			current, err = e.convolve(l, e.params[i], current)

		case *MaxPool:
			current, err = e.ops.MaxPool2D(current, l.Size, l.Stride)

		case *Upsample:
			current, err = e.ops.Upsample2D(current, l.Stride)

		case *Route:
			inputs := make([]*tensor.Dense, len(l.Layers))
			for j, idx := range l.Layers {
				if inputs[j], err = fetch(i, idx); err != nil {
					break
				}
			}
			if err == nil {
				current, err = e.ops.Concat(inputs...)
			}

		case *Shortcut:
			var prev, from *tensor.Dense
			if prev, err = fetch(i, i-1); err == nil {
				if from, err = fetch(i, l.From); err == nil {
					current, err = e.ops.Add(prev, from)
				}
			}

		case *Detection:
			var cands [][]postprocess.Candidate
			if cands, err = postprocess.DecodeHead(current, l.HeadAnchors()); err == nil {
				heads = append(heads, HeadOutput{Layer: i, Candidates: cands})
			}

		default:
			err = errors.Errorf("unsupported layer kind %T", layer)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d (%s)", i, layer.Kind())
		}

		if _, ok := cache[i]; ok {
			cache[i] = current
		}
		e.log.Debug("layer done", zap.Int("layer", i), zap.String("kind", layer.Kind()), zap.Ints("shape", current.Shape()))
	}

	return heads, nil
}

func (e *Executor) convolve(c *Convolutional, p *ConvParams, x *tensor.Dense) (*tensor.Dense, error) {
	if p == nil {
		return nil, errors.New("missing convolution parameters")
	}

	y, err := e.ops.Conv2D(x, p.Weights, c.Stride, c.Padding())
	if err != nil {
		return nil, err
	}

	if p.BatchNorm() {
		y, err = e.ops.BatchNorm(y, ops.BatchNorm{Scale: p.Scale, Shift: p.Bias, Mean: p.Mean, Variance: p.Variance})
	} else {
		y, err = e.ops.AddBias(y, p.Bias)
	}
	if err != nil {
		return nil, err
	}

	if c.Activation == ActivationLeaky {
		return e.ops.LeakyReLU(y, LeakySlope)
	}
	return y, nil
}
