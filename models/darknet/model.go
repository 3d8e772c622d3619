package darknet

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-darknet/models/model"
	"github.com/nvr-ai/go-darknet/models/postprocess"
	"github.com/nvr-ai/go-darknet/ops"
)

// Model is a built darknet network with its parameters.
type Model struct {
	// Name labels the model.
	Name model.Name
	// Graph is the built layer graph.
	Graph *LayerGraph
	// Params holds convolution parameters by layer index (nil elsewhere).
	Params []*ConvParams
	// Header is the weight file header, zero until weights are loaded.
	Header [5]int32

	ops ops.Ops
	log *zap.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used for load and trace messages.
func WithLogger(log *zap.Logger) Option {
	return func(m *Model) {
		if log != nil {
			m.log = log
		}
	}
}

// WithOps replaces the CPU tensor backend.
func WithOps(backend ops.Ops) Option {
	return func(m *Model) {
		if backend != nil {
			m.ops = backend
		}
	}
}

// New allocates zero-initialized parameters for every convolutional layer
// of graph.
func New(graph *LayerGraph, opts ...Option) *Model {
	m := &Model{
		Name:   model.ModelNameCustom,
		Graph:  graph,
		Params: make([]*ConvParams, len(graph.Layers)),
		ops:    ops.NewCPU(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for i, l := range graph.Layers {
		if c, ok := l.(*Convolutional); ok {
			m.Params[i] = newConvParams(c, graph.InChannels[i])
		}
	}
	return m
}

// FromConfig parses cfg text and builds a zero-initialized model.
func FromConfig(r io.Reader, opts ...Option) (*Model, error) {
	specs, info, err := Parse(r)
	if err != nil {
		return nil, err
	}
	graph, err := Build(specs, info)
	if err != nil {
		return nil, err
	}
	return New(graph, opts...), nil
}

// NewModel creates a model from the files named in args.
//
// Arguments:
//   - args: Paths to the cfg and (optionally) weights files.
//   - opts: Model options.
//
// Returns:
//   - *Model: The loaded model.
//   - error: Parse, build or weight loading errors.
func NewModel(args model.NewModelArgs, opts ...Option) (*Model, error) {
	if args.ConfigPath == "" {
		return nil, errors.New("NewModel requires a config path")
	}

	specs, info, err := ParseFile(args.ConfigPath)
	if err != nil {
		return nil, err
	}
	graph, err := Build(specs, info)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", args.ConfigPath)
	}

	m := New(graph, opts...)
	if args.Name != "" {
		m.Name = args.Name
	}
	m.log.Info("model built",
		zap.String("name", string(m.Name)),
		zap.String("config", args.ConfigPath),
		zap.Int("layers", len(graph.Layers)),
		zap.Int("cached", len(graph.CacheSet)))

	if args.WeightsPath != "" {
		if err := m.LoadWeightsFile(args.WeightsPath); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Info returns the [net] block of the model.
func (m *Model) Info() NetworkInfo {
	return m.Graph.Info
}

// Forward runs one pass and returns the merged candidates of all detection
// heads per batch entry, with widths and heights divided by the network
// input size.
//
// Arguments:
//   - x: Input tensor (batch, channels, height, width) matching [net].
//
// Returns:
//   - [][]postprocess.Candidate: One list per batch entry.
//   - error: *InputShapeError or any executor error.
func (m *Model) Forward(x *tensor.Dense) ([][]postprocess.Candidate, error) {
	info := m.Graph.Info
	got := []int(x.Shape().Clone())
	if len(got) != 4 || got[1] != info.Channels || got[2] != info.Height || got[3] != info.Width {
		return nil, &InputShapeError{Want: []int{info.Channels, info.Height, info.Width}, Got: got}
	}

	heads, err := NewExecutor(m.Graph, m.Params, m.ops, m.log).Run(x)
	if err != nil {
		return nil, err
	}

	perHead := make([][][]postprocess.Candidate, len(heads))
	for i, h := range heads {
		perHead[i] = h.Candidates
	}
	return postprocess.MergeHeads(perHead, got[0], info.Width, info.Height), nil
}
