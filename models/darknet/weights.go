package darknet

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-darknet/ops"
)

// headerSize is the byte length of the five int32 weight file header.
const headerSize = 5 * 4

// ConvParams are the learned parameters of one convolutional layer.
type ConvParams struct {
	// Weights has shape (out, in, size, size).
	Weights *tensor.Dense
	// Bias is the convolution bias, or the batch norm shift when BatchNorm.
	Bias []float32
	// Scale, Mean and Variance are set only for batch-normalized layers.
	Scale    []float32
	Mean     []float32
	Variance []float32
}

// BatchNorm reports whether the layer normalizes its output.
func (p *ConvParams) BatchNorm() bool {
	return p.Scale != nil
}

// newConvParams allocates zero weights and biases; batch norm starts as the
// identity transform (scale 1, mean 0, variance 1).
func newConvParams(c *Convolutional, in int) *ConvParams {
	n := c.Filters
	p := &ConvParams{
		Weights: ops.Zeros(n, in, c.Size, c.Size),
		Bias:    make([]float32, n),
	}
	if c.BatchNorm {
		p.Scale = make([]float32, n)
		p.Mean = make([]float32, n)
		p.Variance = make([]float32, n)
		for i := 0; i < n; i++ {
			p.Scale[i] = 1
			p.Variance[i] = 1
		}
	}
	return p
}

// floats is the number of weight-file floats the layer consumes.
func (p *ConvParams) floats() int {
	n := len(p.Bias)
	if p.BatchNorm() {
		n *= 4
	}
	return n + p.Weights.Shape().TotalSize()
}

// LoadWeightsFile populates the model from a darknet .weights file.
func (m *Model) LoadWeightsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open weights %s", path)
	}
	defer f.Close()

	return m.LoadWeights(f)
}

// LoadWeights populates convolutional parameters from a darknet weight blob.
//
// The blob is a five int32 little-endian header followed by float32 values
// consumed in layer order. A batch-normalized layer reads bias, scale,
// running mean and running variance (one float per filter each) and then its
// weights; other convolutional layers read bias then weights. Non
// convolutional layers read nothing. Trailing floats are ignored.
//
// A layer is only written once its full float run is known to be present, so
// on *InsufficientWeightDataError every earlier layer holds loaded values and
// the failing layer and all later ones keep their previous values. The
// header is only replaced when every layer loads. Loading must not run
// concurrently with Forward; SwapWeights gives all-or-nothing replacement.
//
// Arguments:
//   - r: The weight blob.
//
// Returns:
//   - error: *InsufficientWeightDataError or a read error.
func (m *Model) LoadWeights(r io.Reader) error {
	return m.loadWeights(r, m.Params)
}

// SwapWeights reads a weight blob into freshly allocated parameters and
// installs them, with the header, only when the whole blob loads. On error
// the model is left exactly as it was. Like LoadWeights it must not run
// concurrently with Forward.
//
// Arguments:
//   - r: The weight blob.
//
// Returns:
//   - error: *InsufficientWeightDataError or a read error.
func (m *Model) SwapWeights(r io.Reader) error {
	fresh := make([]*ConvParams, len(m.Graph.Layers))
	for i, l := range m.Graph.Layers {
		if c, ok := l.(*Convolutional); ok {
			fresh[i] = newConvParams(c, m.Graph.InChannels[i])
		}
	}
	return m.loadWeights(r, fresh)
}

// SwapWeightsFile is SwapWeights for a .weights file.
func (m *Model) SwapWeightsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open weights %s", path)
	}
	defer f.Close()

	return m.SwapWeights(f)
}

// loadWeights fills params layer by layer and, on success, installs them
// and the header on m.
func (m *Model) loadWeights(r io.Reader, params []*ConvParams) error {
	blob, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read weights")
	}
	if len(blob) < headerSize {
		return &InsufficientWeightDataError{Layer: -1, Needed: headerSize, Available: len(blob)}
	}

	var header [5]int32
	for i := range header {
		header[i] = int32(binary.LittleEndian.Uint32(blob[i*4:]))
	}

	total := (len(blob) - headerSize) / 4
	p := 0
	for i, layer := range m.Graph.Layers {
		if _, ok := layer.(*Convolutional); !ok {
			continue
		}
		lp := params[i]
		needed := lp.floats()
		if total-p < needed {
			return &InsufficientWeightDataError{
				Layer:     i,
				Needed:    needed,
				Available: total - p,
				Offset:    int64(headerSize + p*4),
			}
		}

		read := func(dst []float32) {
			for j := range dst {
				dst[j] = math.Float32frombits(binary.LittleEndian.Uint32(blob[headerSize+(p+j)*4:]))
			}
			p += len(dst)
		}
		read(lp.Bias)
		if lp.BatchNorm() {
			read(lp.Scale)
			read(lp.Mean)
			read(lp.Variance)
		}
		read(ops.Float32s(lp.Weights))
	}

	if p < total {
		m.log.Warn("ignoring trailing weights", zap.Int("floats", total-p))
	}
	m.Params = params
	m.Header = header
	m.log.Info("weights loaded",
		zap.Int32s("header", header[:]),
		zap.Int("floats", p))

	return nil
}
