package inference

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/models"
	"github.com/nvr-ai/go-darknet/models/darknet"
	"github.com/nvr-ai/go-darknet/models/postprocess"
)

// Detector runs batched detection on a darknet model.
type Detector struct {
	model   *darknet.Model
	classes *models.OutputClassSet
	cfg     Config
	log     *zap.Logger

	// mu guards the model parameters against concurrent weight reloads.
	mu sync.RWMutex
}

// NewDetector wraps m.
//
// Arguments:
//   - m: The model. Its input must have 3 channels.
//   - classes: Labels used to fill Result.Label; nil leaves labels empty.
//   - cfg: Post-processing configuration.
//   - log: Logger; nil disables logging.
//
// Returns:
//   - *Detector: The detector.
//   - error: An invalid configuration or an unsupported model input.
func NewDetector(m *darknet.Model, classes *models.OutputClassSet, cfg Config, log *zap.Logger) (*Detector, error) {
	if m == nil {
		return nil, errors.New("inference: nil model")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c := m.Info().Channels; c != 3 {
		return nil, errors.Errorf("inference: model takes %d channels, images have 3", c)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{model: m, classes: classes, cfg: cfg, log: log}, nil
}

// Model returns the wrapped model.
func (d *Detector) Model() *darknet.Model {
	return d.model
}

// Classes returns the label set, nil when labels are not configured.
func (d *Detector) Classes() *models.OutputClassSet {
	return d.classes
}

// Config returns the post-processing configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect runs one forward pass over imgs and post-processes each image.
//
// Every image is resized to the network input (when enabled), packed as RGB
// in [0, 1] and run as one batch. Per image, candidates below the
// confidence threshold are dropped, boxes are scaled to the original image
// size and overlapping boxes are suppressed.
//
// Arguments:
//   - ctx: Checked before the forward pass.
//   - imgs: The batch.
//
// Returns:
//   - [][]postprocess.Result: Detections per image, in input order.
//   - error: A context, packing or forward error.
func (d *Detector) Detect(ctx context.Context, imgs []image.Image) ([][]postprocess.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info := d.model.Info()
	start := time.Now()
	x, err := images.ToTensor(imgs, info.Width, info.Height, d.cfg.Resize)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	batches, err := d.model.Forward(x)
	d.mu.RUnlock()
	if err != nil {
		return nil, errors.Wrap(err, "inference: forward")
	}
	forward := time.Since(start)

	out := make([][]postprocess.Result, len(imgs))
	for i, cands := range batches {
		b := imgs[i].Bounds()
		kept := postprocess.Threshold(cands, d.cfg.ConfidenceThreshold)
		results := postprocess.ApplyNMS(postprocess.Rescale(kept, b.Dx(), b.Dy()), &d.cfg.NMS)
		if d.classes != nil {
			for j := range results {
				results[j].Label = d.classes.Name(results[j].Class)
			}
		}
		out[i] = results
	}

	d.log.Debug("detect",
		zap.Int("batch", len(imgs)),
		zap.Duration("forward", forward),
		zap.Duration("total", time.Since(start)))

	return out, nil
}

// DetectOne is Detect for a single image.
func (d *Detector) DetectOne(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	out, err := d.Detect(ctx, []image.Image{img})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ReloadWeights replaces the model weights from a weight file. Detect calls
// wait for the reload to finish. A failed reload leaves the previous
// weights serving.
func (d *Detector) ReloadWeights(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.model.SwapWeightsFile(path)
}

// LoadWeights is ReloadWeights for a weight blob read from r.
func (d *Detector) LoadWeights(r io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.model.SwapWeights(r)
}
