// Package inference - Detection engine built from a darknet model.
package inference

import (
	"context"
	"errors"
	"image"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/models"
	"github.com/nvr-ai/go-darknet/models/darknet"
	"github.com/nvr-ai/go-darknet/models/model"
	"github.com/nvr-ai/go-darknet/models/postprocess"
)

// Engine defines the interface for detection engines.
type Engine interface {
	Detect(ctx context.Context, imgs []image.Image) ([][]postprocess.Result, error)
	Detector() *Detector
	Close() error
}

// EngineBuilder assembles an Engine with a fluent API.
type EngineBuilder struct {
	log      *zap.Logger
	model    *darknet.Model
	classes  *models.OutputClassSet
	detector *Detector
	err      error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{log: zap.NewNop()}
}

// WithLogger sets the logger handed to the model and the detector.
func (b *EngineBuilder) WithLogger(log *zap.Logger) *EngineBuilder {
	if log != nil {
		b.log = log
	}
	return b
}

// WithModel loads the model and its class names.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}

	m, err := models.NewModel(args, darknet.WithLogger(b.log))
	if err != nil {
		b.err = err
		return b
	}
	classes, err := models.ClassesFor(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m
	b.classes = classes
	return b
}

// WithLoadedModel uses an already built model and label set.
func (b *EngineBuilder) WithLoadedModel(m *darknet.Model, classes *models.OutputClassSet) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.model = m
	b.classes = classes
	return b
}

// WithDetector sets the detector for the engine.
//
// Arguments:
//   - cfg: The detector configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithDetector(cfg Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if b.model == nil {
		b.err = errors.New("model must be configured before the detector")
		return b
	}

	detector, err := NewDetector(b.model, b.classes, cfg, b.log)
	if err != nil {
		b.err = err
		return b
	}
	b.detector = detector
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// engine implements the Engine interface.
type engine struct {
	detector *Detector
}

func (e *engine) Detect(ctx context.Context, imgs []image.Image) ([][]postprocess.Result, error) {
	return e.detector.Detect(ctx, imgs)
}

func (e *engine) Detector() *Detector {
	return e.detector
}

func (e *engine) Close() error {
	return nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - Engine: The engine.
func (b *EngineBuilder) MustBuild() Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine.
//
// Returns:
//   - Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}
	if b.detector == nil {
		return nil, errors.New("detector not configured")
	}

	return &engine{detector: b.detector}, nil
}
