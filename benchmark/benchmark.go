package benchmark

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/models/postprocess"
	"github.com/nvr-ai/go-darknet/util"
)

// Detector is the part of the inference API the benchmark drives.
type Detector interface {
	Detect(ctx context.Context, imgs []image.Image) ([][]postprocess.Result, error)
}

// Scenario defines one benchmark configuration: source frames of a camera
// resolution, encoded in a format, decoded and detected in batches.
type Scenario struct {
	Name        string             `json:"name"`
	Resolution  images.Resolution  `json:"resolution"`
	ImageFormat images.ImageFormat `json:"image_format"`
	BatchSize   int                `json:"batch_size"`
	Iterations  int                `json:"iterations"`
	WarmupRuns  int                `json:"warmup_runs"`
}

// ScenarioBuilder helps build scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder starts a JPEG, batch 1 scenario at VGA with 20
// iterations and 2 warmup runs.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	vga, _ := images.GetResolutionByType(images.ResolutionTypeVGA)
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:        name,
			Resolution:  vga,
			ImageFormat: images.FormatJPEG,
			BatchSize:   1,
			Iterations:  20,
			WarmupRuns:  2,
		},
	}
}

// WithResolution sets the source frame size.
func (sb *ScenarioBuilder) WithResolution(res images.Resolution) *ScenarioBuilder {
	sb.scenario.Resolution = res
	return sb
}

// WithImageFormat sets the encoding of the source frames.
func (sb *ScenarioBuilder) WithImageFormat(format images.ImageFormat) *ScenarioBuilder {
	sb.scenario.ImageFormat = format
	return sb
}

// WithIterations sets the number of timed batches.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of untimed batches run first.
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// WithBatchSize sets the images per Detect call.
func (sb *ScenarioBuilder) WithBatchSize(batchSize int) *ScenarioBuilder {
	sb.scenario.BatchSize = batchSize
	return sb
}

// Build returns the configured scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// QuickScenarios covers VGA, 720p and 1080p JPEG frames, one per batch.
func QuickScenarios(iterations, batchSize int) []Scenario {
	out := make([]Scenario, 0, 3)
	for _, t := range []images.ResolutionType{
		images.ResolutionTypeVGA,
		images.ResolutionTypeHD720p,
		images.ResolutionTypeFHD1080p,
	} {
		res, _ := images.GetResolutionByType(t)
		out = append(out, NewScenarioBuilder(fmt.Sprintf("%dx%d_jpeg_b%d", res.Width, res.Height, batchSize)).
			WithResolution(res).
			WithIterations(iterations).
			WithBatchSize(batchSize).
			Build())
	}
	return out
}

// Suite manages and executes benchmark scenarios.
type Suite struct {
	detector  Detector
	outputDir string
	log       *zap.Logger

	mu        sync.RWMutex
	sources   []image.Image
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuite creates a suite that writes its reports to outputDir.
func NewSuite(detector Detector, outputDir string, log *zap.Logger) *Suite {
	if log == nil {
		log = zap.NewNop()
	}
	return &Suite{detector: detector, outputDir: outputDir, log: log}
}

// AddScenario queues a scenario.
func (s *Suite) AddScenario(scenario Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios = append(s.scenarios, scenario)
}

// Scenarios returns the queued scenarios.
func (s *Suite) Scenarios() []Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Scenario(nil), s.scenarios...)
}

// LoadTestImages loads source images from a file or every image in a
// directory. Without sources a synthetic gradient is used.
func (s *Suite) LoadTestImages(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "stat image path")
	}

	var loaded []image.Image
	if !info.IsDir() {
		img, err := images.LoadFile(path)
		if err != nil {
			return err
		}
		loaded = append(loaded, img)
	} else {
		files, err := util.LoadDirectoryImageFiles(path)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.Errorf("no images in %s", path)
		}
		for _, f := range files {
			img, err := images.Decode(f.Data)
			if err != nil {
				return errors.Wrap(err, f.Path)
			}
			loaded = append(loaded, img)
		}
	}

	s.mu.Lock()
	s.sources = loaded
	s.mu.Unlock()
	return nil
}

// SyntheticImage is a deterministic diagonal colour gradient.
func SyntheticImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: uint8((x + y) * 255 / (width + height)),
				A: 255,
			})
		}
	}
	return img
}

// prepare scales every source to the scenario resolution and encodes it.
func (s *Suite) prepare(scenario Scenario) ([][]byte, error) {
	s.mu.RLock()
	sources := s.sources
	s.mu.RUnlock()

	res := scenario.Resolution
	if len(sources) == 0 {
		sources = []image.Image{SyntheticImage(res.Width, res.Height)}
	}

	payloads := make([][]byte, len(sources))
	for i, src := range sources {
		img := src
		if b := src.Bounds(); b.Dx() != res.Width || b.Dy() != res.Height {
			img = resize.Resize(uint(res.Width), uint(res.Height), src, resize.Bilinear)
		}
		var buf bytes.Buffer
		if err := images.Encode(&buf, img, scenario.ImageFormat); err != nil {
			return nil, err
		}
		payloads[i] = buf.Bytes()
	}
	return payloads, nil
}

// runBatch decodes the payloads and runs one Detect call.
func (s *Suite) runBatch(ctx context.Context, payloads [][]byte) (decode, detect time.Duration, detections int, err error) {
	start := time.Now()
	imgs := make([]image.Image, len(payloads))
	for i, p := range payloads {
		if imgs[i], err = images.Decode(p); err != nil {
			return 0, 0, 0, err
		}
	}
	decode = time.Since(start)

	start = time.Now()
	out, err := s.detector.Detect(ctx, imgs)
	if err != nil {
		return 0, 0, 0, err
	}
	detect = time.Since(start)

	for _, results := range out {
		detections += len(results)
	}
	return decode, detect, detections, nil
}

// RunScenario executes a single scenario.
//
// Arguments:
//   - ctx: Cancels the run between batches.
//   - scenario: The scenario.
//
// Returns:
//   - *PerformanceMetrics: Timings over the successful batches.
//   - error: An invalid scenario, an encoding error or ctx's error.
func (s *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if scenario.Iterations <= 0 || scenario.BatchSize <= 0 {
		return nil, errors.Errorf("scenario %s: iterations and batch size must be positive", scenario.Name)
	}
	if scenario.Resolution.Width <= 0 || scenario.Resolution.Height <= 0 {
		return nil, errors.Errorf("scenario %s: invalid resolution %v", scenario.Name, scenario.Resolution)
	}

	payloads, err := s.prepare(scenario)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}
	batch := func(i int) [][]byte {
		out := make([][]byte, scenario.BatchSize)
		for k := range out {
			out[k] = payloads[(i*scenario.BatchSize+k)%len(payloads)]
		}
		return out
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, _, _, _ = s.runBatch(ctx, batch(i))
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	metrics := &PerformanceMetrics{Scenario: scenario, Timestamp: time.Now()}
	latencies := make([]time.Duration, 0, scenario.Iterations)
	failures := 0
	start := time.Now()

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		decode, detect, detections, err := s.runBatch(ctx, batch(i))
		if err != nil {
			failures++
			s.log.Debug("batch failed", zap.String("scenario", scenario.Name), zap.Int("iteration", i), zap.Error(err))
			continue
		}
		metrics.DecodeDuration += decode
		metrics.InferenceDuration += detect
		metrics.DetectionCount += detections
		latencies = append(latencies, decode+detect)
	}
	metrics.TotalDuration = time.Since(start)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	if seconds := metrics.TotalDuration.Seconds(); seconds > 0 {
		metrics.FramesPerSecond = float64(len(latencies)*scenario.BatchSize) / seconds
	}
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)
	metrics.MeanLatency = mean(latencies)
	metrics.P50Latency = percentile(latencies, 50)
	metrics.P95Latency = percentile(latencies, 95)
	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}

	return metrics, nil
}

// RunAllScenarios executes every queued scenario and keeps the results.
// A failing scenario is logged and skipped; a cancelled context stops the
// run.
func (s *Suite) RunAllScenarios(ctx context.Context) error {
	for _, scenario := range s.Scenarios() {
		metrics, err := s.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}

		s.mu.Lock()
		s.results = append(s.results, *metrics)
		s.mu.Unlock()

		s.log.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Float64("fps", metrics.FramesPerSecond),
			zap.Duration("p95", metrics.P95Latency))
	}
	return nil
}

// SaveResults writes the results as indented JSON and a CSV summary into
// the output directory.
//
// Returns:
//   - string: The JSON report path.
//   - string: The CSV summary path.
//   - error: A filesystem or encoding error.
func (s *Suite) SaveResults() (string, string, error) {
	results := s.GetResults()

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "write results")
	}

	summaryFile := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", "", errors.Wrap(err, "write summary")
	}
	return resultsFile, summaryFile, nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	_ = w.Write([]string{"scenario", "resolution", "format", "batch", "fps", "mean_ms", "p50_ms", "p95_ms", "detections", "error_rate"})
	ms := func(d time.Duration) string { return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64) }
	for _, r := range results {
		_ = w.Write([]string{
			r.Scenario.Name,
			fmt.Sprintf("%dx%d", r.Scenario.Resolution.Width, r.Scenario.Resolution.Height),
			string(r.Scenario.ImageFormat),
			strconv.Itoa(r.Scenario.BatchSize),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			ms(r.MeanLatency),
			ms(r.P50Latency),
			ms(r.P95Latency),
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		})
	}
	w.Flush()
	return w.Error()
}

// GetResults returns all benchmark results.
func (s *Suite) GetResults() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PerformanceMetrics(nil), s.results...)
}
