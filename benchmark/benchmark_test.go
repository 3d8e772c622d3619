package benchmark

import (
	"context"
	"encoding/csv"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/models/postprocess"
)

// MockDetector returns one detection per image and records batch sizes.
type MockDetector struct {
	mu      sync.Mutex
	batches []int
	sizes   []image.Rectangle
	failOn  int // 1-based call to fail, 0 never
}

func (m *MockDetector) Detect(ctx context.Context, imgs []image.Image) ([][]postprocess.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, len(imgs))
	if m.failOn == len(m.batches) {
		return nil, errors.New("mock failure")
	}
	out := make([][]postprocess.Result, len(imgs))
	for i, img := range imgs {
		m.sizes = append(m.sizes, img.Bounds())
		out[i] = []postprocess.Result{{Score: 0.9}}
	}
	return out, nil
}

func TestScenarioBuilder(t *testing.T) {
	res, ok := images.GetResolutionByType(images.ResolutionTypeHD720p)
	require.True(t, ok)

	scenario := NewScenarioBuilder("test_scenario").
		WithResolution(res).
		WithImageFormat(images.FormatWebP).
		WithIterations(50).
		WithWarmupRuns(5).
		WithBatchSize(2).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, 1280, scenario.Resolution.Width)
	assert.Equal(t, 720, scenario.Resolution.Height)
	assert.Equal(t, images.FormatWebP, scenario.ImageFormat)
	assert.Equal(t, 50, scenario.Iterations)
	assert.Equal(t, 5, scenario.WarmupRuns)
	assert.Equal(t, 2, scenario.BatchSize)

	defaults := NewScenarioBuilder("d").Build()
	assert.Equal(t, 640, defaults.Resolution.Width)
	assert.Equal(t, images.FormatJPEG, defaults.ImageFormat)
	assert.Equal(t, 1, defaults.BatchSize)
}

func TestQuickScenarios(t *testing.T) {
	quick := QuickScenarios(7, 2)
	require.Len(t, quick, 3)
	assert.Equal(t, "640x480_jpeg_b2", quick[0].Name)
	assert.Equal(t, 1920, quick[2].Resolution.Width)
	for _, s := range quick {
		assert.Equal(t, 7, s.Iterations)
		assert.Equal(t, 2, s.BatchSize)
	}
}

func TestAddScenario(t *testing.T) {
	suite := NewSuite(&MockDetector{}, t.TempDir(), nil)
	scenario := NewScenarioBuilder("test").Build()
	suite.AddScenario(scenario)

	require.Len(t, suite.Scenarios(), 1)
	assert.Equal(t, scenario, suite.Scenarios()[0])
}

func TestRunScenario(t *testing.T) {
	det := &MockDetector{failOn: 3}
	suite := NewSuite(det, t.TempDir(), nil)

	res := images.Resolution{Name: "tiny", Width: 32, Height: 24}
	scenario := NewScenarioBuilder("tiny").
		WithResolution(res).
		WithImageFormat(images.FormatPNG).
		WithIterations(4).
		WithWarmupRuns(1).
		WithBatchSize(3).
		Build()

	m, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)

	// One warmup call plus four timed ones, the second of which fails.
	assert.Equal(t, []int{3, 3, 3, 3, 3}, det.batches)
	for _, b := range det.sizes {
		assert.Equal(t, image.Rect(0, 0, 32, 24), b)
	}
	assert.Equal(t, 9, m.DetectionCount)
	assert.InDelta(t, 0.25, m.ErrorRate, 1e-9)
	assert.Greater(t, m.FramesPerSecond, 0.0)
	assert.LessOrEqual(t, m.P50Latency, m.P95Latency)
	assert.Equal(t, scenario, m.Scenario)
}

func TestRunScenarioErrors(t *testing.T) {
	suite := NewSuite(&MockDetector{}, t.TempDir(), nil)

	_, err := suite.RunScenario(context.Background(), NewScenarioBuilder("x").WithIterations(0).Build())
	assert.Error(t, err)

	_, err = suite.RunScenario(context.Background(), NewScenarioBuilder("x").WithResolution(images.Resolution{}).Build())
	assert.Error(t, err)

	_, err = suite.RunScenario(context.Background(), NewScenarioBuilder("x").WithImageFormat("bmp").Build())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = suite.RunScenario(ctx, NewScenarioBuilder("x").Build())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadTestImages(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	det := &MockDetector{}
	suite := NewSuite(det, t.TempDir(), nil)
	require.NoError(t, suite.LoadTestImages(dir))

	scenario := NewScenarioBuilder("loaded").
		WithResolution(images.Resolution{Width: 20, Height: 16}).
		WithIterations(1).
		WithWarmupRuns(0).
		Build()
	_, err = suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)
	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 20, 16)}, det.sizes)

	assert.Error(t, suite.LoadTestImages(filepath.Join(dir, "missing")))
	assert.Error(t, suite.LoadTestImages(t.TempDir()))
}

func TestRunAllAndSave(t *testing.T) {
	out := filepath.Join(t.TempDir(), "reports")
	suite := NewSuite(&MockDetector{}, out, nil)
	suite.AddScenario(NewScenarioBuilder("ok").WithResolution(images.Resolution{Width: 16, Height: 16}).WithIterations(2).Build())
	suite.AddScenario(NewScenarioBuilder("bad").WithIterations(0).Build())

	require.NoError(t, suite.RunAllScenarios(context.Background()))
	results := suite.GetResults()
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Scenario.Name)

	jsonPath, csvPath, err := suite.SaveResults()
	require.NoError(t, err)
	assert.FileExists(t, jsonPath)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "scenario", rows[0][0])
	assert.Equal(t, []string{"ok", "16x16", "jpeg", "1"}, rows[1][:4])
}

func TestPercentile(t *testing.T) {
	ms := func(xs ...int) []time.Duration {
		out := make([]time.Duration, len(xs))
		for i, x := range xs {
			out[i] = time.Duration(x) * time.Millisecond
		}
		return out
	}

	assert.Equal(t, time.Duration(0), percentile(nil, 50))
	assert.Equal(t, 3*time.Millisecond, percentile(ms(5, 1, 3, 2, 4), 50))
	assert.Equal(t, 5*time.Millisecond, percentile(ms(5, 1, 3, 2, 4), 95))
	assert.Equal(t, 1*time.Millisecond, percentile(ms(5, 1, 3, 2, 4), 1))
	assert.Equal(t, 3*time.Millisecond, mean(ms(1, 2, 6)))
}

func TestSyntheticImage(t *testing.T) {
	img := SyntheticImage(8, 4)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
	r, g, _, _ := img.At(7, 3).RGBA()
	assert.Greater(t, r, uint32(0))
	assert.Greater(t, g, uint32(0))
}

func BenchmarkScenarioBuilder(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewScenarioBuilder("test").
			WithImageFormat(images.FormatJPEG).
			WithIterations(100).
			Build()
	}
}
