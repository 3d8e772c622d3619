package video

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/models/postprocess"
	"github.com/nvr-ai/go-darknet/pipeline"
	"github.com/nvr-ai/go-darknet/util"
)

// DefaultWindow is the display window title.
const DefaultWindow = "YOLOv3"

// Runner drives detection over images, video files and cameras.
type Runner struct {
	// Detector runs the model.
	Detector *inference.Detector
	// Palette colours boxes by class.
	Palette pipeline.Palette
	// SmoothingFrames and SmoothingIoU configure camera and video smoothing.
	SmoothingFrames int
	SmoothingIoU    float32
	// ShowFPS overlays the camera frame rate.
	ShowFPS bool
	// Window is the display title; empty means DefaultWindow.
	Window string
	// Log receives progress messages; nil disables logging.
	Log *zap.Logger
}

func (r *Runner) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// smoother merges results over the configured number of recent frames.
func (r *Runner) smoother() *pipeline.Smoother {
	return pipeline.NewSmoother(r.SmoothingFrames, r.SmoothingIoU)
}

func (r *Runner) window() string {
	if r.Window == "" {
		return DefaultWindow
	}
	return r.Window
}

// Annotate detects objects in frame and draws them onto it.
func (r *Runner) Annotate(ctx context.Context, frame *gocv.Mat, smoother *pipeline.Smoother) ([]postprocess.Result, error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert frame")
	}
	results, err := r.Detector.DetectOne(ctx, img)
	if err != nil {
		return nil, err
	}
	if smoother != nil {
		results = smoother.Add(results)
	}
	DrawResults(frame, results, r.Palette)
	return results, nil
}

// Camera runs live detection on src until the stream ends, ctx is done or
// q is pressed in the window. Capture and display run in their own
// goroutines and exchange frames through latest-wins mailboxes, so frames
// that arrive while a detection is in progress are skipped. When output is
// set, the displayed frames are written as mp4 at the achieved frame rate,
// capped at the rate the source reports.
func (r *Runner) Camera(ctx context.Context, src, output string) error {
	log := r.log()
	grabber, err := OpenGrabber(src, log)
	if err != nil {
		return err
	}
	defer grabber.Close()
	sourceFPS := grabber.FPS()
	shower := NewShower(r.window())
	defer shower.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := grabber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Info("grabber stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		if err := shower.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Info("shower stopped", zap.Error(err))
		}
	}()

	smoother := r.smoother()
	meter := pipeline.NewFPSMeter(pipeline.FPSWindow)
	var recorded []gocv.Mat
	defer func() {
		for _, f := range recorded {
			_ = f.Close()
		}
	}()

	start := time.Now()
	var loopErr error
	for {
		frame, err := grabber.Frames().Take(ctx)
		if err != nil {
			break
		}

		began := time.Now()
		if _, err := r.Annotate(ctx, &frame, smoother); err != nil {
			_ = frame.Close()
			if !errors.Is(err, context.Canceled) {
				loopErr = err
			}
			break
		}
		if r.ShowFPS {
			DrawFPS(&frame, meter.FPS())
		}
		if output != "" {
			recorded = append(recorded, frame.Clone())
		}
		shower.Show(frame)
		meter.Tick(time.Since(began))
	}
	cancel()
	wg.Wait()

	log.Info("camera stopped", zap.Int("recorded", len(recorded)), zap.Float64("fps", meter.FPS()))
	if output != "" && len(recorded) > 0 {
		fps := recordingFPS(len(recorded), time.Since(start), sourceFPS)
		if err := WriteMP4(recorded, fps, output); err != nil && loopErr == nil {
			loopErr = err
		}
	}
	return loopErr
}

// recordingFPS is the rate frames were actually recorded at, never above
// what the source reports. An unknown source rate (zero) is ignored.
func recordingFPS(frames int, elapsed time.Duration, source float64) float64 {
	fps := float64(frames) / elapsed.Seconds()
	if source > 0 && fps > source {
		return source
	}
	return fps
}

// Video runs detection on every frame of a video file, optionally showing
// progress and writing an mp4 at the source frame rate. Results are
// smoothed over recent frames like in camera mode.
func (r *Runner) Video(ctx context.Context, path, output string, show bool) error {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return errors.Wrapf(err, "open video %s", path)
	}
	defer vc.Close()

	var window *gocv.Window
	if show {
		window = gocv.NewWindow(r.window())
		defer window.Close()
	}

	var recorded []gocv.Mat
	defer func() {
		for _, f := range recorded {
			_ = f.Close()
		}
	}()

	smoother := r.smoother()
	frame := gocv.NewMat()
	defer frame.Close()
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			break
		}
		if _, err := r.Annotate(ctx, &frame, smoother); err != nil {
			return err
		}
		count++
		if output != "" {
			recorded = append(recorded, frame.Clone())
		}
		if window != nil {
			window.IMShow(frame)
			if window.WaitKey(1) == 'q' {
				break
			}
		}
	}

	r.log().Info("video done", zap.String("path", path), zap.Int("frames", count))
	if output != "" && len(recorded) > 0 {
		return WriteMP4(recorded, vc.Get(gocv.VideoCaptureFPS), output)
	}
	return nil
}

// Image runs detection on one image file, optionally writing the annotated
// image to output and showing it until a key is pressed.
func (r *Runner) Image(ctx context.Context, path, output string, show bool) ([]postprocess.Result, error) {
	frame := gocv.IMRead(path, gocv.IMReadColor)
	if frame.Empty() {
		return nil, errors.Errorf("read image %s", path)
	}
	defer frame.Close()

	results, err := r.Annotate(ctx, &frame, smoother)
	if err != nil {
		return nil, err
	}
	if output != "" && !gocv.IMWrite(output, frame) {
		return nil, errors.Errorf("write image %s", output)
	}
	if show {
		window := gocv.NewWindow(r.window())
		defer window.Close()
		window.IMShow(frame)
		window.WaitKey(0)
	}
	return results, nil
}

// DirectoryEntry is one line of Directory output.
type DirectoryEntry struct {
	Path    string               `json:"path"`
	Results []postprocess.Result `json:"results"`
}

// Directory runs detection on every image in dir in name order and writes
// one JSON line per image to w. When outDir is set the annotated images
// are saved there under their original names.
func (r *Runner) Directory(ctx context.Context, dir, outDir string, w io.Writer) error {
	paths, err := util.ListDirectoryImages(dir)
	if err != nil {
		return err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", outDir)
		}
	}

	enc := json.NewEncoder(w)
	for _, p := range paths {
		img, err := images.LoadFile(p)
		if err != nil {
			return err
		}
		results, err := r.Detector.DetectOne(ctx, img)
		if err != nil {
			return errors.Wrapf(err, "detect %s", p)
		}
		if results == nil {
			results = []postprocess.Result{}
		}
		if err := enc.Encode(DirectoryEntry{Path: p, Results: results}); err != nil {
			return errors.Wrap(err, "write results")
		}

		if outDir != "" {
			if err := r.saveAnnotated(img, results, filepath.Join(outDir, filepath.Base(p))); err != nil {
				return err
			}
		}
	}
	r.log().Info("directory done", zap.String("dir", dir), zap.Int("images", len(paths)))
	return nil
}

func (r *Runner) saveAnnotated(img image.Image, results []postprocess.Result, path string) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrapf(err, "convert %s", path)
	}
	defer mat.Close()

	DrawResults(&mat, results, r.Palette)
	if !gocv.IMWrite(path, mat) {
		return errors.Errorf("write image %s", path)
	}
	return nil
}
