package video

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/pipeline"
)

// ErrQuit is returned by Shower.Run when the user presses q.
var ErrQuit = errors.New("video: quit requested")

// ErrEndOfStream is returned by Grabber.Run when the source has no more
// frames.
var ErrEndOfStream = errors.New("video: end of stream")

// Grabber reads frames from a capture device or file in its own goroutine
// and publishes only the most recent one.
type Grabber struct {
	cap    *gocv.VideoCapture
	frames *pipeline.Mailbox[gocv.Mat]
	log    *zap.Logger
}

// OpenGrabber opens src, a camera index ("0") or a file path.
func OpenGrabber(src string, log *zap.Logger) (*Grabber, error) {
	var device any = src
	if id, err := strconv.Atoi(src); err == nil {
		device = id
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture %s", src)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Grabber{cap: vc, frames: pipeline.NewMailbox[gocv.Mat](), log: log}, nil
}

// Frames is the latest-frame mailbox. Frames taken from it are owned by
// the caller and must be closed.
func (g *Grabber) Frames() *pipeline.Mailbox[gocv.Mat] {
	return g.frames
}

// FPS reports the source frame rate, zero when unknown.
func (g *Grabber) FPS() float64 {
	return g.cap.Get(gocv.VideoCaptureFPS)
}

// Run reads until ctx ends or the source is exhausted, then closes the
// mailbox. Frames the reader did not pick up in time are dropped.
func (g *Grabber) Run(ctx context.Context) error {
	defer g.frames.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame := gocv.NewMat()
		if ok := g.cap.Read(&frame); !ok || frame.Empty() {
			_ = frame.Close()
			g.log.Info("capture stopped")
			return ErrEndOfStream
		}
		if old, replaced := g.frames.Put(frame); replaced {
			_ = old.Close()
		}
	}
}

// Close releases the capture device and drops any frame not taken.
func (g *Grabber) Close() error {
	g.frames.Close()
	if frame, ok := g.frames.TryTake(); ok {
		_ = frame.Close()
	}
	return g.cap.Close()
}

// Shower displays frames in a window from its own goroutine.
type Shower struct {
	window *gocv.Window
	frames *pipeline.Mailbox[gocv.Mat]
}

// NewShower opens a window titled name.
func NewShower(name string) *Shower {
	return &Shower{window: gocv.NewWindow(name), frames: pipeline.NewMailbox[gocv.Mat]()}
}

// Show queues frame for display, replacing any frame not yet shown. The
// shower takes ownership of frame.
func (s *Shower) Show(frame gocv.Mat) {
	if old, replaced := s.frames.Put(frame); replaced {
		_ = old.Close()
	}
}

// Run displays queued frames until ctx ends or q is pressed.
func (s *Shower) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if frame, ok := s.frames.TryTake(); ok {
			s.window.IMShow(frame)
			_ = frame.Close()
		}
		if s.window.WaitKey(1) == 'q' {
			return ErrQuit
		}
	}
}

// Close closes the window and drops any pending frame.
func (s *Shower) Close() error {
	s.frames.Close()
	if frame, ok := s.frames.TryTake(); ok {
		_ = frame.Close()
	}
	return s.window.Close()
}
