// Package server - HTTP detection API over a shared detector.
package server

import (
	"context"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/models/postprocess"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// MaxBodyBytes bounds raw image and multipart request bodies.
	MaxBodyBytes = 64 << 20

	requestIDKey = "request_id"
)

// ImageResult holds the detections of one uploaded image.
type ImageResult struct {
	Name    string               `json:"name,omitempty"`
	Width   int                  `json:"width"`
	Height  int                  `json:"height"`
	Results []postprocess.Result `json:"results"`
}

// DetectResponse is the body of a successful POST /api/detect.
type DetectResponse struct {
	RequestID string        `json:"request_id"`
	Images    []ImageResult `json:"images"`
}

// ModelResponse is the body of GET /api/model.
type ModelResponse struct {
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Layers   int    `json:"layers"`
	Classes  int    `json:"classes"`
	Summary  string `json:"summary"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
}

// Server routes HTTP requests to a detector.
type Server struct {
	engine   *gin.Engine
	detector *inference.Detector
	metrics  *Metrics
	log      *zap.Logger
}

// New builds the router.
//
// Arguments:
//   - detector: The shared detector.
//   - log: Request logger; nil disables logging.
//
// Returns:
//   - *Server: The server.
func New(detector *inference.Detector, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine:   gin.New(),
		detector: detector,
		metrics:  NewMetrics(),
		log:      log,
	}

	s.engine.Use(gin.Recovery(), requestID(), s.metrics.Middleware(), s.logRequests())
	s.engine.GET("/metrics", s.metrics.Handler())

	api := s.engine.Group("/api")
	api.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	api.GET("/model", s.model)
	api.POST("/model/weights", s.reloadWeights)
	api.POST("/detect", s.detect)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Info("request",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: c.GetString(requestIDKey), Error: err.Error()})
}

func (s *Server) model(c *gin.Context) {
	m := s.detector.Model()
	info := m.Info()
	classes := 0
	if set := s.detector.Classes(); set != nil {
		classes = set.Len()
	}
	c.JSON(http.StatusOK, ModelResponse{
		Name:     string(m.Name),
		Width:    info.Width,
		Height:   info.Height,
		Channels: info.Channels,
		Layers:   len(m.Graph.Layers),
		Classes:  classes,
		Summary:  m.Graph.Summary(),
	})
}

func (s *Server) reloadWeights(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<30)
	header, err := c.FormFile("weights")
	if err != nil {
		s.fail(c, http.StatusBadRequest, errors.Wrap(err, "weights upload"))
		return
	}
	f, err := header.Open()
	if err != nil {
		s.fail(c, http.StatusBadRequest, errors.Wrap(err, "open upload"))
		return
	}
	defer f.Close()

	if err := s.detector.LoadWeights(f); err != nil {
		s.fail(c, http.StatusUnprocessableEntity, err)
		return
	}
	s.log.Info("weights reloaded", zap.String("file", header.Filename), zap.Int64("bytes", header.Size))
	c.JSON(http.StatusOK, gin.H{"data": header.Filename})
}

// upload is one image body and its client-side name.
type upload struct {
	name string
	data []byte
}

// readUploads collects the multipart "image" files, or the raw body when
// the request is not multipart.
func readUploads(c *gin.Context) ([]upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, errors.Wrap(err, "read body")
		}
		if len(data) == 0 {
			return nil, errors.New("empty body")
		}
		return []upload{{data: data}}, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.Wrap(err, "parse multipart form")
	}
	files := form.File["image"]
	if len(files) == 0 {
		return nil, errors.New(`no "image" files in form`)
	}

	out := make([]upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", fh.Filename)
		}
		out = append(out, upload{name: fh.Filename, data: data})
	}
	return out, nil
}

func (s *Server) detect(c *gin.Context) {
	uploads, err := readUploads(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	imgs := make([]image.Image, len(uploads))
	for i, u := range uploads {
		img, err := images.Decode(u.data)
		if err != nil {
			if u.name != "" {
				err = errors.Wrap(err, u.name)
			}
			s.fail(c, http.StatusBadRequest, err)
			return
		}
		imgs[i] = img
	}

	batches, err := s.detector.Detect(c.Request.Context(), imgs)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	resp := DetectResponse{RequestID: c.GetString(requestIDKey), Images: make([]ImageResult, len(imgs))}
	for i, results := range batches {
		s.metrics.Observe(results)
		if results == nil {
			results = []postprocess.Result{}
		}
		b := imgs[i].Bounds()
		resp.Images[i] = ImageResult{Name: uploads[i].name, Width: b.Dx(), Height: b.Dy(), Results: results}
	}
	c.JSON(http.StatusOK, resp)
}
