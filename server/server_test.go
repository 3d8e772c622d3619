package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/models"
	"github.com/nvr-ai/go-darknet/models/darknet"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newTestServer serves a 4x4 model that predicts one confident box per
// image.
func newTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	m, err := darknet.FromConfig(strings.NewReader(`
[net]
width=4
height=4
channels=3
[convolutional]
filters=6
[yolo]
anchors=16.4,16.4
classes=1
`))
	require.NoError(t, err)
	m.Params[0].Bias[4] = 10

	d, err := inference.NewDetector(m, models.NewOutputClassSet([]string{"plate"}), inference.DefaultConfig(), nil)
	require.NoError(t, err)

	s := New(d, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, NewClient(ts.URL)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestPing(t *testing.T) {
	_, client := newTestServer(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestModel(t *testing.T) {
	_, client := newTestServer(t)

	info, err := client.Model(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "custom", info.Name)
	assert.Equal(t, 4, info.Width)
	assert.Equal(t, 4, info.Height)
	assert.Equal(t, 3, info.Channels)
	assert.Equal(t, 2, info.Layers)
	assert.Equal(t, 1, info.Classes)
	assert.Contains(t, info.Summary, "yolo")
}

func TestDetectMultipart(t *testing.T) {
	_, client := newTestServer(t)

	resp, err := client.Detect(context.Background(), "a.png", bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RequestID)
	require.Len(t, resp.Images, 1)

	img := resp.Images[0]
	assert.Equal(t, "a.png", img.Name)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 8, img.Height)
	require.Len(t, img.Results, 1)
	assert.Equal(t, "plate", img.Results[0].Label)
	assert.Equal(t, images.Rect{X1: -15, Y1: -15, X2: 17, Y2: 17}, img.Results[0].Box)
}

func TestDetectBatch(t *testing.T) {
	_, client := newTestServer(t)

	var out DetectResponse
	resp, err := client.http.R().
		SetFileReader("image", "a.png", bytes.NewReader(pngBytes(t, 8, 8))).
		SetFileReader("image", "b.png", bytes.NewReader(pngBytes(t, 16, 8))).
		SetResult(&out).
		Post("/api/detect")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	require.Len(t, out.Images, 2)
	assert.Equal(t, "b.png", out.Images[1].Name)
	require.Len(t, out.Images[1].Results, 1)
	assert.Equal(t, images.Rect{X1: -30, Y1: -15, X2: 34, Y2: 17}, out.Images[1].Results[0].Box)
}

func TestDetectRawBody(t *testing.T) {
	_, client := newTestServer(t)

	var out DetectResponse
	resp, err := client.http.R().
		SetHeader("Content-Type", "image/png").
		SetHeader(RequestIDHeader, "req-1").
		SetBody(pngBytes(t, 8, 8)).
		SetResult(&out).
		Post("/api/detect")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	assert.Equal(t, "req-1", resp.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-1", out.RequestID)
	require.Len(t, out.Images, 1)
	assert.Empty(t, out.Images[0].Name)
	assert.Len(t, out.Images[0].Results, 1)
}

func TestDetectErrors(t *testing.T) {
	_, client := newTestServer(t)

	_, err := client.Detect(context.Background(), "junk.png", strings.NewReader("not an image"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "junk.png")

	var e ErrorResponse
	resp, err := client.http.R().
		SetHeader("Content-Type", "image/png").
		SetError(&e).
		Post("/api/detect")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, "empty body", e.Error)
	assert.NotEmpty(t, e.RequestID)

	resp, err = client.http.R().
		SetMultipartFormData(map[string]string{"other": "x"}).
		SetError(&e).
		Post("/api/detect")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func TestMetrics(t *testing.T) {
	_, client := newTestServer(t)

	_, err := client.Detect(context.Background(), "a.png", bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)

	resp, err := client.http.R().Get("/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	body := resp.String()
	assert.Contains(t, body, "darknet_images_total 1")
	assert.Contains(t, body, `darknet_detections_total{class="plate"} 1`)
	assert.Contains(t, body, `darknet_http_request_duration_seconds_count{method="POST",route="/api/detect",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestReloadWeights(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	// Header plus 6 biases and 6x3 weights, all zero: objectness drops to
	// sigmoid(0).
	blob := make([]byte, 20+24*4)
	require.NoError(t, client.ReloadWeights(ctx, "zero.weights", bytes.NewReader(blob)))

	resp, err := client.Detect(ctx, "a.png", bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)
	require.Len(t, resp.Images[0].Results, 1)
	assert.InDelta(t, 0.5, resp.Images[0].Results[0].Score, 1e-6)

	// One float short of a full layer, with a non-zero objectness bias that
	// would change the score if any of it were installed.
	short := make([]byte, 20+23*4)
	binary.LittleEndian.PutUint32(short[20+4*4:], math.Float32bits(3))
	err = client.ReloadWeights(ctx, "short.weights", bytes.NewReader(short))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")

	resp, err = client.Detect(ctx, "a.png", bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)
	require.Len(t, resp.Images[0].Results, 1)
	assert.InDelta(t, 0.5, resp.Images[0].Results[0].Score, 1e-6)
}

func TestClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	client := NewClient(ts.URL)
	assert.Error(t, client.Ping(context.Background()))
	_, err := client.Detect(context.Background(), "a.png", io.LimitReader(strings.NewReader(""), 0))
	assert.Error(t, err)
}
