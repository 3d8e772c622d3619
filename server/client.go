package server

import (
	"context"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// DefaultClientTimeout bounds each client request.
const DefaultClientTimeout = 30 * time.Second

// Client calls the detection API.
type Client struct {
	http *resty.Client
}

// NewClient returns a client for the service at baseURL, e.g.
// "http://127.0.0.1:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(DefaultClientTimeout),
	}
}

// check turns transport failures and non-2xx replies into errors.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "request")
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*ErrorResponse); ok && e.Error != "" {
			return errors.Errorf("server returned %s: %s", resp.Status(), e.Error)
		}
		return errors.Errorf("server returned %s", resp.Status())
	}
	return nil
}

// Ping checks that the service is up.
func (c *Client) Ping(ctx context.Context) error {
	return check(c.http.R().
		SetContext(ctx).
		SetError(&ErrorResponse{}).
		Get("/api/ping"))
}

// Model fetches the network description.
func (c *Client) Model(ctx context.Context) (*ModelResponse, error) {
	var out ModelResponse
	err := check(c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&ErrorResponse{}).
		Get("/api/model"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Detect uploads one image and returns its detections.
//
// Arguments:
//   - ctx: Request context.
//   - name: File name sent with the upload.
//   - r: Encoded jpeg, png or webp data.
//
// Returns:
//   - *DetectResponse: The detections, one ImageResult.
//   - error: A transport error or the server's error message.
func (c *Client) Detect(ctx context.Context, name string, r io.Reader) (*DetectResponse, error) {
	var out DetectResponse
	err := check(c.http.R().
		SetContext(ctx).
		SetFileReader("image", name, r).
		SetResult(&out).
		SetError(&ErrorResponse{}).
		Post("/api/detect"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReloadWeights uploads a darknet weight blob to replace the served
// parameters.
func (c *Client) ReloadWeights(ctx context.Context, name string, r io.Reader) error {
	return check(c.http.R().
		SetContext(ctx).
		SetFileReader("weights", name, r).
		SetError(&ErrorResponse{}).
		Post("/api/model/weights"))
}
