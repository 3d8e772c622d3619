package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvr-ai/go-darknet/models/postprocess"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.HistogramVec
	images     prometheus.Counter
	detections *prometheus.CounterVec
}

// NewMetrics registers the request, image and detection collectors along
// with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "darknet_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		images: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "darknet_images_total",
			Help: "Images run through the detector",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "darknet_detections_total",
			Help: "Detections returned, by class label",
		}, []string{"class"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.images,
		m.detections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records the detections of one image.
func (m *Metrics) Observe(results []postprocess.Result) {
	m.images.Inc()
	for _, r := range results {
		class := r.Label
		if class == "" {
			class = strconv.Itoa(r.Class)
		}
		m.detections.WithLabelValues(class).Inc()
	}
}

// Middleware times each request by its route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
}
