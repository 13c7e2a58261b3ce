// Package metrics provides Prometheus metrics for the QR render service.
package metrics

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pre-defined histogram buckets for latency metrics
var (
	// HTTPLatencyBuckets are latency buckets for full HTTP request/response cycle
	HTTPLatencyBuckets = []float64{0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0}

	// RenderLatencyBuckets are latency buckets for the render call only
	RenderLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10.0}
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTPRequestDuration tracks full HTTP request duration
	HTTPRequestDuration *prometheus.HistogramVec

	// InFlightRequests tracks currently processing requests
	InFlightRequests *prometheus.GaugeVec

	// RenderLatency tracks engine render latency by output format
	RenderLatency *prometheus.HistogramVec

	// RenderTotal tracks renders by output format and outcome
	RenderTotal *prometheus.CounterVec

	// ImageHostCircuitState tracks circuit breaker state per image host
	ImageHostCircuitState *prometheus.GaugeVec

	registry *prometheus.Registry
	hostname string
}

// New creates and registers the service metrics on a private registry.
func New() *Metrics {
	hostname, _ := os.Hostname()

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		hostname: hostname,
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (full request/response cycle)",
				Buckets: HTTPLatencyBuckets,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		InFlightRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qr_in_flight_requests",
				Help: "Number of in-flight requests",
			},
			[]string{"pod"},
		),
		RenderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qr_render_latency_seconds",
				Help:    "QR render latency in seconds (engine only)",
				Buckets: RenderLatencyBuckets,
			},
			[]string{"format"},
		),
		RenderTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qr_render_total",
				Help: "Total QR renders",
			},
			[]string{"format", "status"},
		),
		ImageHostCircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qr_image_host_circuit_state",
				Help: "Image host circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"host"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestDuration,
		m.InFlightRequests,
		m.RenderLatency,
		m.RenderTotal,
		m.ImageHostCircuitState,
	)

	// Initialize to 0 so it's exposed immediately
	m.InFlightRequests.WithLabelValues(hostname).Set(0)

	return m
}

// ObserveRender records the outcome of one render call.
func (m *Metrics) ObserveRender(format string, err error, took time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RenderLatency.WithLabelValues(format).Observe(took.Seconds())
	m.RenderTotal.WithLabelValues(format, status).Inc()
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Middleware returns Fiber middleware that tracks HTTP request metrics.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip metrics collection for /metrics endpoint
		if c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		m.InFlightRequests.WithLabelValues(m.hostname).Inc()
		defer m.InFlightRequests.WithLabelValues(m.hostname).Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		m.HTTPRequestDuration.WithLabelValues(
			c.Method(),
			c.Route().Path,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())

		return err
	}
}
