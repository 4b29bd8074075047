package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector records one finished request.
type MetricsCollector interface {
	RecordRequest(method, path string, statusCode int, duration time.Duration, size int64)
}

// PrometheusCollector exports request metrics under the "listing_http_"
// prefix.
type PrometheusCollector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	gatherer prometheus.Gatherer
}

// NewPrometheusCollector registers the request metrics with a new registry.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &PrometheusCollector{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listing_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		size: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listing_http_response_size_bytes",
			Help:    "HTTP response body size by method and route.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"method", "route"}),
		gatherer: reg,
	}
}

func (c *PrometheusCollector) RecordRequest(method, path string, statusCode int, duration time.Duration, size int64) {
	c.requests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.duration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.size.WithLabelValues(method, path).Observe(float64(size))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
