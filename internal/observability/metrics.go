package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	readingsWritten   *prometheus.CounterVec
	cacheRequests     *prometheus.CounterVec
	gatherer          prometheus.Gatherer
}

// NewMetrics registers the service collectors on reg. Pass
// prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_http_requests_total",
			Help: "Total count of HTTP requests processed by route, method and status.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensor_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		readingsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_readings_written_total",
			Help: "Total readings stored, by sensor type.",
		}, []string{"type"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_cache_requests_total",
			Help: "Aggregate cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.readingsWritten,
		m.cacheRequests,
	)
	return m
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) ReadingWritten(sensorType string) {
	if m == nil {
		return
	}
	m.readingsWritten.WithLabelValues(sensorType).Inc()
}

func (m *Metrics) CacheHit()   { m.cache("hit") }
func (m *Metrics) CacheMiss()  { m.cache("miss") }
func (m *Metrics) CacheError() { m.cache("error") }

func (m *Metrics) cache(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
