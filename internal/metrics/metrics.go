package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Metrics holds all application metrics.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	decryptAttempts     *prometheus.CounterVec
	decryptSearches     *prometheus.CounterVec
	decryptDuration     prometheus.Histogram
	decryptBytes        prometheus.Counter
	aggregationsTotal   *prometheus.CounterVec
	aggregationDuration prometheus.Histogram
	summariesTotal      *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	goroutines          prometheus.Gauge
	memoryAllocBytes    prometheus.Gauge
	buildInfo           *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return newMetricsWithRegistry(defaultRegistry)
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		decryptAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decrypt_candidate_attempts_total",
				Help: "Total number of decryption candidates tried",
			},
			[]string{"key_len", "mode", "padding", "outcome"},
		),
		decryptSearches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decrypt_searches_total",
				Help: "Total number of decryption searches",
			},
			[]string{"outcome"},
		),
		decryptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "decrypt_duration_seconds",
				Help:    "Decryption search duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 180},
			},
		),
		decryptBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "decrypt_bytes_total",
				Help: "Total ciphertext bytes processed",
			},
		),
		aggregationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregations_total",
				Help: "Total number of aggregation calls",
			},
			[]string{"outcome", "filtered"},
		),
		aggregationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aggregation_duration_seconds",
				Help:    "Aggregation call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		summariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summaries_total",
				Help: "Total number of summary requests",
			},
			[]string{"outcome"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_sessions",
				Help: "Number of open snapshot sessions",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		buildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "build_info",
				Help: "Build information, value is always 1",
			},
			[]string{"version"},
		),
	}
}

// SetVersion records the running version as a build_info gauge.
func (m *Metrics) SetVersion(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

// RecordDecryptAttempt records a single candidate outcome.
func (m *Metrics) RecordDecryptAttempt(keyLen int, mode, padding, outcome string) {
	m.decryptAttempts.WithLabelValues(keyLenLabel(keyLen), mode, padding, outcome).Inc()
}

// RecordDecryptSearch records a whole decryption search.
func (m *Metrics) RecordDecryptSearch(outcome string, duration time.Duration, bytes int64) {
	m.decryptSearches.WithLabelValues(outcome).Inc()
	m.decryptDuration.Observe(duration.Seconds())
	m.decryptBytes.Add(float64(bytes))
}

// RecordAggregation records an aggregation call.
func (m *Metrics) RecordAggregation(outcome string, filtered bool, duration time.Duration) {
	label := "false"
	if filtered {
		label = "true"
	}
	m.aggregationsTotal.WithLabelValues(outcome, label).Inc()
	m.aggregationDuration.Observe(duration.Seconds())
}

// RecordSummary records a summary request outcome.
func (m *Metrics) RecordSummary(outcome string) {
	m.summariesTotal.WithLabelValues(outcome).Inc()
}

// SetActiveSessions updates the open-session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func keyLenLabel(keyLen int) string {
	switch keyLen {
	case 32:
		return "256"
	case 24:
		return "192"
	case 16:
		return "128"
	default:
		return "other"
	}
}
