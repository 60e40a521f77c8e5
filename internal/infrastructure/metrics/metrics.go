package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/infrastructure/collector"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles prometheus collectors used by the API.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
	RateLimitDropped   prometheus.Counter

	UploadItemsTotal   *prometheus.CounterVec
	UploadBytesTotal   *prometheus.CounterVec
	UploadDurationSec  *prometheus.HistogramVec
	UploadBatchesTotal *prometheus.CounterVec

	HostCPUPercent    prometheus.Gauge
	HostMemoryPercent prometheus.Gauge
	SpoolUsedPercent  prometheus.Gauge
	SpoolFreeBytes    prometheus.Gauge
}

var (
	_ port.UploadRecorder = (*Metrics)(nil)
	_ collector.HostSink  = (*Metrics)(nil)
)

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securecam_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "securecam_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "securecam_auth_failures_total",
			Help: "Total number of auth failures.",
		}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "securecam_ratelimit_dropped_total",
			Help: "Total number of requests dropped by rate limiter.",
		}),
		UploadItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securecam_upload_items_total",
			Help: "Uploaded media items by kind and result.",
		}, []string{"kind", "result"}),
		UploadBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securecam_upload_bytes_total",
			Help: "Bytes successfully uploaded to object storage.",
		}, []string{"kind"}),
		UploadDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "securecam_upload_item_duration_seconds",
			Help:    "Per-item upload duration in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		UploadBatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securecam_upload_batches_total",
			Help: "Finished upload batches by outcome.",
		}, []string{"outcome"}),
		HostCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "securecam_host_cpu_percent",
			Help: "Host CPU usage percent.",
		}),
		HostMemoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "securecam_host_memory_percent",
			Help: "Host memory usage percent.",
		}),
		SpoolUsedPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "securecam_spool_disk_used_percent",
			Help: "Used percent of the partition holding the media spool.",
		}),
		SpoolFreeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "securecam_spool_disk_free_bytes",
			Help: "Free bytes on the partition holding the media spool.",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
		m.RateLimitDropped,
		m.UploadItemsTotal,
		m.UploadBytesTotal,
		m.UploadDurationSec,
		m.UploadBatchesTotal,
		m.HostCPUPercent,
		m.HostMemoryPercent,
		m.SpoolUsedPercent,
		m.SpoolFreeBytes,
	)

	return m
}

// RegisterActiveSessions exposes the number of open capture sessions.
func (m *Metrics) RegisterActiveSessions(registry *prometheus.Registry, count func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "securecam_capture_sessions_active",
		Help: "Number of open capture sessions.",
	}, func() float64 {
		return float64(count())
	}))
}

func (m *Metrics) ObserveItem(kind string, success bool, sizeBytes int64, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
		if sizeBytes > 0 {
			m.UploadBytesTotal.WithLabelValues(kind).Add(float64(sizeBytes))
		}
	}
	m.UploadItemsTotal.WithLabelValues(kind, result).Inc()
	m.UploadDurationSec.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) ObserveBatch(outcome string) {
	m.UploadBatchesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHost(stats collector.HostStats) {
	m.HostCPUPercent.Set(stats.CPUPercent)
	m.HostMemoryPercent.Set(stats.MemoryPercent)
	m.SpoolUsedPercent.Set(stats.SpoolUsedPercent)
	m.SpoolFreeBytes.Set(float64(stats.SpoolFreeBytes))
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute схлопывает идентификаторы в пути, чтобы не раздувать кардинальность.
func normalizeRoute(path string) string {
	switch {
	case path == "/ws", path == "/healthz", path == "/readyz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/v1/sessions/"):
		rest := strings.TrimPrefix(path, "/api/v1/sessions/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/v1/sessions/{id}" + rest[i:]
		}
		return "/api/v1/sessions/{id}"
	case strings.HasPrefix(path, "/api/v1/loads/") && strings.HasSuffix(path, "/media"):
		return "/api/v1/loads/{key}/media"
	case strings.HasPrefix(path, "/api/v1/device/media/"):
		if path == "/api/v1/device/media/status" {
			return path
		}
		return "/api/v1/device/media/{id}"
	case path == "/api/v1" || strings.HasPrefix(path, "/api/v1/"):
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Flush keeps streaming behavior for handlers that require it.
func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
