// Package metrics provides Prometheus metrics for teamsbots.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ActivitiesTotal     *prometheus.CounterVec
	ActivityDuration    *prometheus.HistogramVec
	OutboundCallsTotal  *prometheus.CounterVec
	FileTransfersTotal  *prometheus.CounterVec
	FileBytesTotal      *prometheus.CounterVec
	ProactiveSendsTotal *prometheus.CounterVec
	RateLimitedTotal    *prometheus.CounterVec
	StoredReferences    prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActivitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbots",
			Name:      "activities_total",
			Help:      "Total number of inbound activities by sample, type and outcome.",
		}, []string{"sample", "type", "outcome"}),
		ActivityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teamsbots",
			Name:      "activity_duration_seconds",
			Help:      "Time spent handling an inbound activity.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sample", "type"}),
		OutboundCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbots",
			Name:      "connector_calls_total",
			Help:      "Total number of Bot Framework connector calls by operation and status.",
		}, []string{"operation", "status"}),
		FileTransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbots",
			Name:      "file_transfers_total",
			Help:      "Total number of file downloads and uploads by direction and result.",
		}, []string{"direction", "result"}),
		FileBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbots",
			Name:      "file_bytes_total",
			Help:      "Total bytes moved by file downloads and uploads.",
		}, []string{"direction"}),
		ProactiveSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbots",
			Name:      "proactive_sends_total",
			Help:      "Total number of proactive messages by result.",
		}, []string{"result"}),
		RateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbots",
			Name:      "rate_limited_total",
			Help:      "Total number of messages rejected by the per-sender rate limit.",
		}, []string{"sample"}),
		StoredReferences: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "teamsbots",
			Name:      "stored_conversation_references",
			Help:      "Number of conversation references available for proactive messaging.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbots",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teamsbots",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.ActivitiesTotal,
		m.ActivityDuration,
		m.OutboundCallsTotal,
		m.FileTransfersTotal,
		m.FileBytesTotal,
		m.ProactiveSendsTotal,
		m.RateLimitedTotal,
		m.StoredReferences,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordActivity records a handled activity.
func (m *Metrics) RecordActivity(sample, activityType, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ActivitiesTotal.WithLabelValues(sample, activityType, outcome).Inc()
	m.ActivityDuration.WithLabelValues(sample, activityType).Observe(seconds)
}

// RecordConnectorCall records an outbound Bot Framework call. A status of
// zero means the request never got a response.
func (m *Metrics) RecordConnectorCall(operation string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.OutboundCallsTotal.WithLabelValues(operation, label).Inc()
}

// RecordFileTransfer records a download or upload.
func (m *Metrics) RecordFileTransfer(direction string, bytes int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.FileTransfersTotal.WithLabelValues(direction, "failure").Inc()
		return
	}
	m.FileTransfersTotal.WithLabelValues(direction, "success").Inc()
	m.FileBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordProactive records a proactive send attempt.
func (m *Metrics) RecordProactive(result string) {
	if m == nil {
		return
	}
	m.ProactiveSendsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited records a message dropped by the sender rate limit.
func (m *Metrics) RecordRateLimited(sample string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(sample).Inc()
}

// SetStoredReferences sets the stored conversation reference gauge.
func (m *Metrics) SetStoredReferences(n int) {
	if m == nil {
		return
	}
	m.StoredReferences.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}
