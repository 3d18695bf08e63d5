// Package metrics exposes Prometheus collectors for the HTTP API and the
// inquiry pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "creatortent"

// Metrics bundles every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	messagesFetched  *prometheus.CounterVec
	inquiriesStored  *prometheus.CounterVec
	autoReplies      *prometheus.CounterVec
	syncRuns         *prometheus.CounterVec
	analysisFailures prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		messagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "messages_fetched_total",
			Help:      "Messages fetched from connected mailboxes.",
		}, []string{"provider"}),
		inquiriesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "inquiries_stored_total",
			Help:      "Business inquiries stored, by inquiry type.",
		}, []string{"inquiry_type"}),
		autoReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "auto_replies_total",
			Help:      "Auto-replies attempted, by outcome.",
		}, []string{"provider", "success"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "sync_runs_total",
			Help:      "Mailbox sync runs, by outcome.",
		}, []string{"provider", "success"}),
		analysisFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "analysis_failures_total",
			Help:      "Email analyses that fell back to the default result.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequests, m.httpDuration,
		m.messagesFetched, m.inquiriesStored, m.autoReplies, m.syncRuns,
		m.analysisFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementInFlight marks the start of a request.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks the end of a request.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one finished request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordMessagesFetched counts messages pulled from a provider.
func (m *Metrics) RecordMessagesFetched(provider string, n int) {
	m.messagesFetched.WithLabelValues(provider).Add(float64(n))
}

// RecordInquiry counts a stored inquiry.
func (m *Metrics) RecordInquiry(inquiryType string) {
	m.inquiriesStored.WithLabelValues(inquiryType).Inc()
}

// RecordAutoReply counts an auto-reply attempt.
func (m *Metrics) RecordAutoReply(provider string, ok bool) {
	m.autoReplies.WithLabelValues(provider, boolLabel(ok)).Inc()
}

// RecordSync counts a sync run.
func (m *Metrics) RecordSync(provider string, ok bool) {
	m.syncRuns.WithLabelValues(provider, boolLabel(ok)).Inc()
}

// RecordAnalysisFailure counts a classifier fallback.
func (m *Metrics) RecordAnalysisFailure() { m.analysisFailures.Inc() }

func boolLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
