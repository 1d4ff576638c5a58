package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agrichain/core/events"
)

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetricsRegistry
)

// HTTPMetrics returns the lazily-initialised registry used by the gateway to
// record request activity.
func HTTPMetrics() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agri",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "agri",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agri",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records the outcome of one request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// EscrowMetricsRegistry counts committed escrow activity. It consumes the
// engine's event stream, so only committed work is counted.
type EscrowMetricsRegistry struct {
	events    *prometheus.CounterVec
	transfers *prometheus.CounterVec
	volume    *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// EscrowMetrics returns the singleton escrow metrics registry.
func EscrowMetrics() *EscrowMetricsRegistry {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetricsRegistry{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agri",
				Subsystem: "escrow",
				Name:      "events_total",
				Help:      "Committed escrow and poll events segmented by type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agri",
				Subsystem: "ledger",
				Name:      "transfers_total",
				Help:      "Committed ledger transfers segmented by reason.",
			}, []string{"reason"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agri",
				Subsystem: "ledger",
				Name:      "transfer_volume_total",
				Help:      "Value moved by committed ledger transfers segmented by reason.",
			}, []string{"reason"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agri",
				Subsystem: "escrow",
				Name:      "rejections_total",
				Help:      "Rejected escrow operations segmented by operation and error code.",
			}, []string{"operation", "code"}),
		}
		prometheus.MustRegister(escrowRegistry.events, escrowRegistry.transfers, escrowRegistry.volume, escrowRegistry.failures)
	})
	return escrowRegistry
}

// Emit implements events.Emitter.
func (m *EscrowMetricsRegistry) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	if transfer, ok := evt.(events.Transfer); ok {
		reason := strings.ToLower(strings.TrimSpace(transfer.Reason))
		if reason == "" {
			reason = "unspecified"
		}
		m.transfers.WithLabelValues(reason).Inc()
		m.volume.WithLabelValues(reason).Add(float64(transfer.Amount))
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
}

// RecordRejection counts an operation the engine refused.
func (m *EscrowMetricsRegistry) RecordRejection(operation, code string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, code).Inc()
}
