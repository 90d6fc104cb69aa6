package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors for the relay. Every method is
// safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	wsClients       prometheus.Gauge
	sseClients      prometheus.Gauge
	broadcastDrops  *prometheus.CounterVec
	rateLimited     prometheus.Counter
	outcomes        *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	repliesSent     *prometheus.CounterVec
	debugUploads    *prometheus.CounterVec
	dbWriteErrors   prometheus.Counter
	inflight        prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "ws_clients",
			Help:      "Current connected audit WebSocket clients",
		}),
		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "sse_clients",
			Help:      "Current connected audit SSE clients",
		}),
		broadcastDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "broadcast_drops_total",
			Help:      "Number of audit events dropped due to slow clients",
		}, []string{"transport"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "http_rate_limited_total",
			Help:      "Number of HTTP requests rejected due to rate limiting",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_total",
			Help:      "Inbound events by platform and terminal outcome",
		}, []string{"platform", "outcome"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "backend_query_duration_seconds",
			Help:      "Histogram of voice backend query durations",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"status"}),
		repliesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "replies_sent_total",
			Help:      "Outbound platform replies by result",
		}, []string{"platform", "result"}),
		debugUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "debug_uploads_total",
			Help:      "Debug payload uploads by result",
		}, []string{"result"}),
		dbWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "db_write_errors_total",
			Help:      "Number of audit write errors reported",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "dispatch_inflight",
			Help:      "Acknowledged events still being processed",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.wsClients,
		m.sseClients,
		m.broadcastDrops,
		m.rateLimited,
		m.outcomes,
		m.backendDuration,
		m.repliesSent,
		m.debugUploads,
		m.dbWriteErrors,
		m.inflight,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records timing and status information.
func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

func (m *Metrics) IncWSClients(delta float64) {
	if m == nil {
		return
	}
	m.wsClients.Add(delta)
}

func (m *Metrics) IncSSEClients(delta float64) {
	if m == nil {
		return
	}
	m.sseClients.Add(delta)
}

func (m *Metrics) IncBroadcastDrops(transport string) {
	if m == nil {
		return
	}
	m.broadcastDrops.WithLabelValues(transport).Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// IncOutcome counts one terminal outcome of an inbound event.
func (m *Metrics) IncOutcome(platform, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(platform, outcome).Inc()
}

// ObserveBackend records a backend query; status is "ok" or "error".
func (m *Metrics) ObserveBackend(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(status).Observe(dur.Seconds())
}

func (m *Metrics) IncRepliesSent(platform, result string) {
	if m == nil {
		return
	}
	m.repliesSent.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) IncDebugUploads(result string) {
	if m == nil {
		return
	}
	m.debugUploads.WithLabelValues(result).Inc()
}

func (m *Metrics) IncDBWriteErrors() {
	if m == nil {
		return
	}
	m.dbWriteErrors.Inc()
}

func (m *Metrics) AddInflight(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}
