package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the broker.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	activeSessions       prometheus.Gauge
	sessionsStartedTotal prometheus.Counter
	sessionsReapedTotal  prometheus.Counter
	probeTimeoutsTotal   prometheus.Counter
}

// New creates and registers Prometheus metrics for the broker.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "broker_active_sessions",
		Help: "Number of registered transcoding sessions",
	})
	sessionsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_sessions_started_total",
		Help: "Total number of transcoder children spawned",
	})
	sessionsReapedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_sessions_reaped_total",
		Help: "Total number of sessions evicted for idleness or a dead child",
	})
	probeTimeoutsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_probe_timeouts_total",
		Help: "Total number of play requests that timed out waiting for the origin",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		activeSessions,
		sessionsStartedTotal,
		sessionsReapedTotal,
		probeTimeoutsTotal,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		activeSessions:       activeSessions,
		sessionsStartedTotal: sessionsStartedTotal,
		sessionsReapedTotal:  sessionsReapedTotal,
		probeTimeoutsTotal:   probeTimeoutsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncSessionsStarted increments the sessions started counter.
func (m *Metrics) IncSessionsStarted() {
	m.sessionsStartedTotal.Inc()
}

// AddSessionsReaped adds n to the sessions reaped counter.
func (m *Metrics) AddSessionsReaped(n int) {
	m.sessionsReapedTotal.Add(float64(n))
}

// IncProbeTimeouts increments the probe timeout counter.
func (m *Metrics) IncProbeTimeouts() {
	m.probeTimeoutsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
