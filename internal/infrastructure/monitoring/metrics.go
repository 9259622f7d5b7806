package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Integration call metrics
	IntegrationCalls    *prometheus.CounterVec
	IntegrationDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	BreakerState  *prometheus.GaugeVec
	BreakerTrips  *prometheus.CounterVec
	BreakerResets *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector. Create exactly one per
// process: collectors register against the default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilience_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resilience_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		IntegrationCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilience_integration_calls_total",
				Help: "Total integration calls by outcome",
			},
			[]string{"integration", "outcome"},
		),
		IntegrationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resilience_integration_call_duration_seconds",
				Help:    "Integration call duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"integration"},
		),

		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resilience_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"integration"},
		),
		BreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilience_breaker_trips_total",
				Help: "Total circuit breaker open transitions",
			},
			[]string{"integration"},
		),
		BreakerResets: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilience_breaker_resets_total",
				Help: "Total manual circuit breaker resets",
			},
			[]string{"integration"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "resilience_ws_connections",
				Help: "Number of active health stream connections",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "resilience_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordIntegrationCall records one call outcome through the registry.
func (m *Metrics) RecordIntegrationCall(integration, outcome string, duration time.Duration) {
	m.IntegrationCalls.WithLabelValues(integration, outcome).Inc()
	if outcome != resilience.OutcomeRejected {
		m.IntegrationDuration.WithLabelValues(integration).Observe(duration.Seconds())
	}
}

// SetBreakerState publishes the current breaker state as a gauge.
func (m *Metrics) SetBreakerState(integration string, state resilience.State) {
	var v float64
	switch state {
	case resilience.StateClosed:
		v = 0
	case resilience.StateHalfOpen:
		v = 1
	case resilience.StateOpen:
		v = 2
	}
	m.BreakerState.WithLabelValues(integration).Set(v)
}

// RecordBreakerTrip counts an open transition.
func (m *Metrics) RecordBreakerTrip(integration string) {
	m.BreakerTrips.WithLabelValues(integration).Inc()
}

// RecordBreakerReset counts a manual reset.
func (m *Metrics) RecordBreakerReset(integration string) {
	m.BreakerResets.WithLabelValues(integration).Inc()
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
