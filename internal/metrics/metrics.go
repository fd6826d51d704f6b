// Package metrics provides Prometheus metrics for the santa bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the bot.
type Metrics struct {
	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	DraftSize          prometheus.Histogram
	DeliveriesTotal    *prometheus.CounterVec
	SweepsTotal        prometheus.Counter
	SweepExpiredTotal  prometheus.Counter
	SweepDuration      prometheus.Histogram
	ActiveSessions     *prometheus.GaugeVec
	HTTPRequestsTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "santa_transitions_total",
				Help: "Session operations by operation and outcome.",
			},
			[]string{"op", "status"},
		),
		TransitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "santa_transition_duration_seconds",
				Help:    "Time spent in a session operation, lock wait included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		DraftSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "santa_draft_participants",
				Help:    "Participants per successful draft.",
				Buckets: []float64{2, 4, 6, 8, 12, 16, 24, 32, 64},
			},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "santa_deliveries_total",
				Help: "Outbound notifications by kind and result.",
			},
			[]string{"kind", "result"},
		),
		SweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "santa_sweeps_total",
				Help: "Completed expiry sweeps.",
			},
		),
		SweepExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "santa_sweep_expired_total",
				Help: "Sessions expired by the sweeper.",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "santa_sweep_duration_seconds",
				Help:    "Duration of an expiry sweep.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ActiveSessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "santa_active_sessions",
				Help: "Active sessions by lifecycle state, as seen by the last sweep.",
			},
			[]string{"state"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "santa_mgmt_requests_total",
				Help: "Management API requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.TransitionsTotal,
		m.TransitionDuration,
		m.DraftSize,
		m.DeliveriesTotal,
		m.SweepsTotal,
		m.SweepExpiredTotal,
		m.SweepDuration,
		m.ActiveSessions,
		m.HTTPRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gauge registers a gauge read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// Transition records one coordinator operation.
func (m *Metrics) Transition(op, status string, took time.Duration) {
	m.TransitionsTotal.WithLabelValues(op, status).Inc()
	m.TransitionDuration.WithLabelValues(op).Observe(took.Seconds())
}

// Drafted records a successful draft.
func (m *Metrics) Drafted(participants int) {
	m.DraftSize.Observe(float64(participants))
}

// Delivery records one outbound notification.
func (m *Metrics) Delivery(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.DeliveriesTotal.WithLabelValues(kind, result).Inc()
}

// SweepCompleted records one sweep.
func (m *Metrics) SweepCompleted(_, expired int, took time.Duration) {
	m.SweepsTotal.Inc()
	m.SweepExpiredTotal.Add(float64(expired))
	m.SweepDuration.Observe(took.Seconds())
}

// SetActiveSessions replaces the per-state gauge.
func (m *Metrics) SetActiveSessions(byState map[string]int) {
	m.ActiveSessions.Reset()
	for state, n := range byState {
		m.ActiveSessions.WithLabelValues(state).Set(float64(n))
	}
}

// HTTPRequest records one management API request.
func (m *Metrics) HTTPRequest(method, route, code string) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
}
