// Package metrics defines the Prometheus collectors for the processing pipeline
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fraclaims/internal/domain"
)

// Metrics holds all Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	OutcomesTotal       *prometheus.CounterVec
	ProcessingDuration  *prometheus.HistogramVec
	RunsInFlight        prometheus.Gauge
	SubmissionsTotal    *prometheus.CounterVec
	ChannelEventsTotal  *prometheus.CounterVec
	SinkDeliveriesTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraclaims_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fraclaims_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraclaims_processing_outcomes_total",
				Help: "Processing outcomes by terminal state, verification status, and failure kind.",
			},
			[]string{"state", "status", "failure_kind"},
		),
		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fraclaims_processing_duration_seconds",
				Help:    "Wall time of one processing run from submission to outcome.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"state"},
		),
		RunsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fraclaims_processing_runs_in_flight",
				Help: "Number of processing runs currently unresolved.",
			},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraclaims_engine_submissions_total",
				Help: "Engine submissions by result (result, acknowledged, or a failure kind).",
			},
			[]string{"result"},
		),
		ChannelEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraclaims_channel_events_total",
				Help: "Status channel events received by phase.",
			},
			[]string{"phase"},
		),
		SinkDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraclaims_sink_deliveries_total",
				Help: "Outcome deliveries to downstream sinks by sink and result.",
			},
			[]string{"sink", "result"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OutcomesTotal,
		m.ProcessingDuration,
		m.RunsInFlight,
		m.SubmissionsTotal,
		m.ChannelEventsTotal,
		m.SinkDeliveriesTotal,
	)

	return m
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// RunStarted marks a processing run as admitted.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsInFlight.Inc()
}

// ObserveOutcome records the single outcome of a run and marks it resolved.
func (m *Metrics) ObserveOutcome(o *domain.ProcessingOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsInFlight.Dec()
	m.OutcomesTotal.WithLabelValues(string(o.State), string(o.Status), string(o.FailureKind)).Inc()
	m.ProcessingDuration.WithLabelValues(string(o.State)).Observe(elapsed.Seconds())
}

// ObserveSubmission records how the engine answered a submission.
func (m *Metrics) ObserveSubmission(result string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(result).Inc()
}

// ObserveEvent records one status channel event.
func (m *Metrics) ObserveEvent(phase domain.Phase) {
	if m == nil {
		return
	}
	m.ChannelEventsTotal.WithLabelValues(string(phase)).Inc()
}

// ObserveSink records one sink delivery attempt.
func (m *Metrics) ObserveSink(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SinkDeliveriesTotal.WithLabelValues(sink, result).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
