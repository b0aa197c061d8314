package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"fraclaims/internal/domain"
	"fraclaims/internal/metrics"
)

func TestMetrics_ObserveOutcome(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.RunStarted()
	m.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsInFlight))

	m.ObserveOutcome(&domain.ProcessingOutcome{State: domain.StateDone, Status: domain.StatusVerified}, time.Second)
	m.ObserveOutcome(&domain.ProcessingOutcome{
		State: domain.StateFailed, Status: domain.StatusPending, FailureKind: domain.FailureChannelTimeout,
	}, 2*time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("done", "Verified", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("failed", "Pending", "channel_timeout")))
}

func TestMetrics_ObserveSink(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveSink("ledger", nil)
	m.ObserveSink("ledger", errors.New("db down"))
	m.ObserveSink("ledger", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SinkDeliveriesTotal.WithLabelValues("ledger", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkDeliveriesTotal.WithLabelValues("ledger", "error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.RunStarted()
		m.ObserveSubmission("result")
		m.ObserveEvent(domain.PhaseQueued)
		m.ObserveSink("kafka", nil)
		m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
		m.ObserveOutcome(&domain.ProcessingOutcome{}, 0)
	})
}
