package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncPublished("order.paid")
	m.IncPublished("order.paid")
	m.IncRetry("refund.requested")
	m.IncDeadLetter("refund.requested")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "bazaar_outbox_published_total", "event_type", "order.paid")
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	got, err = fetchCounterValue(mfs, "bazaar_outbox_publish_failures_total", "outcome", "dead_letter")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)
}

func TestOutboxMetricsDLQSnapshotReplacesOldReasons(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.SetDLQRows(map[string]int64{"max_attempts": 3, "non_retryable": 1})
	m.SetDLQRows(map[string]int64{"max_attempts": 4})

	mfs, err := reg.Gather()
	require.NoError(t, err)
	family := findMetricFamily(mfs, "bazaar_outbox_dlq_rows")
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 1)
	assert.Equal(t, float64(4), family.GetMetric()[0].GetGauge().GetValue())
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	assert.NotPanics(t, func() {
		m.IncPublished("x")
		m.IncRetry("x")
		m.IncDeadLetter("x")
		m.SetDLQRows(map[string]int64{"x": 1})
	})
	assert.NotPanics(t, func() { NewOutboxMetrics(nil).IncPublished("x") })
}
