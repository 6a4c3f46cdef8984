package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const outboxSubsystem = "outbox"

// OutboxMetrics covers the outbox publisher.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dlqRows   *prometheus.GaugeVec
}

// NewOutboxMetrics registers the publisher metrics. A nil registerer yields
// a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: outboxSubsystem,
			Name:      "published_total",
			Help:      "Outbox rows acknowledged by Pub/Sub.",
		}, []string{"event_type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: outboxSubsystem,
			Name:      "publish_failures_total",
			Help:      "Failed publish attempts; outcome is retry or dead_letter.",
		}, []string{"event_type", "outcome"}),
		dlqRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: outboxSubsystem,
			Name:      "dlq_rows",
			Help:      "Rows parked in outbox_dlq by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.published, m.failed, m.dlqRows)
	return m
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(eventType).Inc()
}

func (m *OutboxMetrics) IncRetry(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(eventType, "retry").Inc()
}

func (m *OutboxMetrics) IncDeadLetter(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(eventType, "dead_letter").Inc()
}

// SetDLQRows replaces the gauge with a fresh snapshot.
func (m *OutboxMetrics) SetDLQRows(byReason map[string]int64) {
	if m == nil || m.dlqRows == nil {
		return
	}
	m.dlqRows.Reset()
	for reason, n := range byReason {
		m.dlqRows.WithLabelValues(reason).Set(float64(n))
	}
}
