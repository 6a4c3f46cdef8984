package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every collector exported by the service.
const namespace = "bazaar"

// OrderMetrics tracks order lifecycle outcomes.
type OrderMetrics struct {
	created       prometheus.Counter
	settlements   *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	refunds       *prometheus.CounterVec
	gateway       *prometheus.HistogramVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Orders created from checkout sessions.",
	})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_settlements_total",
		Help:      "Effective payment settlements by outcome and source.",
	}, []string{"outcome", "source"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_item_cancellations_total",
		Help:      "Order item cancellations by actor.",
	}, []string{"actor"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_refunds_total",
		Help:      "Refund requests and gateway outcomes.",
	}, []string{"stage"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_gateway_request_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	reg.MustRegister(created, settlements, cancellations, refunds, gateway)
	return &OrderMetrics{
		created:       created,
		settlements:   settlements,
		cancellations: cancellations,
		refunds:       refunds,
		gateway:       gateway,
	}
}

func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

func (m *OrderMetrics) IncSettlement(outcome, source string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome), normalizeLabel(source)).Inc()
}

func (m *OrderMetrics) IncCancellation(actor string) {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.WithLabelValues(normalizeLabel(actor)).Inc()
}

// IncRefund counts refunds at a stage: requested, issued, failed or a gateway status.
func (m *OrderMetrics) IncRefund(stage string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(stage)).Inc()
}

func (m *OrderMetrics) ObserveGateway(operation string, err error, duration time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gateway.WithLabelValues(normalizeLabel(operation), outcome).Observe(duration.Seconds())
}
