package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox delivery outcomes.
const (
	DeliveryPublished = "published"
	DeliveryDuplicate = "duplicate"
	DeliveryRetry     = "retry"
	DeliveryTerminal  = "terminal"
)

// OutboxMetrics tracks what the publisher did with each outbox row.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	batchSize  prometheus.Histogram
}

// NewOutboxMetrics registers the publisher collectors on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox rows handled by the publisher, by outcome and event type.",
		}, []string{"outcome", "event_type"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_rows",
			Help:      "Rows claimed per non-empty publisher batch.",
			Buckets:   prometheus.LinearBuckets(5, 5, 10),
		}),
	}
	reg.MustRegister(m.deliveries, m.batchSize)
	return m
}

// ObserveDelivery counts one row outcome.
func (m *OutboxMetrics) ObserveDelivery(outcome, eventType string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(outcome), normalizeLabel(eventType)).Inc()
}

// ObserveBatch records how many rows a batch claimed.
func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Observe(float64(rows))
}
