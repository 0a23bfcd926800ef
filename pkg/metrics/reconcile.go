package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics tracks identity reconciliation outcomes.
type ReconcileMetrics struct {
	decisions *prometheus.CounterVec
	failures  *prometheus.CounterVec
	retries   prometheus.Counter
	duration  prometheus.Histogram
}

// NewReconcileMetrics registers reconciliation metrics on reg. A nil registerer
// yields a no-op recorder.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	m := &ReconcileMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_decisions_total",
			Help:      "Completed login reconciliations by decision kind.",
		}, []string{"decision"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_failures_total",
			Help:      "Failed login reconciliations by error code.",
		}, []string{"code"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_retries_total",
			Help:      "Reconciliations retried after a uniqueness race.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Wall time of login reconciliation including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.decisions, m.failures, m.retries, m.duration)
	return m
}

// ObserveDecision records a successful reconciliation.
func (m *ReconcileMetrics) ObserveDecision(decision string, elapsed time.Duration) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(decision)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// ObserveFailure records a failed reconciliation.
func (m *ReconcileMetrics) ObserveFailure(code string, elapsed time.Duration) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(code)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// IncRetry counts a retry after a duplicate-key race.
func (m *ReconcileMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}
