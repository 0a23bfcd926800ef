package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuditMetrics exposes the latest membership audit findings as gauges.
type AuditMetrics struct {
	findings *prometheus.GaugeVec
}

// NewAuditMetrics registers the audit gauges on reg.
func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	if reg == nil {
		return &AuditMetrics{}
	}
	findings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "membership_audit_findings",
		Help:      "Membership invariant violations found by the last audit run.",
	}, []string{"check"})
	reg.MustRegister(findings)
	return &AuditMetrics{findings: findings}
}

// SetFindings stores the count for one audit check.
func (a *AuditMetrics) SetFindings(check string, count int) {
	if a == nil || a.findings == nil {
		return
	}
	a.findings.WithLabelValues(normalizeLabel(check)).Set(float64(count))
}
