package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReconcileMetricsCountsDecisionsAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetrics(reg)

	m.ObserveDecision("returning", 5*time.Millisecond)
	m.ObserveDecision("returning", 5*time.Millisecond)
	m.ObserveDecision("create", 5*time.Millisecond)
	m.ObserveFailure("CONFLICT", time.Millisecond)
	m.IncRetry()

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("returning")); got != 2 {
		t.Fatalf("expected 2 returning decisions, got %f", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("CONFLICT")); got != 1 {
		t.Fatalf("expected 1 conflict failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.retries); got != 1 {
		t.Fatalf("expected 1 retry, got %f", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	m := NewReconcileMetrics(nil)
	m.ObserveDecision("create", time.Millisecond)
	m.ObserveFailure("CONFLICT", time.Millisecond)
	m.IncRetry()

	var nilMetrics *ReconcileMetrics
	nilMetrics.IncRetry()

	NewAuditMetrics(nil).SetFindings("orphaned_orgs", 3)
}

func TestAuditMetricsSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewAuditMetrics(reg)
	a.SetFindings("orgs_without_owner", 2)
	a.SetFindings("orgs_without_owner", 0)

	if got := testutil.ToFloat64(a.findings.WithLabelValues("orgs_without_owner")); got != 0 {
		t.Fatalf("expected gauge reset to 0, got %f", got)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry()) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop after cancel")
	}
}
