package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsObservesLatencyPerRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("GET", "/auth/me", "200", 20*time.Millisecond)
	m.Observe("GET", "/auth/me", "401", 2*time.Millisecond)
	m.Observe("POST", "/auth/register", "200", 80*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var latency *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "storefront_http_request_duration_seconds" {
			latency = mf
		}
	}
	require.NotNil(t, latency)
	assert.Equal(t, dto.MetricType_HISTOGRAM, latency.GetType())

	counts := map[string]uint64{}
	for _, metric := range latency.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "route" {
				counts[label.GetValue()] = metric.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, map[string]uint64{"/auth/me": 2, "/auth/register": 1}, counts)
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe("GET", "/", "200", time.Millisecond)
	NewHTTPMetrics(nil).Observe("GET", "/", "200", time.Millisecond)
}
