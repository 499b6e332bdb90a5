package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, cv.With(labels).(prometheus.Metric).Write(m))
	return m.GetCounter().GetValue()
}

func TestRecordWindowIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	labels := prometheus.Labels{"plugin_name": "identity", "adapter_name": "sim"}
	m.RecordWindow("identity", "sim", 500, true, false)
	m.RecordWindow("identity", "sim", 700, false, true)

	require.Equal(t, float64(2), counterValue(t, m.WindowsDispatched, labels))
	require.Equal(t, float64(1), counterValue(t, m.DeadlineMisses, labels))
	require.Equal(t, float64(1), counterValue(t, m.WindowFailures, labels))
}
