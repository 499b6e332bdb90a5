// Package obsmetrics exposes a scheduler's dispatch statistics as
// Prometheus collectors, mirroring the shape of the run's telemetry
// records without requiring a reader to parse NDJSON/CSV output.
package obsmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors registered for one run.
type Metrics struct {
	WindowsDispatched *prometheus.CounterVec
	DeadlineMisses    *prometheus.CounterVec
	WindowFailures    *prometheus.CounterVec
	ExecuteLatencyNs  *prometheus.HistogramVec
}

// NewMetrics constructs and registers a fresh set of collectors against
// reg. Labels are plugin_name/adapter_name, matching the telemetry
// record's identifying fields.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WindowsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Name:      "windows_dispatched_total",
			Help:      "Windows dispatched to a device, excluding warmup.",
		}, []string{"plugin_name", "adapter_name"}),
		DeadlineMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Name:      "deadline_misses_total",
			Help:      "Windows whose host-side completion missed the hop deadline.",
		}, []string{"plugin_name", "adapter_name"}),
		WindowFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Name:      "window_failures_total",
			Help:      "Windows whose device_execute returned an error.",
		}, []string{"plugin_name", "adapter_name"}),
		ExecuteLatencyNs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cortex",
			Name:      "execute_latency_ns",
			Help:      "Host-observed device_execute latency in nanoseconds.",
			Buckets:   prometheus.ExponentialBuckets(1_000, 4, 12), // 1us .. ~4.2s
		}, []string{"plugin_name", "adapter_name"}),
	}
	reg.MustRegister(m.WindowsDispatched, m.DeadlineMisses, m.WindowFailures, m.ExecuteLatencyNs)
	return m
}

// RecordWindow records one device's outcome for one dispatched window.
func (m *Metrics) RecordWindow(pluginName, adapterName string, latencyNs int64, deadlineMissed, windowFailed bool) {
	labels := prometheus.Labels{"plugin_name": pluginName, "adapter_name": adapterName}
	m.WindowsDispatched.With(labels).Inc()
	m.ExecuteLatencyNs.With(labels).Observe(float64(latencyNs))
	if deadlineMissed {
		m.DeadlineMisses.With(labels).Inc()
	}
	if windowFailed {
		m.WindowFailures.With(labels).Inc()
	}
}
