package metrics

import (
	"github.com/pkexplorer/offworker/pkg/replay"
)

// NewReplayMetrics creates a Prometheus-backed replay.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewReplayMetrics() replay.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusReplayMetrics()
}

// newPrometheusReplayMetrics is implemented in pkg/metrics/prometheus.
var newPrometheusReplayMetrics func() replay.Metrics

// RegisterReplayMetricsConstructor registers the Prometheus replay
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterReplayMetricsConstructor(constructor func() replay.Metrics) {
	newPrometheusReplayMetrics = constructor
}
