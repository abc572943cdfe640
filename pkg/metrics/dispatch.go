package metrics

import (
	"github.com/pkexplorer/offworker/pkg/dispatch"
)

// NewDispatchMetrics creates a Prometheus-backed dispatch.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// The dispatcher treats nil as "no metrics" via its noop fallback.
func NewDispatchMetrics() dispatch.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusDispatchMetrics()
}

// newPrometheusDispatchMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle between the registry and its
// implementations.
var newPrometheusDispatchMetrics func() dispatch.Metrics

// RegisterDispatchMetricsConstructor registers the Prometheus dispatch
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterDispatchMetricsConstructor(constructor func() dispatch.Metrics) {
	newPrometheusDispatchMetrics = constructor
}
