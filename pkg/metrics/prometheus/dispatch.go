// Package prometheus contains the Prometheus implementations of the
// domain metrics interfaces. Importing it registers the constructors
// with pkg/metrics; nothing here is called directly.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pkexplorer/offworker/pkg/dispatch"
	"github.com/pkexplorer/offworker/pkg/metrics"
)

func init() {
	metrics.RegisterDispatchMetricsConstructor(newDispatchMetrics)
	metrics.RegisterReplayMetricsConstructor(newReplayMetrics)
}

// dispatchMetrics is the Prometheus implementation of dispatch.Metrics.
type dispatchMetrics struct {
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	cacheWrites      *prometheus.CounterVec
}

func newDispatchMetrics() dispatch.Metrics {
	reg := metrics.GetRegistry()

	return &dispatchMetrics{
		dispatches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "offworker_dispatch_total",
				Help: "Total intercepted requests by strategy and response source",
			},
			[]string{"strategy", "source"}, // source: "network", "cache", "synthetic"
		),
		dispatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "offworker_dispatch_duration_seconds",
				Help: "Duration of request dispatch by strategy",
				Buckets: []float64{
					0.001, // 1ms - cache hits
					0.005, // 5ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms - slow network
					1,     // 1s
					5,     // 5s
					10,    // 10s - timeouts
				},
			},
			[]string{"strategy"},
		),
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "offworker_cache_lookups_total",
				Help: "Total cache namespace lookups by namespace and outcome",
			},
			[]string{"namespace", "status"}, // status: "hit", "miss"
		),
		cacheWrites: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "offworker_cache_writes_total",
				Help: "Total background cache writes by namespace and outcome",
			},
			[]string{"namespace", "status"}, // status: "ok", "failed"
		),
	}
}

func (m *dispatchMetrics) ObserveDispatch(strategy, source string, seconds float64) {
	m.dispatches.WithLabelValues(strategy, source).Inc()
	m.dispatchDuration.WithLabelValues(strategy).Observe(seconds)
}

func (m *dispatchMetrics) ObserveCacheLookup(namespace string, hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	m.cacheLookups.WithLabelValues(namespace, status).Inc()
}

func (m *dispatchMetrics) ObserveCacheWrite(namespace string, ok bool) {
	status := "failed"
	if ok {
		status = "ok"
	}
	m.cacheWrites.WithLabelValues(namespace, status).Inc()
}
