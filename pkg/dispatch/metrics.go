package dispatch

// Metrics receives dispatch observations. The prometheus implementation
// lives in pkg/metrics/prometheus; NoopMetrics serves runs with metrics
// disabled.
type Metrics interface {
	// ObserveDispatch records one completed dispatch with its strategy,
	// response source and duration.
	ObserveDispatch(strategy, source string, seconds float64)

	// ObserveCacheLookup records a namespace lookup outcome.
	ObserveCacheLookup(namespace string, hit bool)

	// ObserveCacheWrite records a background cache write outcome.
	ObserveCacheWrite(namespace string, ok bool)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveDispatch(string, string, float64) {}
func (NoopMetrics) ObserveCacheLookup(string, bool)         {}
func (NoopMetrics) ObserveCacheWrite(string, bool)          {}
