package replay

// Metrics receives replay observations. The prometheus implementation
// lives in pkg/metrics/prometheus.
type Metrics interface {
	// ObserveReplay records one drain invocation with the number of
	// acknowledged and retained records.
	ObserveReplay(replayed, failed int)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveReplay(int, int) {}
