package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pkexplorer/offworker/pkg/metrics"
	"github.com/pkexplorer/offworker/pkg/replay"
)

// replayMetrics is the Prometheus implementation of replay.Metrics.
type replayMetrics struct {
	invocations prometheus.Counter
	records     *prometheus.CounterVec
}

func newReplayMetrics() replay.Metrics {
	reg := metrics.GetRegistry()

	return &replayMetrics{
		invocations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "offworker_replay_invocations_total",
				Help: "Total replay drain invocations that found pending records",
			},
		),
		records: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "offworker_replay_records_total",
				Help: "Total replayed records by outcome",
			},
			[]string{"status"}, // "acknowledged", "retained"
		),
	}
}

func (m *replayMetrics) ObserveReplay(replayed, failed int) {
	m.invocations.Inc()
	m.records.WithLabelValues("acknowledged").Add(float64(replayed))
	m.records.WithLabelValues("retained").Add(float64(failed))
}
