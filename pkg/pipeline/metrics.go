package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of the orchestrator. A nil *Metrics
// records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageRuns     *prometheus.CounterVec
	scoringPolls  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "varenrich",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of pipeline stage runs.",
			Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 3600},
		}, []string{"stage"}),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "varenrich",
			Name:      "stage_runs_total",
			Help:      "Pipeline stage runs by outcome.",
		}, []string{"stage", "outcome"}),
		scoringPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "varenrich",
			Name:      "scoring_requests_total",
			Help:      "Scoring service submissions and downloads by result.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.stageDuration, m.stageRuns, m.scoringPolls)
	}
	return m
}

func (m *Metrics) observeStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stageRuns.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) scoring(op, result string) {
	if m == nil {
		return
	}
	m.scoringPolls.WithLabelValues(op, result).Inc()
}
