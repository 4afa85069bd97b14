package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks scheduler activity. All methods are nil-safe so callers
// can skip wiring metrics in tests.
type Metrics struct {
	SweepLatency prometheus.Histogram
	Runs         *prometheus.CounterVec
	Schedules    prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		SweepLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "heirloom_scheduler_sweep_duration_seconds",
			Help:    "Duration of one scheduler sweep over all due schedules.",
			Buckets: prometheus.DefBuckets,
		}),
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_scheduler_runs_total",
			Help: "Per-user evaluation runs executed by the scheduler, by outcome.",
		}, []string{"outcome"}),
		Schedules: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "heirloom_scheduler_schedules",
			Help: "Number of registered evaluation schedules.",
		}),
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRun(outcome string) {
	if m != nil {
		m.Runs.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetScheduleCount(n int) {
	if m != nil {
		m.Schedules.Set(float64(n))
	}
}
