package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the trigger evaluation engine.
type Metrics struct {
	// Evaluation outcomes by evidence type and verdict
	EvaluationOutcome *prometheus.CounterVec

	// Per-evaluator evidence fetch latency
	EvidenceLatency *prometheus.HistogramVec

	// Full per-user evaluation pass latency
	EvaluateLatency prometheus.Histogram

	// Actions executed by type
	ActionsExecuted *prometheus.CounterVec

	// Pending delayed re-evaluations
	PendingWaits prometheus.Gauge
}

// New creates a new Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		EvaluationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_trigger_evaluations_total",
			Help: "Total trigger evaluation outcomes by evidence type and verdict",
		}, []string{"evidence_type", "verdict"}), // verdict: "triggered", "not_triggered", "failed"

		EvidenceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heirloom_trigger_evidence_duration_seconds",
			Help:    "Duration of evidence gathering by evaluator",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"evidence_type"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "heirloom_trigger_evaluate_user_duration_seconds",
			Help:    "Duration of a full per-user evaluation pass",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		ActionsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_trigger_actions_total",
			Help: "Total rule actions executed by action type",
		}, []string{"action"}),

		PendingWaits: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "heirloom_trigger_pending_waits",
			Help: "Delayed re-evaluations currently scheduled",
		}),
	}
}

// IncrementOutcome records one trigger evaluation verdict.
func (m *Metrics) IncrementOutcome(evidenceType, verdict string) {
	if m != nil {
		m.EvaluationOutcome.WithLabelValues(evidenceType, verdict).Inc()
	}
}

// ObserveEvidenceLatency records the duration of one evaluator's evidence fetch.
func (m *Metrics) ObserveEvidenceLatency(evidenceType string, d time.Duration) {
	if m != nil {
		m.EvidenceLatency.WithLabelValues(evidenceType).Observe(d.Seconds())
	}
}

// ObserveEvaluateLatency records the total per-user pass duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementAction records one executed rule action.
func (m *Metrics) IncrementAction(action string) {
	if m != nil {
		m.ActionsExecuted.WithLabelValues(action).Inc()
	}
}

// AddPendingWaits adjusts the scheduled-wait gauge.
func (m *Metrics) AddPendingWaits(delta float64) {
	if m != nil {
		m.PendingWaits.Add(delta)
	}
}
