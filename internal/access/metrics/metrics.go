package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the access policy module.
type Metrics struct {
	// Evaluation outcomes by decision and access level
	EvaluationOutcome *prometheus.CounterVec

	// Cache lookups by result
	CacheLookups *prometheus.CounterVec

	// Full evaluation latency (cache misses only)
	EvaluateLatency prometheus.Histogram

	// Grants issued and revoked
	GrantEvents *prometheus.CounterVec
}

// New creates a new Metrics instance with all access module metrics registered.
func New() *Metrics {
	return &Metrics{
		EvaluationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_access_evaluations_total",
			Help: "Total permission evaluations by decision and access level",
		}, []string{"decision", "access_level"}), // decision: "allowed", "denied"

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_access_cache_lookups_total",
			Help: "Permission cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss"

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "heirloom_access_evaluate_duration_seconds",
			Help:    "Duration of uncached permission evaluations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		GrantEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_access_grant_events_total",
			Help: "Temporary access grant lifecycle events",
		}, []string{"event"}), // event: "issued", "revoked", "consumed"
	}
}

// IncrementOutcome records one evaluation decision.
func (m *Metrics) IncrementOutcome(decision, accessLevel string) {
	if m != nil {
		m.EvaluationOutcome.WithLabelValues(decision, accessLevel).Inc()
	}
}

// IncrementCacheLookup records a cache hit or miss.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// ObserveEvaluateLatency records one uncached evaluation's duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementGrantEvent records a grant lifecycle event.
func (m *Metrics) IncrementGrantEvent(event string) {
	if m != nil {
		m.GrantEvents.WithLabelValues(event).Inc()
	}
}
