package auth

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/verte-zerg/keyprint/internal/model"
)

// Metrics holds Prometheus collectors for enrollment and verification.
type Metrics struct {
	enrollments    prometheus.Counter
	decisions      *prometheus.CounterVec
	similarity     prometheus.Histogram
	profileUpdates prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enrollments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keyprint", Subsystem: "auth", Name: "enrollments_total",
			Help: "Total number of enrollment rounds merged into profiles.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyprint", Subsystem: "auth", Name: "decisions_total",
			Help: "Total number of verification decisions by outcome.",
		}, []string{"decision"}),
		similarity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "keyprint", Subsystem: "auth", Name: "similarity",
			Help:    "Similarity scores of scored verifications.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		profileUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keyprint", Subsystem: "auth", Name: "profile_adaptations_total",
			Help: "Total number of profiles adapted after an allow decision.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.enrollments, m.decisions, m.similarity, m.profileUpdates)
	}
	return m
}

func (m *Metrics) observeEnrollment() {
	if m == nil {
		return
	}
	m.enrollments.Inc()
}

func (m *Metrics) observeDecision(res VerifyResult, scored bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(res.Decision)).Inc()
	if scored {
		m.similarity.Observe(res.Similarity)
	}
	if res.ProfileUpdated {
		m.profileUpdates.Inc()
	}
}

// DecisionCount returns the counter for one decision, for inspection in tests and reports.
func (m *Metrics) DecisionCount(d model.Decision) prometheus.Counter {
	return m.decisions.WithLabelValues(string(d))
}
