package risk

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instrumentation for the Risk Control Core,
// grounded on the metric-naming convention used across the teacher's
// monitoring subsystems (snake_case, namespace-prefixed, _total/_seconds
// suffixes).
type Metrics struct {
	evaluationsTotal  *prometheus.CounterVec
	evaluationLatency *prometheus.HistogramVec
	verdictsTotal     *prometheus.CounterVec
	sizingTotal       prometheus.Counter
	// breakerTripsTotal is registered, but nothing in this package
	// increments it, so it stays at zero.
	breakerTripsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers Metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "evaluations_total",
			Help:      "Total number of risk evaluations, labeled by path and resolved action.",
		}, []string{"path", "action", "allowed"}),
		evaluationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riskcore",
			Name:      "evaluation_latency_seconds",
			Help:      "Risk evaluation latency in seconds, labeled by path.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"path"}),
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "verdicts_total",
			Help:      "Total number of limit verdicts raised, labeled by limit kind and action.",
		}, []string{"kind", "action"}),
		sizingTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "sizing_calculations_total",
			Help:      "Total number of position sizing calculations performed.",
		}),
		breakerTripsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "breaker_trips_total",
			Help:      "Total number of collaborator circuit breaker trips, labeled by breaker name.",
		}, []string{"breaker"}),
	}
	reg.MustRegister(m.evaluationsTotal, m.evaluationLatency, m.verdictsTotal, m.sizingTotal, m.breakerTripsTotal)
	return m
}

func (m *Metrics) observeEvaluation(path string, eval Evaluation, latency time.Duration, err error) {
	if err != nil {
		return
	}
	allowed := "true"
	if !eval.Allow {
		allowed = "false"
	}
	m.evaluationsTotal.WithLabelValues(path, eval.ResolvedAction.String(), allowed).Inc()
	m.evaluationLatency.WithLabelValues(path).Observe(latency.Seconds())
	for _, v := range eval.Verdicts {
		m.verdictsTotal.WithLabelValues(string(v.Kind), v.Action.String()).Inc()
	}
}

func (m *Metrics) observeSizing() {
	m.sizingTotal.Inc()
}
