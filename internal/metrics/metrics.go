// Package metrics exposes Prometheus collectors for scoring and advisor calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests can build as many as they like.
type Metrics struct {
	registry        *prometheus.Registry
	scores          *prometheus.CounterVec
	scoreValues     prometheus.Histogram
	advisorRequests *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chadsvasc_scores_total",
			Help: "Scores computed, by entry point.",
		}, []string{"source"}),
		scoreValues: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chadsvasc_score",
			Help:    "Distribution of computed CHA2DS2-VASc scores.",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		advisorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chadsvasc_advisor_requests_total",
			Help: "Advisor calls by kind (recommendation, risk) and outcome.",
		}, []string{"kind", "outcome"}),
	}

	m.registry.MustRegister(
		m.scores,
		m.scoreValues,
		m.advisorRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveScore(source string, n int) {
	m.scores.WithLabelValues(source).Inc()
	m.scoreValues.Observe(float64(n))
}

func (m *Metrics) ObserveAdvisor(kind, outcome string) {
	m.advisorRequests.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
