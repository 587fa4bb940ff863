package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/goldmine/internal/optimization"
)

// Metrics holds the Prometheus collectors describing colony runs.
type Metrics struct {
	runs       *prometheus.CounterVec
	bestYield  prometheus.Histogram
	iterations prometheus.Counter
	abandoned  prometheus.Counter
}

// NewMetrics creates the run collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goldmine",
			Name:      "runs_total",
			Help:      "Colony runs by final status.",
		}, []string{"status"}),
		bestYield: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "goldmine",
			Name:      "best_yield",
			Help:      "Total yield of the best solution of each completed run.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goldmine",
			Name:      "iterations_total",
			Help:      "Colony iterations executed.",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goldmine",
			Name:      "abandoned_solutions_total",
			Help:      "Stagnant solutions replaced by scouts.",
		}),
	}
	reg.MustRegister(m.runs, m.bestYield, m.iterations, m.abandoned)
	return m
}

// ObserveRun records the outcome of a run. result is nil for failed runs.
func (m *Metrics) ObserveRun(status string, result *optimization.OptimizationResult) {
	m.runs.WithLabelValues(status).Inc()
	if result == nil {
		return
	}

	m.iterations.Add(float64(result.Iterations))
	if result.BestSolution != nil {
		m.bestYield.Observe(result.BestSolution.Value)
	}
	abandoned := 0
	for _, h := range result.History {
		abandoned += h.Abandoned
	}
	m.abandoned.Add(float64(abandoned))
}
