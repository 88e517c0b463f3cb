// Package metrics defines the Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PlansGenerated counts plans produced, labeled by domain.
	PlansGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinker_plans_generated_total",
		Help: "Plans generated, by domain.",
	}, []string{"domain"})

	// PlanRefinements counts refinement rounds.
	PlanRefinements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thinker_plan_refinements_total",
		Help: "Plan refinement rounds.",
	})

	// Executions counts pipeline runs by final outcome.
	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinker_executions_total",
		Help: "Pipeline executions, by outcome.",
	}, []string{"outcome"})

	// LoopIterations observes how many iterations each execution loop used.
	LoopIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "thinker_loop_iterations",
		Help:    "Iterations used per execution loop.",
		Buckets: prometheus.LinearBuckets(1, 2, 12),
	})

	// EventsEmitted counts pipeline events by agent and kind.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinker_events_emitted_total",
		Help: "Pipeline events emitted, by agent and kind.",
	}, []string{"agent", "kind"})

	// LLMCallDuration observes LLM call latency by capability.
	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thinker_llm_call_duration_seconds",
		Help:    "LLM call duration, by capability.",
		Buckets: prometheus.DefBuckets,
	}, []string{"capability"})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
