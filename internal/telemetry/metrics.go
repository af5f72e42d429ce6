package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the proxy hot path. Route label cardinality is
// bounded by the route catalog, which is fixed at startup.
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm_router",
		Name:      "requests_total",
		Help:      "Chat completion requests handled, by HTTP status.",
	}, []string{"status"})

	RoutingDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm_router",
		Name:      "routing_decisions_total",
		Help:      "Routing decisions made, by selected route ('none' when no preference).",
	}, []string{"route"})

	RoutingFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "llm_router",
		Name:      "routing_failures_total",
		Help:      "Routing attempts that failed at the outbound call or parse stage.",
	})

	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "llm_router",
		Name:      "request_duration_seconds",
		Help:      "End-to-end request latency, excluding streamed body relay.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)
