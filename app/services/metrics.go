package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider call metrics
var (
	providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_provider_calls_total",
			Help: "Provider API calls by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)

	providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_provider_call_duration_seconds",
			Help:    "Provider API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions by provider",
		},
		[]string{"provider", "state"},
	)

	fallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_purchase_fallback_attempts_total",
			Help: "Purchase attempts by provider rank position",
		},
		[]string{"rank"},
	)
)

// RecordFallbackAttempt counts a purchase attempt at the given fallback rank
func RecordFallbackAttempt(rank string) {
	fallbackAttempts.WithLabelValues(rank).Inc()
}
