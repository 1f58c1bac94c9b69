// Package metrics provides Prometheus instrumentation for providers, the
// weather cache and the market jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequests counts upstream weather calls by provider, operation and outcome.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_provider_requests_total",
		Help: "Weather provider calls by provider, operation and outcome",
	}, []string{"provider", "op", "outcome"})

	// ProviderLatency tracks upstream weather call latency.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weather_provider_latency_seconds",
		Help:    "Weather provider call latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider", "op"})

	// CacheLookups counts cache hits and misses per operation kind.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_cache_lookups_total",
		Help: "Weather cache lookups by kind and result",
	}, []string{"kind", "result"})

	// FallbackExhausted counts calls where every provider failed.
	FallbackExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_fallback_exhausted_total",
		Help: "Calls where every provider in the fallback stack failed",
	}, []string{"op"})

	// MarketsCreated counts market creation outcomes.
	MarketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_markets_created_total",
		Help: "Market creation attempts by outcome",
	}, []string{"outcome"})

	// MarketsSettled counts settlement outcomes.
	MarketsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_markets_settled_total",
		Help: "Market settlement attempts by outcome",
	}, []string{"outcome"})

	// Transactions counts contract writes by method and outcome.
	Transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_contract_transactions_total",
		Help: "Contract transactions by method and outcome",
	}, []string{"method", "outcome"})
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
)

// OutcomeOf maps an error to a success/error label.
func OutcomeOf(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
