// Package metrics provides Prometheus collectors for formsync.
//
// All collectors are registered on the default registry through promauto, so
// importing the package is enough to expose them from any /metrics handler
// the embedding service already serves.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	resp, err := client.Send(ctx, req)
//	metrics.ObserveProviderRequest("hubspot", "upsert_subscriber", resp.Status, timer.Stop())
//
// # Metric Types
//
// Counter: provider requests, pipeline runs, schema cache lookups, rate limit waits
// Histogram: provider request latency, pipeline step latency, rate limit delay
// Gauge: circuit breaker state
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequests counts outbound provider API calls.
	// Labels: provider, op, status (HTTP status or "transport_error")
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsync_provider_requests_total",
			Help: "Total number of provider API requests",
		},
		[]string{"provider", "op", "status"},
	)

	// ProviderRequestDuration tracks provider API latency in seconds.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formsync_provider_request_duration_seconds",
			Help:    "Provider API request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "op"},
	)

	// PipelineRuns counts submissions by final state.
	// Labels: provider, state (succeeded/partial/failed/dry_run)
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsync_pipeline_runs_total",
			Help: "Total number of submissions processed by the upsert pipeline",
		},
		[]string{"provider", "state"},
	)

	// PipelineStepDuration tracks how long each pipeline step takes.
	PipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formsync_pipeline_step_duration_seconds",
			Help:    "Pipeline step latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "step"},
	)

	// SchemaCacheLookups counts schema cache lookups.
	// Labels: provider, result (hit/miss/stale/refresh)
	SchemaCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsync_schema_cache_lookups_total",
			Help: "Schema cache lookups by result",
		},
		[]string{"provider", "result"},
	)

	// CircuitBreakerState exposes the breaker state per provider (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "formsync_circuit_breaker_state",
			Help: "Circuit breaker state per provider",
		},
		[]string{"provider"},
	)

	// RateLimitWaits counts requests passing the per-provider rate limiter.
	// Labels: provider, result (immediate, delayed, abandoned)
	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsync_rate_limit_waits_total",
			Help: "Requests paced by the per-provider rate limiter",
		},
		[]string{"provider", "result"},
	)

	// RateLimitDelay tracks how long requests were held by the rate limiter in seconds.
	RateLimitDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formsync_rate_limit_delay_seconds",
			Help:    "Time requests spent waiting for a rate limit token",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"provider"},
	)
)

// ObserveRateLimit records one pass through a rate limiter. A non-nil err
// means the caller gave up before a token was available.
func ObserveRateLimit(provider string, waited time.Duration, err error) {
	result := "immediate"
	switch {
	case err != nil:
		result = "abandoned"
	case waited > 0:
		result = "delayed"
	}
	RateLimitWaits.WithLabelValues(provider, result).Inc()
	if waited > 0 {
		RateLimitDelay.WithLabelValues(provider).Observe(waited.Seconds())
	}
}

// ObserveProviderRequest records one provider API call. A zero status means
// the request never produced a response.
func ObserveProviderRequest(provider, op string, status int, d time.Duration) {
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	ProviderRequests.WithLabelValues(provider, op, label).Inc()
	ProviderRequestDuration.WithLabelValues(provider, op).Observe(d.Seconds())
}

// Timer measures an operation's duration.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation.
// The timer can be stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
