package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	reviewStageSeconds   *prometheus.HistogramVec
	reviewRunsTotal      *prometheus.CounterVec
	reviewMalformedTotal prometheus.Counter
)

// Pipeline stage labels for the review duration histogram.
const (
	StageCollect  = "collect"
	StagePrompt   = "prompt"
	StageGenerate = "generate"
	StageParse    = "parse"
	StagePersist  = "persist"
)

// Review run outcome labels.
const (
	OutcomeCompleted    = "completed"
	OutcomeFailed       = "failed"
	OutcomeShortCircuit = "short_circuit"
)

// RegisterMetrics initialises the Prometheus collectors used by the API and
// the review pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		reviewStageSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "review_stage_duration_seconds",
			Help:    "Duration of each review pipeline stage.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 120.0},
		}, []string{"stage"})

		reviewRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_runs_total",
			Help: "Review pipeline runs by outcome.",
		}, []string{"outcome"})

		reviewMalformedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_malformed_replies_total",
			Help: "Generator replies that did not conform to the output schema.",
		})

		prometheus.MustRegister(apiRequestsTotal, apiLatencySeconds, reviewStageSeconds, reviewRunsTotal, reviewMalformedTotal)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// ReviewStageDuration exposes the review pipeline stage histogram.
func ReviewStageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return reviewStageSeconds
}

// ReviewRuns exposes the counter for review run outcomes.
func ReviewRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewRunsTotal
}

// ReviewMalformedReplies exposes the counter for non-conformant replies.
func ReviewMalformedReplies() prometheus.Counter {
	RegisterMetrics()
	return reviewMalformedTotal
}
