// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets, // 0.005s, 0.01s, 0.025s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of API requests currently being processed",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// Training Metrics
	TrainingJobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_jobs_submitted_total",
			Help: "Training submissions by model type and outcome",
		},
		[]string{"model_type", "outcome"}, // accepted, duplicate, concurrency_limit, error
	)

	TrainingJobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_jobs_finished_total",
			Help: "Training jobs reaching a terminal state",
		},
		[]string{"model_type", "status"},
	)

	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Wall-clock duration of training jobs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"model_type"},
	)

	TrainingJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "training_jobs_active",
			Help: "Training jobs currently queued or running",
		},
	)

	// Model Version Metrics
	ModelActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_activations_total",
			Help: "Model version activations",
		},
		[]string{"model_type", "result"},
	)

	ModelVersionsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_versions_deleted_total",
			Help: "Model versions removed by cleanup or explicit delete",
		},
		[]string{"model_type", "reason"},
	)

	ModelCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "model_cache_entries",
			Help: "Active artifacts held in the model cache",
		},
	)

	// Serving Metrics
	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "Latency of hybrid recommendation requests",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)

	RecommendationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_fallbacks_total",
			Help: "Requests served from trending only",
		},
	)

	RecommendationSourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_source_errors_total",
			Help: "Candidate sources that failed and were skipped",
		},
		[]string{"source"},
	)

	RecommendationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_cache_hits_total",
			Help: "Recommendation responses served from cache",
		},
	)

	// FBT Metrics
	FBTLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fbt_lookups_total",
			Help: "Frequently-bought-together lookups",
		},
		[]string{"result"}, // hit, miss, not_trained
	)

	FBTRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fbt_rules",
			Help: "Association rules currently served",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordTrainingSubmission records the outcome of a Submit call.
func RecordTrainingSubmission(modelType, outcome string) {
	TrainingJobsSubmitted.WithLabelValues(modelType, outcome).Inc()
}

// RecordTrainingFinished records a job reaching a terminal status.
func RecordTrainingFinished(modelType, status string, duration time.Duration) {
	TrainingJobsFinished.WithLabelValues(modelType, status).Inc()
	if duration > 0 {
		TrainingDuration.WithLabelValues(modelType).Observe(duration.Seconds())
	}
}

// RecordActivation records a version activation attempt.
func RecordActivation(modelType string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ModelActivations.WithLabelValues(modelType, result).Inc()
}

// RecordVersionDeleted records a removed model version.
func RecordVersionDeleted(modelType, reason string) {
	ModelVersionsDeleted.WithLabelValues(modelType, reason).Inc()
}

// RecordRecommendation records one served request.
func RecordRecommendation(duration time.Duration, fallback, cacheHit bool) {
	RecommendationDuration.Observe(duration.Seconds())
	if fallback {
		RecommendationFallbacks.Inc()
	}
	if cacheHit {
		RecommendationCacheHits.Inc()
	}
}

// RecordSourceError records a candidate source that failed.
func RecordSourceError(source string) {
	RecommendationSourceErrors.WithLabelValues(source).Inc()
}

// RecordFBTLookup records an FBT lookup result.
func RecordFBTLookup(result string) {
	FBTLookups.WithLabelValues(result).Inc()
}
