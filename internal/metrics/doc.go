// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package metrics provides Prometheus metrics collection and export.

All collectors are registered with the default registry through promauto
and exposed at /metrics by the API router.

# Available Metrics

Training:
  - training_jobs_submitted_total{model_type, outcome}
  - training_jobs_finished_total{model_type, status}
  - training_duration_seconds{model_type}
  - training_jobs_active

Model versions:
  - model_activations_total{model_type, result}
  - model_versions_deleted_total{model_type, reason}
  - model_cache_entries

Serving:
  - recommendation_duration_seconds
  - recommendation_fallbacks_total
  - recommendation_source_errors_total{source}
  - recommendation_cache_hits_total
  - fbt_lookups_total{result}
  - fbt_rules

Infrastructure:
  - duckdb_query_duration_seconds, duckdb_query_errors_total
  - api_requests_total, api_request_duration_seconds, api_active_requests
  - circuit_breaker_state, circuit_breaker_requests_total,
    circuit_breaker_state_transitions_total

Callers use the Record* helpers rather than touching collectors directly.
*/
package metrics
