// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package middleware provides the HTTP middleware shared by every route.
//
// All middleware has the chi signature func(http.Handler) http.Handler:
//
//   - RequestID: accepts or generates X-Request-ID and puts it in the
//     request context for logging.Ctx
//   - PrometheusMetrics: request counts, latency and in-flight gauge, labelled
//     by chi route pattern so path parameters do not explode cardinality
//   - SecurityHeaders: conservative headers for a JSON-only API
//
// Order matters: RequestID runs first so every later log line carries the id.
package middleware
