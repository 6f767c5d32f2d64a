// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package config

import "strings"

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_reqs":       "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Database
	"duckdb_path":                     "database.path",
	"duckdb_max_memory":               "database.max_memory",
	"duckdb_threads":                  "database.threads",
	"duckdb_preserve_insertion_order": "database.preserve_insertion_order",
	"duckdb_skip_indexes":             "database.skip_indexes",
	"seed_model_configs":              "database.seed_model_configs",

	// Training
	"training_max_concurrent_jobs":    "training.max_concurrent_jobs",
	"training_job_timeout":            "training.job_timeout",
	"training_retain_versions":        "training.retain_versions",
	"training_log_lines":              "training.log_lines",
	"training_retain_finished":        "training.retain_finished",
	"training_max_orders":             "training.max_orders",
	"training_expected_collaborative": "training.expected_collaborative",
	"training_expected_content":       "training.expected_content",
	"training_expected_clustering":    "training.expected_clustering",
	"training_expected_reorder":       "training.expected_reorder",
	"training_breaker_failures":       "training.breaker_failures",
	"training_breaker_timeout":        "training.breaker_timeout",
	"training_scheduler_enabled":      "training.scheduler_enabled",

	// Artifact store
	"model_store_backend": "models.backend",
	"model_store_path":    "models.path",
	"model_warm_startup":  "models.warm_on_startup",

	// Serving
	"recommend_weight_collaborative":   "recommend.weight_collaborative",
	"recommend_weight_content":         "recommend.weight_content",
	"recommend_weight_trending":        "recommend.weight_trending",
	"recommend_new_account_age":        "recommend.new_account_age",
	"recommend_new_user_max_purchases": "recommend.new_user_max_purchases",
	"recommend_growing_max_purchases":  "recommend.growing_max_purchases",
	"recommend_trending_window":        "recommend.trending_window",
	"recommend_trending_half_life":     "recommend.trending_half_life",
	"recommend_default_n":              "recommend.default_n",
	"recommend_max_n":                  "recommend.max_n",
	"recommend_request_timeout":        "recommend.request_timeout",
	"recommend_cache_enabled":          "recommend.cache_enabled",
	"recommend_cache_ttl":              "recommend.cache_ttl",
	"recommend_cache_max_entries":      "recommend.cache_max_entries",
	"recommend_diversity_enabled":      "recommend.diversity_enabled",
	"recommend_diversity_lambda":       "recommend.diversity_lambda",

	// Frequently bought together
	"fbt_enabled":            "fbt.enabled",
	"fbt_min_support":        "fbt.min_support",
	"fbt_max_itemset_size":   "fbt.max_itemset_size",
	"fbt_min_confidence":     "fbt.min_confidence",
	"fbt_min_lift":           "fbt.min_lift",
	"fbt_min_transactions":   "fbt.min_transactions",
	"fbt_max_rules_per_item": "fbt.max_rules_per_item",
	"fbt_refresh_schedule":   "fbt.refresh_schedule",
	"fbt_train_on_startup":   "fbt.train_on_startup",
}

// envTransformFunc maps an environment variable to its koanf path.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
