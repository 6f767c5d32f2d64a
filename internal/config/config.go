// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Database  DatabaseConfig  `koanf:"database"`
	Training  TrainingConfig  `koanf:"training"`
	Models    ModelsConfig    `koanf:"models"`
	Recommend RecommendConfig `koanf:"recommend"`
	FBT       FBTConfig       `koanf:"fbt"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// Per-IP limit on training submissions.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = NumCPU
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
	SkipIndexes            bool   `koanf:"skip_indexes"` // faster test setup

	// SeedModelConfigs inserts one active manual config per model type
	// when the model_configs table is empty.
	SeedModelConfigs bool `koanf:"seed_model_configs"`
}

// TrainingConfig holds orchestrator settings.
type TrainingConfig struct {
	MaxConcurrentJobs int           `koanf:"max_concurrent_jobs"`
	JobTimeout        time.Duration `koanf:"job_timeout"`
	RetainVersions    int           `koanf:"retain_versions"`
	LogLines          int           `koanf:"log_lines"`
	RetainFinished    int           `koanf:"retain_finished"`

	// MaxOrders caps how many recent orders feed a dataset.
	MaxOrders int `koanf:"max_orders"`

	// Expected durations drive time-based progress estimates.
	ExpectedCollaborative time.Duration `koanf:"expected_collaborative"`
	ExpectedContent       time.Duration `koanf:"expected_content"`
	ExpectedClustering    time.Duration `koanf:"expected_clustering"`
	ExpectedReorder       time.Duration `koanf:"expected_reorder"`

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`

	// SchedulerEnabled submits periodic model configs on their cron spec.
	SchedulerEnabled bool `koanf:"scheduler_enabled"`
}

// ModelsConfig selects the artifact store.
type ModelsConfig struct {
	Backend string `koanf:"backend"` // file, badger or memory
	Path    string `koanf:"path"`

	// WarmOnStartup loads every active version into the model cache.
	WarmOnStartup bool `koanf:"warm_on_startup"`
}

// RecommendConfig holds serving settings.
type RecommendConfig struct {
	WeightCollaborative float64 `koanf:"weight_collaborative"`
	WeightContent       float64 `koanf:"weight_content"`
	WeightTrending      float64 `koanf:"weight_trending"`

	NewAccountAge       time.Duration `koanf:"new_account_age"`
	NewUserMaxPurchases int           `koanf:"new_user_max_purchases"`
	GrowingMaxPurchases int           `koanf:"growing_max_purchases"`

	TrendingWindow   time.Duration `koanf:"trending_window"`
	TrendingHalfLife time.Duration `koanf:"trending_half_life"`

	DefaultN       int           `koanf:"default_n"`
	MaxN           int           `koanf:"max_n"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	CacheEnabled    bool          `koanf:"cache_enabled"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries int           `koanf:"cache_max_entries"`

	// DiversityLambda trades blended score (1.0) against dissimilarity (0.0).
	DiversityEnabled bool    `koanf:"diversity_enabled"`
	DiversityLambda  float64 `koanf:"diversity_lambda"`
}

// FBTConfig holds association rule mining settings.
type FBTConfig struct {
	Enabled         bool    `koanf:"enabled"`
	MinSupport      float64 `koanf:"min_support"`
	MaxItemsetSize  int     `koanf:"max_itemset_size"`
	MinConfidence   float64 `koanf:"min_confidence"`
	MinLift         float64 `koanf:"min_lift"`
	MinTransactions int     `koanf:"min_transactions"`
	MaxRulesPerItem int     `koanf:"max_rules_per_item"`

	// RefreshSchedule is a cron spec; empty disables periodic refresh.
	RefreshSchedule string `koanf:"refresh_schedule"`
	TrainOnStartup  bool   `koanf:"train_on_startup"`
}
