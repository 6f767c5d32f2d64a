// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true,
	"error": true, "fatal": true, "panic": true, "disabled": true,
}

var validBackends = map[string]bool{"file": true, "badger": true, "memory": true}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	if err := c.validateModels(); err != nil {
		return err
	}
	if err := c.validateRecommend(); err != nil {
		return err
	}
	return c.validateFBT()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQS must be positive, got %d", c.Server.RateLimitReqs)
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", c.Server.RateLimitWindow)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be non-negative, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateTraining() error {
	t := c.Training
	if t.MaxConcurrentJobs < 1 {
		return fmt.Errorf("TRAINING_MAX_CONCURRENT_JOBS must be at least 1, got %d", t.MaxConcurrentJobs)
	}
	if t.JobTimeout <= 0 {
		return fmt.Errorf("TRAINING_JOB_TIMEOUT must be positive, got %v", t.JobTimeout)
	}
	if t.RetainVersions < 1 {
		return fmt.Errorf("TRAINING_RETAIN_VERSIONS must be at least 1, got %d", t.RetainVersions)
	}
	if t.MaxOrders < 1 {
		return fmt.Errorf("TRAINING_MAX_ORDERS must be at least 1, got %d", t.MaxOrders)
	}
	return nil
}

func (c *Config) validateModels() error {
	if !validBackends[c.Models.Backend] {
		return fmt.Errorf("MODEL_STORE_BACKEND must be file, badger or memory, got %q", c.Models.Backend)
	}
	if c.Models.Backend != "memory" && c.Models.Path == "" {
		return fmt.Errorf("MODEL_STORE_PATH is required for the %s backend", c.Models.Backend)
	}
	return nil
}

func (c *Config) validateRecommend() error {
	r := c.Recommend
	if r.WeightCollaborative < 0 || r.WeightContent < 0 || r.WeightTrending < 0 {
		return fmt.Errorf("recommendation weights must be non-negative")
	}
	if r.GrowingMaxPurchases < r.NewUserMaxPurchases {
		return fmt.Errorf("RECOMMEND_GROWING_MAX_PURCHASES (%d) must be >= RECOMMEND_NEW_USER_MAX_PURCHASES (%d)",
			r.GrowingMaxPurchases, r.NewUserMaxPurchases)
	}
	if r.TrendingWindow <= 0 || r.TrendingHalfLife <= 0 {
		return fmt.Errorf("RECOMMEND_TRENDING_WINDOW and RECOMMEND_TRENDING_HALF_LIFE must be positive")
	}
	if r.DefaultN < 1 || r.MaxN < r.DefaultN {
		return fmt.Errorf("RECOMMEND_DEFAULT_N must be positive and <= RECOMMEND_MAX_N, got %d and %d", r.DefaultN, r.MaxN)
	}
	if r.DiversityEnabled && (r.DiversityLambda < 0 || r.DiversityLambda > 1) {
		return fmt.Errorf("RECOMMEND_DIVERSITY_LAMBDA must be in [0, 1], got %g", r.DiversityLambda)
	}
	return nil
}

func (c *Config) validateFBT() error {
	f := c.FBT
	if !f.Enabled {
		return nil
	}
	if f.MinSupport <= 0 || f.MinSupport > 1 {
		return fmt.Errorf("FBT_MIN_SUPPORT must be in (0, 1], got %g", f.MinSupport)
	}
	if f.MaxItemsetSize < 2 {
		return fmt.Errorf("FBT_MAX_ITEMSET_SIZE must be at least 2, got %d", f.MaxItemsetSize)
	}
	if f.MinConfidence < 0 || f.MinConfidence > 1 {
		return fmt.Errorf("FBT_MIN_CONFIDENCE must be in [0, 1], got %g", f.MinConfidence)
	}
	if f.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(f.RefreshSchedule); err != nil {
			return fmt.Errorf("FBT_REFRESH_SCHEDULE is invalid: %w", err)
		}
	}
	return nil
}
