// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package main

import (
	"testing"
	"time"

	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
	"github.com/tomtom215/shelfwise/internal/recommend/training"
)

func TestTrainingConfig(t *testing.T) {
	cfg := &config.Config{Training: config.TrainingConfig{
		MaxConcurrentJobs: 2,
		JobTimeout:        20 * time.Minute,
		ExpectedContent:   time.Minute,
	}}
	got := trainingConfig(cfg)
	if got.MaxConcurrentJobs != 2 || got.JobTimeout != 20*time.Minute {
		t.Errorf("trainingConfig() = %+v", got)
	}
	def := training.DefaultConfig()
	if got.ExpectedDurations[recommend.ModelContent] != time.Minute {
		t.Errorf("content expected = %v, want 1m", got.ExpectedDurations[recommend.ModelContent])
	}
	if got.ExpectedDurations[recommend.ModelReorder] != def.ExpectedDurations[recommend.ModelReorder] {
		t.Error("unset expected duration should keep the default")
	}
	if got.LogLines != def.LogLines {
		t.Errorf("LogLines = %d, want default %d", got.LogLines, def.LogLines)
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := &config.Config{Recommend: config.RecommendConfig{
		WeightCollaborative: 0.6,
		WeightContent:       0.3,
		WeightTrending:      0.1,
		MaxN:                50,
		CacheEnabled:        false,
	}}
	got := engineConfig(cfg)
	if got.Weights != (recommend.Weights{Collaborative: 0.6, Content: 0.3, Trending: 0.1}) {
		t.Errorf("Weights = %+v", got.Weights)
	}
	if got.Limits.MaxN != 50 || got.Limits.DefaultN != recommend.DefaultConfig().Limits.DefaultN {
		t.Errorf("Limits = %+v", got.Limits)
	}
	if got.Cache.Enabled {
		t.Error("cache should follow config")
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestFBTConfig(t *testing.T) {
	got := fbtConfig(&config.Config{FBT: config.FBTConfig{MinSupport: 0.05, MaxRulesPerItem: 3}})
	def := algorithms.DefaultFBTConfig()
	if got.MinSupport != 0.05 || got.MaxRulesPerItem != 3 {
		t.Errorf("fbtConfig() = %+v", got)
	}
	if got.MinConfidence != def.MinConfidence || got.MinTransactions != def.MinTransactions {
		t.Errorf("unset fields should keep defaults: %+v", got)
	}
}
