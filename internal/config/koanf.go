// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shelfwise/config.yaml",
	"/etc/shelfwise/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8470,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   10,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:                   "/data/shelfwise.duckdb",
			MaxMemory:              "1GB",
			PreserveInsertionOrder: true,
			SeedModelConfigs:       true,
		},
		Training: TrainingConfig{
			MaxConcurrentJobs:     2,
			JobTimeout:            time.Hour,
			MaxOrders:             50000,
			RetainVersions:        3,
			LogLines:              200,
			RetainFinished:        100,
			ExpectedCollaborative: 10 * time.Minute,
			ExpectedContent:       5 * time.Minute,
			ExpectedClustering:    5 * time.Minute,
			ExpectedReorder:       15 * time.Minute,
			BreakerFailures:       3,
			BreakerTimeout:        time.Minute,
			SchedulerEnabled:      true,
		},
		Models: ModelsConfig{
			Backend:       "file",
			Path:          "/data/models",
			WarmOnStartup: true,
		},
		Recommend: RecommendConfig{
			WeightCollaborative: 0.5,
			WeightContent:       0.3,
			WeightTrending:      0.2,
			NewAccountAge:       30 * 24 * time.Hour,
			NewUserMaxPurchases: 3,
			GrowingMaxPurchases: 10,
			TrendingWindow:      30 * 24 * time.Hour,
			TrendingHalfLife:    7 * 24 * time.Hour,
			DefaultN:            10,
			MaxN:                100,
			RequestTimeout:      2 * time.Second,
			CacheEnabled:        true,
			CacheTTL:            5 * time.Minute,
			CacheMaxEntries:     10000,
			DiversityLambda:     0.7,
		},
		FBT: FBTConfig{
			Enabled:         true,
			MinSupport:      0.01,
			MaxItemsetSize:  3,
			MinConfidence:   0.1,
			MinLift:         1.0,
			MinTransactions: 10,
			MaxRulesPerItem: 20,
			RefreshSchedule: "@daily",
			TrainOnStartup:  false,
		},
	}
}

// LoadWithKoanf loads defaults, then the config file if one exists, then
// environment variables, and validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
