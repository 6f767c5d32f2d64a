// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"fmt"
	"math"
	"time"
)

// Config contains all configuration for the hybrid serving engine.
type Config struct {
	// Weights is the default blend when a request does not override it.
	// Weights are normalized at runtime, so they don't need to sum to 1.0.
	Weights Weights `json:"weights"`

	// Adaptive selects weights from a user's purchase history.
	Adaptive AdaptivePolicy `json:"adaptive"`

	// Trending controls the always-available popularity source.
	Trending TrendingConfig `json:"trending"`

	// Limits contains operational limits.
	Limits LimitsConfig `json:"limits"`

	// Cache contains response caching parameters.
	Cache CacheConfig `json:"cache"`
}

// Weights defines the relative contribution of each candidate source.
type Weights struct {
	Collaborative float64 `json:"collaborative"`
	Content       float64 `json:"content"`
	Trending      float64 `json:"trending"`
}

// Normalize returns a copy with weights normalized to sum to 1.0.
// Negative weights count as zero. All-zero weights become equal thirds.
func (w Weights) Normalize() Weights {
	c := clampNonNegative(w.Collaborative)
	n := clampNonNegative(w.Content)
	t := clampNonNegative(w.Trending)

	sum := c + n + t
	if math.IsInf(sum, 1) {
		// Finite weights can still overflow when added.
		m := max(c, n, t)
		c, n, t = c/m, n/m, t/m
		sum = c + n + t
	}
	if sum == 0 {
		const equalWeight = 1.0 / 3.0
		return Weights{Collaborative: equalWeight, Content: equalWeight, Trending: equalWeight}
	}

	return Weights{
		Collaborative: c / sum,
		Content:       n / sum,
		Trending:      t / sum,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Collaborative + w.Content + w.Trending
}

// clampNonNegative maps negative and non-finite weights to zero.
func clampNonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// AdaptivePolicy maps purchase history to a weight triple.
type AdaptivePolicy struct {
	// NewAccountAge marks accounts younger than this as new.
	NewAccountAge time.Duration `json:"new_account_age"`

	// NewUserMaxPurchases marks users with fewer purchases as new.
	NewUserMaxPurchases int `json:"new_user_max_purchases"`

	// GrowingMaxPurchases marks users with fewer purchases as growing.
	GrowingMaxPurchases int `json:"growing_max_purchases"`

	NewUser     Weights `json:"new_user"`
	Growing     Weights `json:"growing"`
	Established Weights `json:"established"`
}

// Tier names returned in response metadata.
const (
	TierNew         = "new"
	TierGrowing     = "growing"
	TierEstablished = "established"
)

// Select returns the weights and tier name for a user profile at time now.
func (p AdaptivePolicy) Select(profile *UserProfile, now time.Time) (Weights, string) {
	if profile == nil || !profile.Known {
		return p.NewUser, TierNew
	}
	young := !profile.CreatedAt.IsZero() && now.Sub(profile.CreatedAt) < p.NewAccountAge
	switch {
	case young || profile.PurchaseCount < p.NewUserMaxPurchases:
		return p.NewUser, TierNew
	case profile.PurchaseCount < p.GrowingMaxPurchases:
		return p.Growing, TierGrowing
	default:
		return p.Established, TierEstablished
	}
}

// TrendingConfig controls the recency-weighted popularity source.
type TrendingConfig struct {
	// Window bounds how far back order volume is counted.
	Window time.Duration `json:"window"`

	// HalfLife is the decay half-life applied to order age.
	HalfLife time.Duration `json:"half_life"`
}

// LimitsConfig contains operational limits.
type LimitsConfig struct {
	// DefaultN is used when a request omits N.
	DefaultN int `json:"default_n"`

	// MaxN caps request N.
	MaxN int `json:"max_n"`

	// CandidateMultiplier sizes each source's pool relative to N.
	CandidateMultiplier int `json:"candidate_multiplier"`

	// MaxCandidates caps each source's pool.
	MaxCandidates int `json:"max_candidates"`

	// RecentPurchases is how many recent purchases seed content similarity.
	RecentPurchases int `json:"recent_purchases"`

	// RequestTimeout bounds a single Recommend call's data lookups.
	RequestTimeout time.Duration `json:"request_timeout"`
}

// CacheConfig contains response caching parameters.
type CacheConfig struct {
	// Enabled turns on the response cache.
	Enabled bool `json:"enabled"`

	// TTL is how long a cached response is served.
	TTL time.Duration `json:"ttl"`

	// MaxEntries bounds the cache; it is cleared when full.
	MaxEntries int `json:"max_entries"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{Collaborative: 0.5, Content: 0.3, Trending: 0.2},
		Adaptive: AdaptivePolicy{
			NewAccountAge:       30 * 24 * time.Hour,
			NewUserMaxPurchases: 3,
			GrowingMaxPurchases: 10,
			NewUser:             Weights{Collaborative: 0.2, Content: 0.3, Trending: 0.5},
			Growing:             Weights{Collaborative: 0.3, Content: 0.5, Trending: 0.2},
			Established:         Weights{Collaborative: 0.6, Content: 0.3, Trending: 0.1},
		},
		Trending: TrendingConfig{
			Window:   30 * 24 * time.Hour,
			HalfLife: 7 * 24 * time.Hour,
		},
		Limits: LimitsConfig{
			DefaultN:            10,
			MaxN:                100,
			CandidateMultiplier: 5,
			MaxCandidates:       500,
			RecentPurchases:     5,
			RequestTimeout:      2 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	for name, w := range map[string]Weights{
		"weights":              c.Weights,
		"adaptive.new_user":    c.Adaptive.NewUser,
		"adaptive.growing":     c.Adaptive.Growing,
		"adaptive.established": c.Adaptive.Established,
	} {
		if w.Collaborative < 0 || w.Content < 0 || w.Trending < 0 {
			return fmt.Errorf("%s must be non-negative, got %+v", name, w)
		}
	}

	if c.Adaptive.NewUserMaxPurchases < 0 {
		return fmt.Errorf("adaptive.new_user_max_purchases must be non-negative, got %d", c.Adaptive.NewUserMaxPurchases)
	}
	if c.Adaptive.GrowingMaxPurchases < c.Adaptive.NewUserMaxPurchases {
		return fmt.Errorf("adaptive.growing_max_purchases must be >= adaptive.new_user_max_purchases, got %d < %d",
			c.Adaptive.GrowingMaxPurchases, c.Adaptive.NewUserMaxPurchases)
	}

	if c.Trending.Window <= 0 {
		return fmt.Errorf("trending.window must be positive, got %v", c.Trending.Window)
	}
	if c.Trending.HalfLife <= 0 {
		return fmt.Errorf("trending.half_life must be positive, got %v", c.Trending.HalfLife)
	}

	if c.Limits.DefaultN < 1 {
		return fmt.Errorf("limits.default_n must be positive, got %d", c.Limits.DefaultN)
	}
	if c.Limits.MaxN < c.Limits.DefaultN {
		return fmt.Errorf("limits.max_n must be >= limits.default_n, got %d < %d", c.Limits.MaxN, c.Limits.DefaultN)
	}
	if c.Limits.CandidateMultiplier < 1 {
		return fmt.Errorf("limits.candidate_multiplier must be positive, got %d", c.Limits.CandidateMultiplier)
	}
	if c.Limits.MaxCandidates < 1 {
		return fmt.Errorf("limits.max_candidates must be positive, got %d", c.Limits.MaxCandidates)
	}
	if c.Limits.RequestTimeout <= 0 {
		return fmt.Errorf("limits.request_timeout must be positive, got %v", c.Limits.RequestTimeout)
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when cache is enabled, got %v", c.Cache.TTL)
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
