// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package loader assembles training datasets from the catalog store.
//
// Reads go through a circuit breaker. When the store is unreachable or the
// breaker is open, Load fails with recommend.ErrInsufficientData so the
// training run fails cleanly instead of waiting on a dead dependency.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// Source is the read side of the catalog store.
type Source interface {
	// FulfilledInteractions returns purchase lines of non-cancelled orders
	// from the newest maxOrders orders, oldest first. maxOrders <= 0 means all.
	FulfilledInteractions(ctx context.Context, maxOrders int) ([]recommend.InteractionRecord, error)

	// Products returns the catalog.
	Products(ctx context.Context) ([]recommend.Product, error)

	// Users returns every registered user.
	Users(ctx context.Context) ([]recommend.User, error)
}

// DefaultMaxOrders is the recent-order window used when none is configured.
const DefaultMaxOrders = 50000

// Config bounds dataset loading.
type Config struct {
	// MaxOrders caps how many recent orders feed a dataset.
	MaxOrders int

	// BreakerName labels circuit breaker metrics.
	BreakerName string

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration

	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{
		MaxOrders:       DefaultMaxOrders,
		BreakerName:     "catalog-store",
		BreakerTimeout:  time.Minute,
		BreakerFailures: 3,
	}
}

// Loader builds recommend.Dataset values for training.
type Loader struct {
	source Source
	cfg    Config
	cb     *gobreaker.CircuitBreaker[*recommend.Dataset]
	logger zerolog.Logger
	now    func() time.Time
}

// New wraps a source with a circuit breaker.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(source Source, cfg Config, logger zerolog.Logger) *Loader {
	if cfg.MaxOrders <= 0 {
		cfg.MaxOrders = DefaultMaxOrders
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = DefaultConfig().BreakerName
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultConfig().BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultConfig().BreakerTimeout
	}

	l := &Loader{
		source: source,
		cfg:    cfg,
		logger: logger.With().Str("component", "loader").Logger(),
		now:    time.Now,
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.BreakerName).Set(0) // 0 = closed
	l.cb = gobreaker.NewCircuitBreaker[*recommend.Dataset](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A cancelled training job says nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Info().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return l
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Load assembles the dataset a model type trains on. Products are read only
// for content models and RFM features are built only for clustering.
//
// An empty store yields an empty dataset; trainers decide whether that is
// enough. Store failures and an open breaker yield ErrInsufficientData.
func (l *Loader) Load(ctx context.Context, modelType recommend.ModelType) (*recommend.Dataset, error) {
	ds, err := l.cb.Execute(func() (*recommend.Dataset, error) {
		return l.load(ctx, modelType)
	})

	name := l.cfg.BreakerName
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
		return ds, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		l.logger.Warn().Err(err).Msg("catalog read rejected by circuit breaker")
		return nil, fmt.Errorf("%w: catalog store unavailable: %w", recommend.ErrInsufficientData, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(l.cb.Counts().ConsecutiveFailures))
		return nil, fmt.Errorf("%w: catalog store unreachable: %w", recommend.ErrInsufficientData, err)
	}
}

func (l *Loader) load(ctx context.Context, modelType recommend.ModelType) (*recommend.Dataset, error) {
	start := l.now()

	interactions, err := l.source.FulfilledInteractions(ctx, l.cfg.MaxOrders)
	if err != nil {
		return nil, fmt.Errorf("read interactions: %w", err)
	}

	ds := &recommend.Dataset{
		Interactions:  interactions,
		ReferenceTime: ReferenceTime(interactions, l.now()),
	}

	switch modelType {
	case recommend.ModelContent:
		if ds.Products, err = l.source.Products(ctx); err != nil {
			return nil, fmt.Errorf("read products: %w", err)
		}
	case recommend.ModelClustering:
		if ds.Users, err = l.source.Users(ctx); err != nil {
			return nil, fmt.Errorf("read users: %w", err)
		}
		ds.RFM = BuildRFM(interactions, ds.ReferenceTime)
	case recommend.ModelCollaborative, recommend.ModelReorder:
	}

	l.logger.Debug().
		Str("model_type", modelType.String()).
		Int("interactions", len(ds.Interactions)).
		Int("products", len(ds.Products)).
		Int("rfm_users", len(ds.RFM)).
		Dur("elapsed", l.now().Sub(start)).
		Msg("dataset loaded")
	return ds, nil
}

// ReferenceTime is the latest interaction timestamp, or fallback when
// there are no interactions.
func ReferenceTime(interactions []recommend.InteractionRecord, fallback time.Time) time.Time {
	var ref time.Time
	for i := range interactions {
		if interactions[i].Timestamp.After(ref) {
			ref = interactions[i].Timestamp
		}
	}
	if ref.IsZero() {
		return fallback
	}
	return ref
}
