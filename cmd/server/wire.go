// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/api"
	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/database"
	"github.com/tomtom215/shelfwise/internal/logging"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
	"github.com/tomtom215/shelfwise/internal/recommend/fbt"
	"github.com/tomtom215/shelfwise/internal/recommend/loader"
	"github.com/tomtom215/shelfwise/internal/recommend/reranking"
	"github.com/tomtom215/shelfwise/internal/recommend/segments"
	"github.com/tomtom215/shelfwise/internal/recommend/storage"
	"github.com/tomtom215/shelfwise/internal/recommend/training"
	"github.com/tomtom215/shelfwise/internal/recommend/versions"
	"github.com/tomtom215/shelfwise/internal/supervisor"
	"github.com/tomtom215/shelfwise/internal/supervisor/services"
)

// app holds the wired components of a running server.
type app struct {
	cfg          *config.Config
	backend      storage.Backend
	orchestrator *training.Orchestrator
	scheduler    *services.ScheduleService
	server       *http.Server
	logger       zerolog.Logger
}

// buildApp wires storage, training and serving around db.
func buildApp(ctx context.Context, cfg *config.Config, db *database.DB) (*app, error) {
	logger := logging.Logger()

	backend, err := storage.OpenBackend(cfg.Models.Backend, cfg.Models.Path)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	blobs := storage.NewStore(backend)

	cache := versions.NewCache()
	store := versions.NewStore(db, blobs, cache, cfg.Training.RetainVersions, logger)
	if cfg.Models.WarmOnStartup {
		n, err := store.Warm(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("model cache warm-up incomplete")
		}
		logger.Info().Int("models", n).Msg("model cache warmed")
	}

	dataLoader := loader.New(db, loader.Config{
		MaxOrders:       cfg.Training.MaxOrders,
		BreakerFailures: cfg.Training.BreakerFailures,
		BreakerTimeout:  cfg.Training.BreakerTimeout,
	}, logger)

	segmentSvc := segments.NewService(cache, db, db, logger)

	orchestrator := training.New(training.Deps{
		Runs:      db,
		Configs:   db,
		Loader:    dataLoader,
		Publisher: store,
		Trainers:  algorithms.TrainerFor,
		Hooks:     []training.PublishHook{segmentSvc.OnPublish},
	}, trainingConfig(cfg), logger)

	engine, err := recommend.NewEngine(engineConfig(cfg), cache, logger)
	if err != nil {
		_ = backend.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("create recommendation engine: %w", err)
	}
	engine.SetDataProvider(db)
	if cfg.Recommend.DiversityEnabled {
		engine.SetReranker(reranking.NewMMR(cfg.Recommend.DiversityLambda, cache))
		logger.Info().Float64("lambda", cfg.Recommend.DiversityLambda).Msg("diversity reranking enabled")
	}
	cache.OnSwap(func(recommend.ModelType) { engine.InvalidateCache() })

	var rules *fbt.Service
	if cfg.FBT.Enabled {
		rules = fbt.NewService(db, blobs, fbtConfig(cfg), logger)
		if ok, err := rules.Load(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not restore association rules")
		} else if !ok {
			logger.Info().Msg("no persisted association rules, waiting for first mining pass")
		}
	}

	a := &app{
		cfg:          cfg,
		backend:      backend,
		orchestrator: orchestrator,
		logger:       logger,
	}

	if cfg.Training.SchedulerEnabled || (rules != nil && (cfg.FBT.RefreshSchedule != "" || cfg.FBT.TrainOnStartup)) {
		var configs services.PeriodicConfigSource
		if cfg.Training.SchedulerEnabled {
			configs = db
		}
		var miner services.RuleMiner
		schedCfg := services.ScheduleConfig{}
		if rules != nil {
			miner = rules
			schedCfg.FBTSchedule = cfg.FBT.RefreshSchedule
			schedCfg.FBTOnStartup = cfg.FBT.TrainOnStartup
		}
		a.scheduler = services.NewScheduleService(orchestrator, configs, miner, schedCfg, logger)
	}

	deps := api.Deps{
		Training:    orchestrator,
		Runs:        db,
		Recommender: engine,
		Versions:    store,
		Segments:    segmentSvc,
		Configs:     db,
		Health:      db,
		Models:      cache,
	}
	if rules != nil {
		deps.Rules = rules
	}

	a.server = &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(deps, api.Config{
			CORSOrigins:       cfg.Server.CORSOrigins,
			RateLimitReqs:     cfg.Server.RateLimitReqs,
			RateLimitWindow:   cfg.Server.RateLimitWindow,
			RateLimitDisabled: cfg.Server.RateLimitDisabled,
			RequestTimeout:    cfg.Server.Timeout,
		}),
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout + cfg.Server.Timeout/2,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
	return a, nil
}

// register adds every long-running service to the supervisor tree.
func (a *app) register(tree *supervisor.SupervisorTree) {
	tree.AddTrainingService(a.orchestrator)
	if a.scheduler != nil {
		tree.AddTrainingService(a.scheduler)
	}
	tree.AddAPIService(services.NewHTTPServerService(a.server, a.server.Addr, a.cfg.Server.ShutdownTimeout, a.logger))
}

func (a *app) close() {
	if err := a.backend.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Error closing artifact store")
	}
}

func trainingConfig(cfg *config.Config) training.Config {
	tc := training.DefaultConfig()
	tc.MaxConcurrentJobs = cfg.Training.MaxConcurrentJobs
	tc.JobTimeout = cfg.Training.JobTimeout
	if cfg.Training.LogLines > 0 {
		tc.LogLines = cfg.Training.LogLines
	}
	if cfg.Training.RetainFinished > 0 {
		tc.RetainFinished = cfg.Training.RetainFinished
	}
	for mt, d := range map[recommend.ModelType]time.Duration{
		recommend.ModelCollaborative: cfg.Training.ExpectedCollaborative,
		recommend.ModelContent:       cfg.Training.ExpectedContent,
		recommend.ModelClustering:    cfg.Training.ExpectedClustering,
		recommend.ModelReorder:       cfg.Training.ExpectedReorder,
	} {
		if d > 0 {
			tc.ExpectedDurations[mt] = d
		}
	}
	return tc
}

func engineConfig(cfg *config.Config) *recommend.Config {
	ec := recommend.DefaultConfig()
	rc := cfg.Recommend
	ec.Weights = recommend.Weights{
		Collaborative: rc.WeightCollaborative,
		Content:       rc.WeightContent,
		Trending:      rc.WeightTrending,
	}
	if rc.NewAccountAge > 0 {
		ec.Adaptive.NewAccountAge = rc.NewAccountAge
	}
	if rc.NewUserMaxPurchases > 0 {
		ec.Adaptive.NewUserMaxPurchases = rc.NewUserMaxPurchases
	}
	if rc.GrowingMaxPurchases > 0 {
		ec.Adaptive.GrowingMaxPurchases = rc.GrowingMaxPurchases
	}
	if rc.TrendingWindow > 0 {
		ec.Trending.Window = rc.TrendingWindow
	}
	if rc.TrendingHalfLife > 0 {
		ec.Trending.HalfLife = rc.TrendingHalfLife
	}
	if rc.DefaultN > 0 {
		ec.Limits.DefaultN = rc.DefaultN
	}
	if rc.MaxN > 0 {
		ec.Limits.MaxN = rc.MaxN
	}
	if rc.RequestTimeout > 0 {
		ec.Limits.RequestTimeout = rc.RequestTimeout
	}
	ec.Cache.Enabled = rc.CacheEnabled
	if rc.CacheTTL > 0 {
		ec.Cache.TTL = rc.CacheTTL
	}
	if rc.CacheMaxEntries > 0 {
		ec.Cache.MaxEntries = rc.CacheMaxEntries
	}
	return ec
}

func fbtConfig(cfg *config.Config) algorithms.FBTConfig {
	fc := algorithms.DefaultFBTConfig()
	c := cfg.FBT
	if c.MinSupport > 0 {
		fc.MinSupport = c.MinSupport
	}
	if c.MaxItemsetSize > 0 {
		fc.MaxItemsetSize = c.MaxItemsetSize
	}
	if c.MinConfidence > 0 {
		fc.MinConfidence = c.MinConfidence
	}
	if c.MinLift > 0 {
		fc.MinLift = c.MinLift
	}
	if c.MinTransactions > 0 {
		fc.MinTransactions = c.MinTransactions
	}
	if c.MaxRulesPerItem > 0 {
		fc.MaxRulesPerItem = c.MaxRulesPerItem
	}
	return fc
}
