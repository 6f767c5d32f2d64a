// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/fbt"
)

// Submitter enqueues training runs. training.Orchestrator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, modelType recommend.ModelType, hp recommend.Hyperparameters) (*recommend.TrainingRun, error)
}

// PeriodicConfigSource lists the active configs trained on a schedule.
type PeriodicConfigSource interface {
	PeriodicConfigs(ctx context.Context) ([]*recommend.ModelConfig, error)
}

// RuleMiner refreshes association rules. fbt.Service satisfies it.
type RuleMiner interface {
	Train(ctx context.Context) (*fbt.Stats, error)
}

// ScheduleConfig controls the schedule service.
type ScheduleConfig struct {
	// FBTSchedule is a standard cron expression for rule mining.
	// Empty disables scheduled mining.
	FBTSchedule string

	// FBTOnStartup mines rules once when the service starts.
	FBTOnStartup bool

	// FBTTimeout bounds a single mining pass. Default: 30m
	FBTTimeout time.Duration

	// ReloadInterval is how often periodic configs are re-read. Default: 5m
	ReloadInterval time.Duration
}

// ScheduleService submits periodic training runs and refreshes FBT rules
// on cron schedules. Config changes are picked up on the next reload.
type ScheduleService struct {
	submitter Submitter
	configs   PeriodicConfigSource
	miner     RuleMiner
	cfg       ScheduleConfig
	logger    zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // config id + spec
}

// NewScheduleService creates a ScheduleService. configs or miner may be nil.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewScheduleService(submitter Submitter, configs PeriodicConfigSource, miner RuleMiner, cfg ScheduleConfig, logger zerolog.Logger) *ScheduleService {
	if cfg.FBTTimeout <= 0 {
		cfg.FBTTimeout = 30 * time.Minute
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = 5 * time.Minute
	}
	return &ScheduleService{
		submitter: submitter,
		configs:   configs,
		miner:     miner,
		cfg:       cfg,
		logger:    logger.With().Str("service", "scheduler").Logger(),
		entries:   make(map[string]cron.EntryID),
	}
}

// Serve implements suture.Service. Each call starts a fresh cron instance so
// a restart never leaves duplicate entries behind.
func (s *ScheduleService) Serve(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))

	s.mu.Lock()
	s.cron = c
	s.entries = make(map[string]cron.EntryID)
	s.mu.Unlock()

	if s.miner != nil && s.cfg.FBTSchedule != "" {
		if _, err := c.AddFunc(s.cfg.FBTSchedule, func() { s.mineRules(ctx) }); err != nil {
			return fmt.Errorf("schedule fbt refresh %q: %w", s.cfg.FBTSchedule, err)
		}
	}
	if err := s.reconcile(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to load periodic configs")
	}

	c.Start()
	s.logger.Info().Int("entries", len(c.Entries())).Msg("scheduler started")

	if s.miner != nil && s.cfg.FBTOnStartup {
		s.mineRules(ctx)
	}

	ticker := time.NewTicker(s.cfg.ReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.reconcile(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("failed to reload periodic configs")
			}
		}
	}
}

// reconcile adds entries for new periodic configs and removes entries whose
// config is gone, inactive or rescheduled.
func (s *ScheduleService) reconcile(ctx context.Context) error {
	if s.configs == nil {
		return nil
	}
	configs, err := s.configs.PeriodicConfigs(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]*recommend.ModelConfig, len(configs))
	for _, cfg := range configs {
		wanted[cfg.ID+"|"+cfg.ScheduleSpec] = cfg
	}

	for key, id := range s.entries {
		if _, ok := wanted[key]; !ok {
			s.cron.Remove(id)
			delete(s.entries, key)
		}
	}

	for key, cfg := range wanted {
		if _, ok := s.entries[key]; ok {
			continue
		}
		schedule, err := cron.ParseStandard(cfg.ScheduleSpec)
		if err != nil {
			s.logger.Warn().Err(err).Str("config_id", cfg.ID).Str("spec", cfg.ScheduleSpec).Msg("invalid training schedule")
			continue
		}
		mt := cfg.ModelType
		s.entries[key] = s.cron.Schedule(schedule, cron.FuncJob(func() { s.submit(ctx, mt) }))
		s.logger.Debug().Str("config_id", cfg.ID).Str("model_type", mt.String()).Str("spec", cfg.ScheduleSpec).Msg("training scheduled")
	}
	return nil
}

// submit enqueues one scheduled run. A run already in flight or a full
// queue skips this tick.
func (s *ScheduleService) submit(ctx context.Context, mt recommend.ModelType) {
	run, err := s.submitter.Submit(ctx, mt, nil)
	switch {
	case err == nil:
		s.logger.Info().Str("model_type", mt.String()).Str("run_id", run.ID).Msg("scheduled training submitted")
	case errors.Is(err, recommend.ErrDuplicateJob), errors.Is(err, recommend.ErrConcurrencyLimit):
		s.logger.Info().Err(err).Str("model_type", mt.String()).Msg("scheduled training skipped")
	default:
		s.logger.Error().Err(err).Str("model_type", mt.String()).Msg("scheduled training submission failed")
	}
}

func (s *ScheduleService) mineRules(ctx context.Context) {
	mineCtx, cancel := context.WithTimeout(ctx, s.cfg.FBTTimeout)
	defer cancel()
	if _, err := s.miner.Train(mineCtx); err != nil {
		s.logger.Warn().Err(err).Msg("association rule refresh failed, previous rules kept")
	}
}

// String implements fmt.Stringer for suture event logs.
func (s *ScheduleService) String() string {
	return "scheduler"
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
