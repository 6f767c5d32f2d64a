// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package versions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/storage"
)

// DefaultRetainVersions is how many versions Cleanup keeps per config.
const DefaultRetainVersions = 3

// Store owns the version lifecycle: publish, activate, cleanup and delete.
type Store struct {
	repo   Repository
	blobs  *storage.Store
	cache  *Cache
	retain int
	logger zerolog.Logger
	now    func() time.Time

	// mu serializes activation, deletion and cleanup.
	mu sync.Mutex

	// publishMu serializes version number allocation.
	publishMu sync.Mutex
}

// NewStore wires a repository, blob store and cache.
// retain below 1 selects DefaultRetainVersions.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(repo Repository, blobs *storage.Store, cache *Cache, retain int, logger zerolog.Logger) *Store {
	if retain < 1 {
		retain = DefaultRetainVersions
	}
	return &Store{
		repo:   repo,
		blobs:  blobs,
		cache:  cache,
		retain: retain,
		logger: logger.With().Str("component", "versions").Logger(),
		now:    time.Now,
	}
}

// Cache returns the model cache the store refreshes.
func (s *Store) Cache() *Cache {
	return s.cache
}

// Publish persists an artifact as the config's next version. The new
// version starts inactive.
func (s *Store) Publish(ctx context.Context, cfg *recommend.ModelConfig, runID string, art recommend.Artifact, perf map[string]float64) (*recommend.ModelVersion, error) {
	if cfg == nil || art == nil {
		return nil, errors.New("publish: config and artifact are required")
	}
	if art.ModelType() != cfg.ModelType {
		return nil, fmt.Errorf("publish: artifact is %s, config is %s", art.ModelType(), cfg.ModelType)
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	number, err := s.repo.NextVersionNumber(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("allocate version number: %w", err)
	}

	key := storage.ArtifactKey(cfg.ModelType, cfg.ID, number)
	meta, err := s.blobs.SaveArtifact(ctx, key, art)
	if err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}

	v := &recommend.ModelVersion{
		ID:                 uuid.NewString(),
		ModelConfigID:      cfg.ID,
		ModelType:          cfg.ModelType,
		TrainingRunID:      runID,
		VersionNumber:      number,
		ArtifactLocation:   s.blobs.Location(key),
		ArtifactSize:       meta.SizeBytes,
		Checksum:           meta.Checksum,
		PerformanceMetrics: perf,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.repo.Create(ctx, v); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", key).Msg("failed to remove orphaned artifact")
		}
		return nil, fmt.Errorf("record version: %w", err)
	}

	s.logger.Info().
		Str("config_id", cfg.ID).
		Str("version_id", v.ID).
		Int("version", number).
		Int64("size_bytes", meta.SizeBytes).
		Msg("model version published")
	return v, nil
}

// Activate makes versionID the only active version of its config and
// publishes its artifact to the cache.
//
// The artifact is loaded before the critical section so readers of the
// cache never wait on storage.
func (s *Store) Activate(ctx context.Context, versionID string) (*recommend.ModelVersion, error) {
	v, err := s.repo.Get(ctx, versionID)
	if err != nil {
		metrics.RecordActivation("unknown", err)
		return nil, fmt.Errorf("%w: %w", recommend.ErrCannotActivate, err)
	}

	art, err := s.loadArtifact(ctx, v)
	if err != nil {
		metrics.RecordActivation(v.ModelType.String(), err)
		return nil, fmt.Errorf("%w: %w", recommend.ErrCannotActivate, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetActive(ctx, v.ModelConfigID, v.ID); err != nil {
		metrics.RecordActivation(v.ModelType.String(), err)
		return nil, fmt.Errorf("%w: %w", recommend.ErrCannotActivate, err)
	}
	s.cache.Set(v.ModelType, recommend.ActiveModel{
		Artifact:      art,
		VersionID:     v.ID,
		VersionNumber: v.VersionNumber,
	})
	v.IsActive = true

	metrics.RecordActivation(v.ModelType.String(), nil)
	s.logger.Info().
		Str("config_id", v.ModelConfigID).
		Str("version_id", v.ID).
		Int("version", v.VersionNumber).
		Str("model_type", v.ModelType.String()).
		Msg("model version activated")
	return v, nil
}

// Cleanup deletes all but the newest retained versions of a config. The
// active version is never deleted. Running it twice deletes nothing the
// second time.
func (s *Store) Cleanup(ctx context.Context, configID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.repo.ListByConfig(ctx, configID)
	if err != nil {
		return 0, fmt.Errorf("list versions: %w", err)
	}

	deleted := 0
	for i, v := range list {
		if i < s.retain || v.IsActive {
			continue
		}
		if err := s.remove(ctx, v); err != nil {
			return deleted, err
		}
		metrics.RecordVersionDeleted(v.ModelType.String(), "cleanup")
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().
			Str("config_id", configID).
			Int("deleted", deleted).
			Int("retained", len(list)-deleted).
			Msg("model versions cleaned up")
	}
	return deleted, nil
}

// Delete removes an inactive version and its artifact.
func (s *Store) Delete(ctx context.Context, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.repo.Get(ctx, versionID)
	if err != nil {
		return err
	}
	if v.IsActive {
		return fmt.Errorf("%w: %s", recommend.ErrCannotDeleteActiveVersion, versionID)
	}
	if err := s.remove(ctx, v); err != nil {
		return err
	}
	metrics.RecordVersionDeleted(v.ModelType.String(), "delete")
	return nil
}

// remove deletes the artifact, then the row. Caller holds s.mu.
func (s *Store) remove(ctx context.Context, v *recommend.ModelVersion) error {
	if err := s.blobs.Delete(ctx, storage.KeyFromLocation(v.ArtifactLocation)); err != nil {
		return fmt.Errorf("delete artifact of %s: %w", v.ID, err)
	}
	if err := s.repo.Delete(ctx, v.ID); err != nil {
		return fmt.Errorf("delete version %s: %w", v.ID, err)
	}
	return nil
}

// Get returns one version.
func (s *Store) Get(ctx context.Context, versionID string) (*recommend.ModelVersion, error) {
	return s.repo.Get(ctx, versionID)
}

// List returns a config's versions, newest first.
func (s *Store) List(ctx context.Context, configID string) ([]*recommend.ModelVersion, error) {
	return s.repo.ListByConfig(ctx, configID)
}

// GetActive returns the config's active version.
func (s *Store) GetActive(ctx context.Context, configID string) (*recommend.ModelVersion, error) {
	return s.repo.GetActive(ctx, configID)
}

// LoadArtifact reads a version's artifact from storage.
func (s *Store) LoadArtifact(ctx context.Context, versionID string) (recommend.Artifact, error) {
	v, err := s.repo.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return s.loadArtifact(ctx, v)
}

func (s *Store) loadArtifact(ctx context.Context, v *recommend.ModelVersion) (recommend.Artifact, error) {
	art, _, err := s.blobs.LoadArtifact(ctx, storage.KeyFromLocation(v.ArtifactLocation), v.ModelType)
	if err != nil {
		return nil, err
	}
	return art, nil
}

// Warm loads every active version into the cache. Versions whose artifact
// cannot be read are logged and skipped. When several configs of one model
// type are active, the most recently created wins.
func (s *Store) Warm(ctx context.Context) (int, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active versions: %w", err)
	}

	loaded := 0
	for _, v := range active {
		art, err := s.loadArtifact(ctx, v)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("version_id", v.ID).
				Str("model_type", v.ModelType.String()).
				Msg("skipping unreadable active artifact")
			continue
		}
		s.cache.Set(v.ModelType, recommend.ActiveModel{
			Artifact:      art,
			VersionID:     v.ID,
			VersionNumber: v.VersionNumber,
		})
		loaded++
	}

	s.logger.Info().Int("loaded", loaded).Int("active", len(active)).Msg("model cache warmed")
	return loaded, nil
}
