// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package segments answers customer segment lookups from the active
// clustering model and mirrors segment assignments into the database.
package segments

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
)

// How an assignment was obtained.
const (
	SourceTrained  = "trained"
	SourceAssigned = "assigned"
)

// FeatureSource computes live RFM features for a single user.
type FeatureSource interface {
	UserRFM(ctx context.Context, userID int) (*recommend.RFMFeatures, error)
}

// Writer replaces the persisted segment table.
type Writer interface {
	ReplaceSegments(ctx context.Context, versionID string, rows []recommend.RFMFeatures) error
}

// Assignment is a user's segment.
type Assignment struct {
	UserID    int                   `json:"user_id"`
	Cluster   int                   `json:"cluster"`
	Features  recommend.RFMFeatures `json:"features"`
	VersionID string                `json:"version_id"`
	Source    string                `json:"source"`
}

// Service resolves segments.
type Service struct {
	models   recommend.ModelSource
	features FeatureSource
	writer   Writer
	logger   zerolog.Logger
}

// NewService creates a Service. features and writer may be nil.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewService(models recommend.ModelSource, features FeatureSource, writer Writer, logger zerolog.Logger) *Service {
	return &Service{
		models:   models,
		features: features,
		writer:   writer,
		logger:   logger.With().Str("component", "segments").Logger(),
	}
}

func (s *Service) active() (*algorithms.ClusteringModel, string, bool) {
	m, ok := s.models.Active(recommend.ModelClustering)
	if !ok {
		return nil, "", false
	}
	cm, ok := m.Artifact.(*algorithms.ClusteringModel)
	if !ok {
		return nil, "", false
	}
	return cm, m.VersionID, true
}

// Segment returns the user's segment. Users seen at training time get their
// trained cluster; others are placed by nearest centroid when live features
// are available. No model or no purchase history wraps recommend.ErrNotFound.
func (s *Service) Segment(ctx context.Context, userID int) (*Assignment, error) {
	cm, versionID, ok := s.active()
	if !ok {
		return nil, fmt.Errorf("clustering model: %w", recommend.ErrNotFound)
	}

	if f, ok := cm.Segment(userID); ok {
		return &Assignment{UserID: userID, Cluster: f.Cluster, Features: f, VersionID: versionID, Source: SourceTrained}, nil
	}

	if s.features == nil {
		return nil, fmt.Errorf("segment for user %d: %w", userID, recommend.ErrNotFound)
	}
	f, err := s.features.UserRFM(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("features for user %d: %w", userID, err)
	}
	if f == nil {
		return nil, fmt.Errorf("segment for user %d: %w", userID, recommend.ErrNotFound)
	}
	f.Cluster = cm.Assign(f)
	return &Assignment{UserID: userID, Cluster: f.Cluster, Features: *f, VersionID: versionID, Source: SourceAssigned}, nil
}

// Sizes returns the number of trained users per cluster.
func (s *Service) Sizes() (map[int]int, error) {
	cm, _, ok := s.active()
	if !ok {
		return nil, fmt.Errorf("clustering model: %w", recommend.ErrNotFound)
	}
	sizes := make(map[int]int, len(cm.Centroids))
	for _, f := range cm.Segments {
		sizes[f.Cluster]++
	}
	return sizes, nil
}

// OnPublish writes the segment table when a clustering version becomes active.
// Other model types are ignored. It has the shape of training.PublishHook.
func (s *Service) OnPublish(ctx context.Context, run *recommend.TrainingRun, art recommend.Artifact) error {
	cm, ok := art.(*algorithms.ClusteringModel)
	if !ok || s.writer == nil {
		return nil
	}

	rows := make([]recommend.RFMFeatures, 0, len(cm.Segments))
	for _, f := range cm.Segments {
		rows = append(rows, f)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })

	if err := s.writer.ReplaceSegments(ctx, run.VersionID, rows); err != nil {
		return fmt.Errorf("write segments: %w", err)
	}
	s.logger.Info().Str("version_id", run.VersionID).Int("users", len(rows)).Msg("segments written")
	return nil
}
