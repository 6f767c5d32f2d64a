// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/shelfwise/internal/database"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/fbt"
	"github.com/tomtom215/shelfwise/internal/recommend/segments"
	"github.com/tomtom215/shelfwise/internal/recommend/training"
)

type fakeTraining struct {
	mu        sync.Mutex
	submitErr error
	submitted []recommend.ModelType
	lastHP    recommend.Hyperparameters
	runs      map[string]*recommend.TrainingRun
	cancelErr error
}

func newFakeTraining() *fakeTraining {
	return &fakeTraining{runs: make(map[string]*recommend.TrainingRun)}
}

func (f *fakeTraining) Submit(_ context.Context, mt recommend.ModelType, hp recommend.Hyperparameters) (*recommend.TrainingRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, mt)
	f.lastHP = hp
	run := &recommend.TrainingRun{
		ID:            fmt.Sprintf("run-%d", len(f.submitted)),
		ModelConfigID: "cfg-" + string(mt),
		ModelType:     mt,
		Status:        recommend.RunQueued,
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeTraining) Status(_ context.Context, id string) (*training.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, recommend.ErrNotFound)
	}
	return &training.Status{TrainingRun: run, ProgressPercentage: 40}, nil
}

func (f *fakeTraining) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.runs[id]; !ok {
		return fmt.Errorf("run %s: %w", id, recommend.ErrNotFound)
	}
	return nil
}

func (f *fakeTraining) Logs(_ context.Context, id string) ([]training.LogEntry, error) {
	if _, err := f.Status(context.Background(), id); err != nil {
		return nil, err
	}
	return []training.LogEntry{{Level: "info", Message: "queued"}}, nil
}

func (f *fakeTraining) InFlight() []*recommend.TrainingRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*recommend.TrainingRun, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out
}

type fakeRecommender struct {
	last recommend.Request
	err  error
}

func (f *fakeRecommender) Recommend(_ context.Context, req recommend.Request) (*recommend.Response, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &recommend.Response{
		Items:    []recommend.Candidate{{ItemID: 7, BlendedScore: 0.9}},
		Metadata: recommend.ResponseMetadata{UserID: req.UserID, RequestID: req.RequestID},
	}, nil
}

type fakeRules struct {
	rules map[int][]recommend.AssociationRule
}

func (f fakeRules) Recommend(itemID, limit int) []recommend.AssociationRule {
	rs := f.rules[itemID]
	if len(rs) > limit {
		rs = rs[:limit]
	}
	if rs == nil {
		return []recommend.AssociationRule{}
	}
	return rs
}

func (f fakeRules) Stats() fbt.Stats {
	return fbt.Stats{Trained: len(f.rules) > 0, Rules: len(f.rules)}
}

type fakeVersions struct {
	versions map[string]*recommend.ModelVersion
}

func (f *fakeVersions) Get(_ context.Context, id string) (*recommend.ModelVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, recommend.ErrNotFound)
	}
	return v, nil
}

func (f *fakeVersions) List(_ context.Context, configID string) ([]*recommend.ModelVersion, error) {
	out := []*recommend.ModelVersion{}
	for _, v := range f.versions {
		if v.ModelConfigID == configID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVersions) Activate(_ context.Context, id string) (*recommend.ModelVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %w", recommend.ErrCannotActivate, recommend.ErrNotFound)
	}
	if v.ArtifactSize == 0 {
		return nil, fmt.Errorf("%w: artifact unreadable", recommend.ErrCannotActivate)
	}
	for _, other := range f.versions {
		if other.ModelConfigID == v.ModelConfigID {
			other.IsActive = other.ID == id
		}
	}
	return v, nil
}

func (f *fakeVersions) Delete(_ context.Context, id string) error {
	v, ok := f.versions[id]
	if !ok {
		return fmt.Errorf("version %s: %w", id, recommend.ErrNotFound)
	}
	if v.IsActive {
		return recommend.ErrCannotDeleteActiveVersion
	}
	delete(f.versions, id)
	return nil
}

func (f *fakeVersions) Cleanup(context.Context, string) (int, error) {
	return 2, nil
}

type fakeSegments struct{}

func (fakeSegments) Segment(_ context.Context, userID int) (*segments.Assignment, error) {
	if userID != 1 {
		return nil, fmt.Errorf("segment: %w", recommend.ErrNotFound)
	}
	return &segments.Assignment{UserID: 1, Cluster: 2, Source: segments.SourceTrained}, nil
}

func (fakeSegments) Sizes() (map[int]int, error) {
	return map[int]int{2: 5, 0: 3, 1: 4}, nil
}

type fakeConfigs struct {
	configs map[string]*recommend.ModelConfig
}

func (f *fakeConfigs) ListConfigs(context.Context) ([]*recommend.ModelConfig, error) {
	out := []*recommend.ModelConfig{}
	for _, c := range f.configs {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeConfigs) GetConfig(_ context.Context, id string) (*recommend.ModelConfig, error) {
	c, ok := f.configs[id]
	if !ok {
		return nil, fmt.Errorf("config %s: %w", id, recommend.ErrNotFound)
	}
	return c, nil
}

func (f *fakeConfigs) UpsertConfig(_ context.Context, cfg *recommend.ModelConfig) error {
	if cfg.ID == "" {
		cfg.ID = fmt.Sprintf("cfg-%d", len(f.configs)+1)
	}
	f.configs[cfg.ID] = cfg
	return nil
}

func (f *fakeConfigs) ActivateConfig(_ context.Context, id string) error {
	c, ok := f.configs[id]
	if !ok {
		return fmt.Errorf("config %s: %w", id, recommend.ErrNotFound)
	}
	c.IsActive = true
	return nil
}

type fakeHealth struct {
	err error
}

func (f fakeHealth) Ping(context.Context) error { return f.err }

func (f fakeHealth) Stats(context.Context) (*database.CatalogStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &database.CatalogStats{Products: 4, Users: 3, Orders: 5}, nil
}

type fakeModels map[recommend.ModelType]recommend.ActiveModel

func (f fakeModels) Snapshot() map[recommend.ModelType]recommend.ActiveModel { return f }

var errDown = errors.New("connection refused")
