// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package training

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// RunRepository persists training runs.
type RunRepository interface {
	// CreateRun inserts a new run.
	CreateRun(ctx context.Context, run *recommend.TrainingRun) error

	// UpdateRun overwrites a run. Unknown ids wrap recommend.ErrNotFound.
	UpdateRun(ctx context.Context, run *recommend.TrainingRun) error

	// GetRun returns a run. Unknown ids wrap recommend.ErrNotFound.
	GetRun(ctx context.Context, id string) (*recommend.TrainingRun, error)

	// ListRunsByStatus returns runs in any of the given states, oldest first.
	ListRunsByStatus(ctx context.Context, statuses ...recommend.RunStatus) ([]*recommend.TrainingRun, error)
}

// MemoryRunRepository is a RunRepository held in memory.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*recommend.TrainingRun
}

// NewMemoryRunRepository creates an empty repository.
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]*recommend.TrainingRun)}
}

// CreateRun implements RunRepository.
func (r *MemoryRunRepository) CreateRun(_ context.Context, run *recommend.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("training run %s already exists", run.ID)
	}
	r.runs[run.ID] = run.Clone()
	return nil
}

// UpdateRun implements RunRepository.
func (r *MemoryRunRepository) UpdateRun(_ context.Context, run *recommend.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; !exists {
		return fmt.Errorf("training run %s: %w", run.ID, recommend.ErrNotFound)
	}
	r.runs[run.ID] = run.Clone()
	return nil
}

// GetRun implements RunRepository.
func (r *MemoryRunRepository) GetRun(_ context.Context, id string) (*recommend.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("training run %s: %w", id, recommend.ErrNotFound)
	}
	return run.Clone(), nil
}

// ListRunsByStatus implements RunRepository.
func (r *MemoryRunRepository) ListRunsByStatus(_ context.Context, statuses ...recommend.RunStatus) ([]*recommend.TrainingRun, error) {
	want := make(map[recommend.RunStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	r.mu.RLock()
	out := make([]*recommend.TrainingRun, 0)
	for _, run := range r.runs {
		if want[run.Status] {
			out = append(out, run.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
