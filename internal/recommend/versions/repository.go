// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package versions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// Repository persists model version metadata.
type Repository interface {
	// NextVersionNumber returns one more than the highest version of the config.
	NextVersionNumber(ctx context.Context, configID string) (int, error)

	// Create inserts a new, inactive version.
	Create(ctx context.Context, v *recommend.ModelVersion) error

	// Get returns the version or an error wrapping recommend.ErrNotFound.
	Get(ctx context.Context, id string) (*recommend.ModelVersion, error)

	// ListByConfig returns the config's versions, newest first.
	ListByConfig(ctx context.Context, configID string) ([]*recommend.ModelVersion, error)

	// GetActive returns the config's active version or recommend.ErrNotFound.
	GetActive(ctx context.Context, configID string) (*recommend.ModelVersion, error)

	// SetActive deactivates every other version of the config and activates
	// versionID in one transaction.
	SetActive(ctx context.Context, configID, versionID string) error

	// Delete removes a version row.
	Delete(ctx context.Context, id string) error

	// ListActive returns the active version of every config, oldest first.
	ListActive(ctx context.Context) ([]*recommend.ModelVersion, error)
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	versions map[string]*recommend.ModelVersion
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: make(map[string]*recommend.ModelVersion)}
}

func copyVersion(v *recommend.ModelVersion) *recommend.ModelVersion {
	out := *v
	if v.PerformanceMetrics != nil {
		out.PerformanceMetrics = make(map[string]float64, len(v.PerformanceMetrics))
		for k, m := range v.PerformanceMetrics {
			out.PerformanceMetrics[k] = m
		}
	}
	return &out
}

// NextVersionNumber implements Repository.
func (r *MemoryRepository) NextVersionNumber(_ context.Context, configID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	highest := 0
	for _, v := range r.versions {
		if v.ModelConfigID == configID && v.VersionNumber > highest {
			highest = v.VersionNumber
		}
	}
	return highest + 1, nil
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, v *recommend.ModelVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.versions[v.ID]; exists {
		return fmt.Errorf("version %s already exists", v.ID)
	}
	for _, existing := range r.versions {
		if existing.ModelConfigID == v.ModelConfigID && existing.VersionNumber == v.VersionNumber {
			return fmt.Errorf("config %s already has version %d", v.ModelConfigID, v.VersionNumber)
		}
	}
	r.versions[v.ID] = copyVersion(v)
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (*recommend.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.versions[id]
	if !ok {
		return nil, fmt.Errorf("model version %s: %w", id, recommend.ErrNotFound)
	}
	return copyVersion(v), nil
}

// ListByConfig implements Repository.
func (r *MemoryRepository) ListByConfig(_ context.Context, configID string) ([]*recommend.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*recommend.ModelVersion
	for _, v := range r.versions {
		if v.ModelConfigID == configID {
			out = append(out, copyVersion(v))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// GetActive implements Repository.
func (r *MemoryRepository) GetActive(_ context.Context, configID string) (*recommend.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.versions {
		if v.ModelConfigID == configID && v.IsActive {
			return copyVersion(v), nil
		}
	}
	return nil, fmt.Errorf("active version of %s: %w", configID, recommend.ErrNotFound)
}

// SetActive implements Repository.
func (r *MemoryRepository) SetActive(_ context.Context, configID, versionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.versions[versionID]
	if !ok || target.ModelConfigID != configID {
		return fmt.Errorf("model version %s: %w", versionID, recommend.ErrNotFound)
	}
	for _, v := range r.versions {
		if v.ModelConfigID == configID {
			v.IsActive = v.ID == versionID
		}
	}
	return nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.versions[id]; !ok {
		return fmt.Errorf("model version %s: %w", id, recommend.ErrNotFound)
	}
	delete(r.versions, id)
	return nil
}

// ListActive implements Repository.
func (r *MemoryRepository) ListActive(_ context.Context) ([]*recommend.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*recommend.ModelVersion
	for _, v := range r.versions {
		if v.IsActive {
			out = append(out, copyVersion(v))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// sortNewestFirst orders by creation time, then version number, descending.
func sortNewestFirst(vs []*recommend.ModelVersion) {
	sort.Slice(vs, func(i, j int) bool {
		if !vs[i].CreatedAt.Equal(vs[j].CreatedAt) {
			return vs[i].CreatedAt.After(vs[j].CreatedAt)
		}
		return vs[i].VersionNumber > vs[j].VersionNumber
	})
}
