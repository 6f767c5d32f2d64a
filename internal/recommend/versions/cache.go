// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package versions

import (
	"sync"
	"sync/atomic"

	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

type snapshot map[recommend.ModelType]recommend.ActiveModel

// Cache maps each model type to its active artifact.
//
// Readers load an immutable snapshot through an atomic pointer and never
// block. Writers copy the snapshot, modify the copy, and swap it in.
type Cache struct {
	current atomic.Pointer[snapshot]

	mu        sync.Mutex
	listeners []func(recommend.ModelType)
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	empty := make(snapshot)
	c.current.Store(&empty)
	return c
}

// Active implements recommend.ModelSource.
func (c *Cache) Active(modelType recommend.ModelType) (recommend.ActiveModel, bool) {
	m, ok := (*c.current.Load())[modelType]
	return m, ok
}

// Set publishes an artifact for a model type.
//
//nolint:gocritic // hugeParam: ActiveModel is small and copied into the snapshot
func (c *Cache) Set(modelType recommend.ModelType, m recommend.ActiveModel) {
	c.swap(modelType, func(next snapshot) { next[modelType] = m })
}

// Remove drops a model type from the cache.
func (c *Cache) Remove(modelType recommend.ModelType) {
	c.swap(modelType, func(next snapshot) { delete(next, modelType) })
}

func (c *Cache) swap(modelType recommend.ModelType, mutate func(snapshot)) {
	c.mu.Lock()
	prev := *c.current.Load()
	next := make(snapshot, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}
	mutate(next)
	c.current.Store(&next)
	listeners := c.listeners
	c.mu.Unlock()

	metrics.ModelCacheEntries.Set(float64(len(next)))
	for _, fn := range listeners {
		fn(modelType)
	}
}

// OnSwap registers fn to run after every swap.
func (c *Cache) OnSwap(fn func(recommend.ModelType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners[:len(c.listeners):len(c.listeners)], fn)
}

// Snapshot returns the version metadata of every cached artifact.
func (c *Cache) Snapshot() map[recommend.ModelType]recommend.ActiveModel {
	cur := *c.current.Load()
	out := make(map[recommend.ModelType]recommend.ActiveModel, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// Len returns how many model types are cached.
func (c *Cache) Len() int {
	return len(*c.current.Load())
}
