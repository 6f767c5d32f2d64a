// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package versions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
	"github.com/tomtom215/shelfwise/internal/recommend/storage"
)

type fixture struct {
	store *Store
	repo  *MemoryRepository
	blobs *storage.Store
	cache *Cache
	cfg   *recommend.ModelConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := storage.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	f := &fixture{
		repo:  NewMemoryRepository(),
		blobs: storage.NewStore(backend),
		cache: NewCache(),
		cfg:   &recommend.ModelConfig{ID: "cfg-content", ModelType: recommend.ModelContent},
	}
	f.store = NewStore(f.repo, f.blobs, f.cache, 3, zerolog.Nop())

	// Monotonic clock so creation order is unambiguous.
	var tick atomic.Int64
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Minute)
	}
	return f
}

// contentModel builds a three-item model whose top neighbour of item 1 is best.
func contentModel(best int) *algorithms.ContentModel {
	sim := [][]float32{
		{1, 0.3, 0.3},
		{0.3, 1, 0.2},
		{0.3, 0.2, 1},
	}
	sim[0][best-1] = 0.9
	sim[best-1][0] = 0.9
	return &algorithms.ContentModel{
		ItemIDs:       []int{1, 2, 3},
		ItemIndex:     map[int]int{1: 0, 2: 1, 3: 2},
		Similarity:    sim,
		MinSimilarity: 0.1,
	}
}

func (f *fixture) publish(t *testing.T, best int) *recommend.ModelVersion {
	t.Helper()
	v, err := f.store.Publish(context.Background(), f.cfg, "run", contentModel(best), map[string]float64{"items": 3})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	return v
}

func topItem(t *testing.T, c *Cache) int {
	t.Helper()
	m, ok := c.Active(recommend.ModelContent)
	if !ok {
		t.Fatal("no active content model in cache")
	}
	scores := m.Artifact.Score(1, nil)
	if len(scores) == 0 {
		t.Fatal("active model returned no scores")
	}
	return scores[0].ItemID
}

func TestStore_PublishAssignsIncreasingVersions(t *testing.T) {
	f := newFixture(t)
	v1 := f.publish(t, 2)
	v2 := f.publish(t, 3)

	if v1.VersionNumber != 1 || v2.VersionNumber != 2 {
		t.Errorf("version numbers = %d, %d, want 1, 2", v1.VersionNumber, v2.VersionNumber)
	}
	if v1.IsActive || v2.IsActive {
		t.Error("published versions must start inactive")
	}
	if v1.Checksum == "" || v1.ArtifactSize == 0 || v1.ArtifactLocation == "" {
		t.Errorf("version missing artifact metadata: %+v", v1)
	}
	if _, ok := f.cache.Active(recommend.ModelContent); ok {
		t.Error("publishing must not touch the cache")
	}
}

func TestStore_PublishTypeMismatch(t *testing.T) {
	f := newFixture(t)
	cfg := &recommend.ModelConfig{ID: "cfg-reorder", ModelType: recommend.ModelReorder}
	if _, err := f.store.Publish(context.Background(), cfg, "run", contentModel(2), nil); err == nil {
		t.Error("Publish() with mismatched artifact type should fail")
	}
}

func TestStore_ActivateV1ThenV2(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v1 := f.publish(t, 2)
	v2 := f.publish(t, 3)

	if _, err := f.store.Activate(ctx, v1.ID); err != nil {
		t.Fatalf("Activate(v1) error = %v", err)
	}
	if got := topItem(t, f.cache); got != 2 {
		t.Errorf("top item with v1 = %d, want 2", got)
	}

	if _, err := f.store.Activate(ctx, v2.ID); err != nil {
		t.Fatalf("Activate(v2) error = %v", err)
	}
	if got := topItem(t, f.cache); got != 3 {
		t.Errorf("top item with v2 = %d, want 3", got)
	}

	active, err := f.store.GetActive(ctx, f.cfg.ID)
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if active.ID != v2.ID {
		t.Errorf("active version = %s, want %s", active.ID, v2.ID)
	}
	old, _ := f.store.Get(ctx, v1.ID)
	if old.IsActive {
		t.Error("v1 still active after v2 activation")
	}

	m, _ := f.cache.Active(recommend.ModelContent)
	if m.VersionID != v2.ID || m.VersionNumber != 2 {
		t.Errorf("cache entry = %s v%d, want %s v2", m.VersionID, m.VersionNumber, v2.ID)
	}
}

func TestStore_ActivateFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v1 := f.publish(t, 2)
	if _, err := f.store.Activate(ctx, v1.ID); err != nil {
		t.Fatalf("Activate(v1) error = %v", err)
	}

	t.Run("unknown version", func(t *testing.T) {
		_, err := f.store.Activate(ctx, "does-not-exist")
		if !errors.Is(err, recommend.ErrCannotActivate) {
			t.Errorf("Activate() error = %v, want ErrCannotActivate", err)
		}
	})

	t.Run("unreadable artifact", func(t *testing.T) {
		v2 := f.publish(t, 3)
		if err := f.blobs.Delete(ctx, storage.KeyFromLocation(v2.ArtifactLocation)); err != nil {
			t.Fatalf("delete blob: %v", err)
		}
		_, err := f.store.Activate(ctx, v2.ID)
		if !errors.Is(err, recommend.ErrCannotActivate) {
			t.Errorf("Activate() error = %v, want ErrCannotActivate", err)
		}
		if got := topItem(t, f.cache); got != 2 {
			t.Errorf("failed activation changed served model: top item %d, want 2", got)
		}
		active, _ := f.store.GetActive(ctx, f.cfg.ID)
		if active.ID != v1.ID {
			t.Errorf("active = %s, want v1 %s", active.ID, v1.ID)
		}
	})
}

func TestStore_ConcurrentActivationKeepsSingleActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.publish(t, 2+i%2).ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.store.Activate(ctx, id); err != nil {
				t.Errorf("Activate(%s) error = %v", id, err)
			}
		}(ids[i%len(ids)])
	}
	wg.Wait()

	list, err := f.store.List(ctx, f.cfg.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	activeCount := 0
	var activeID string
	for _, v := range list {
		if v.IsActive {
			activeCount++
			activeID = v.ID
		}
	}
	if activeCount != 1 {
		t.Fatalf("active versions = %d, want exactly 1", activeCount)
	}
	m, _ := f.cache.Active(recommend.ModelContent)
	if m.VersionID != activeID {
		t.Errorf("cache serves %s, repository active is %s", m.VersionID, activeID)
	}
}

func TestStore_CleanupRetainsNewestAndActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var all []*recommend.ModelVersion
	for i := 0; i < 5; i++ {
		all = append(all, f.publish(t, 2))
	}
	// Oldest version is active and falls outside the retained window.
	if _, err := f.store.Activate(ctx, all[0].ID); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	deleted, err := f.store.Cleanup(ctx, f.cfg.ID)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup() deleted %d, want 1", deleted)
	}

	list, _ := f.store.List(ctx, f.cfg.ID)
	kept := make(map[int]bool)
	for _, v := range list {
		kept[v.VersionNumber] = true
	}
	for _, n := range []int{1, 3, 4, 5} {
		if !kept[n] {
			t.Errorf("version %d should be kept, have %v", n, kept)
		}
	}
	if kept[2] {
		t.Error("version 2 should have been deleted")
	}
	if _, err := f.blobs.Stat(ctx, storage.KeyFromLocation(all[1].ArtifactLocation)); !errors.Is(err, storage.ErrBlobNotFound) {
		t.Errorf("artifact of deleted version still present: %v", err)
	}

	again, err := f.store.Cleanup(ctx, f.cfg.ID)
	if err != nil {
		t.Fatalf("second Cleanup() error = %v", err)
	}
	if again != 0 {
		t.Errorf("second Cleanup() deleted %d, want 0", again)
	}
}

func TestStore_DeleteActiveRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.publish(t, 2)
	if _, err := f.store.Activate(ctx, v.ID); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	err := f.store.Delete(ctx, v.ID)
	if !errors.Is(err, recommend.ErrCannotDeleteActiveVersion) {
		t.Fatalf("Delete(active) error = %v, want ErrCannotDeleteActiveVersion", err)
	}
	if _, err := f.store.LoadArtifact(ctx, v.ID); err != nil {
		t.Errorf("artifact unreadable after rejected delete: %v", err)
	}
}

func TestStore_DeleteInactive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.publish(t, 2)

	if err := f.store.Delete(ctx, v.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.store.Get(ctx, v.ID); !errors.Is(err, recommend.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := f.store.Delete(ctx, v.ID); !errors.Is(err, recommend.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ArtifactRoundTripScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	model := contentModel(3)
	v, err := f.store.Publish(ctx, f.cfg, "run", model, nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	loaded, err := f.store.LoadArtifact(ctx, v.ID)
	if err != nil {
		t.Fatalf("LoadArtifact() error = %v", err)
	}
	for _, item := range []int{1, 2, 3} {
		want := model.Score(item, nil)
		got := loaded.Score(item, nil)
		if len(got) != len(want) {
			t.Fatalf("Score(%d) = %v, want %v", item, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Score(%d)[%d] = %+v, want %+v", item, i, got[i], want[i])
			}
		}
	}
}

func TestStore_Warm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.publish(t, 3)
	if _, err := f.store.Activate(ctx, v.ID); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	// Simulate a restart: same repository and blobs, empty cache.
	cache := NewCache()
	restarted := NewStore(f.repo, f.blobs, cache, 3, zerolog.Nop())
	n, err := restarted.Warm(ctx)
	if err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Warm() loaded %d, want 1", n)
	}
	if got := topItem(t, cache); got != 3 {
		t.Errorf("warmed top item = %d, want 3", got)
	}
}

func TestCache_SwapNotifiesListeners(t *testing.T) {
	c := NewCache()
	var notified []recommend.ModelType
	c.OnSwap(func(mt recommend.ModelType) { notified = append(notified, mt) })

	c.Set(recommend.ModelContent, recommend.ActiveModel{Artifact: contentModel(2), VersionID: "a"})
	c.Set(recommend.ModelReorder, recommend.ActiveModel{VersionID: "b"})
	c.Remove(recommend.ModelReorder)

	if len(notified) != 3 {
		t.Fatalf("listener calls = %d, want 3", len(notified))
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Active(recommend.ModelReorder); ok {
		t.Error("removed model type still served")
	}
	snap := c.Snapshot()
	if snap[recommend.ModelContent].VersionID != "a" {
		t.Errorf("Snapshot() = %v", snap)
	}
}

func TestCache_ReadersSeeWholeSnapshots(t *testing.T) {
	c := NewCache()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			c.Set(recommend.ModelContent, recommend.ActiveModel{VersionNumber: i})
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-stop:
					return
				default:
				}
				if m, ok := c.Active(recommend.ModelContent); ok {
					if m.VersionNumber < last {
						t.Errorf("version went backwards: %d after %d", m.VersionNumber, last)
						return
					}
					last = m.VersionNumber
				}
			}
		}()
	}
	wg.Wait()
}
