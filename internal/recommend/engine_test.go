// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockDataProvider implements DataProvider for testing.
type mockDataProvider struct {
	profiles    map[int]*UserProfile
	purchased   map[int][]int
	recent      map[int][]int
	trending    []ScoredItem
	categories  map[string][]int
	trendingErr error
	profileErr  error
	categoryErr error

	mu            sync.Mutex
	trendingCalls int
	lastQuery     TrendingQuery
}

func (m *mockDataProvider) GetUserProfile(ctx context.Context, userID int) (*UserProfile, error) {
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return &UserProfile{UserID: userID}, nil
}

func (m *mockDataProvider) GetPurchasedItems(ctx context.Context, userID int) ([]int, error) {
	return m.purchased[userID], nil
}

func (m *mockDataProvider) GetRecentPurchases(ctx context.Context, userID int, limit int) ([]int, error) {
	items := m.recent[userID]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *mockDataProvider) GetTrending(ctx context.Context, q TrendingQuery) ([]ScoredItem, error) {
	m.mu.Lock()
	m.trendingCalls++
	m.lastQuery = q
	m.mu.Unlock()

	if m.trendingErr != nil {
		return nil, m.trendingErr
	}
	out := make([]ScoredItem, 0, len(m.trending))
	allowed := map[int]struct{}(nil)
	if q.Category != "" {
		allowed = make(map[int]struct{})
		for _, id := range m.categories[q.Category] {
			allowed[id] = struct{}{}
		}
	}
	for _, s := range m.trending {
		if allowed != nil {
			if _, ok := allowed[s.ItemID]; !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockDataProvider) GetCategoryItems(ctx context.Context, category string) ([]int, error) {
	if m.categoryErr != nil {
		return nil, m.categoryErr
	}
	return m.categories[category], nil
}

// mockArtifact scores from a fixed table keyed by entity.
type mockArtifact struct {
	modelType ModelType
	scores    map[int][]ScoredItem
}

func (a *mockArtifact) ModelType() ModelType { return a.modelType }

func (a *mockArtifact) Covers(entityID int) bool {
	_, ok := a.scores[entityID]
	return ok
}

func (a *mockArtifact) Score(entityID int, candidates []int) []ScoredItem {
	return a.scores[entityID]
}

// mockModels implements ModelSource.
type mockModels map[ModelType]ActiveModel

func (m mockModels) Active(mt ModelType) (ActiveModel, bool) {
	a, ok := m[mt]
	return a, ok
}

func newTestEngine(t *testing.T, models mockModels, dp DataProvider) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Cache.Enabled = false
	e, err := NewEngine(cfg, models, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.SetDataProvider(dp)
	return e
}

func trendingItems(ids ...int) []ScoredItem {
	out := make([]ScoredItem, len(ids))
	for i, id := range ids {
		out[i] = ScoredItem{ItemID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func TestNewEngine(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		models  ModelSource
		wantErr bool
	}{
		{name: "default config", cfg: nil, models: mockModels{}},
		{name: "missing model source", cfg: nil, models: nil, wantErr: true},
		{
			name: "invalid config",
			cfg: func() *Config {
				c := DefaultConfig()
				c.Limits.DefaultN = 0
				return c
			}(),
			models:  mockModels{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg, tt.models, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEngine() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_ColdStartFallsBackToTrending(t *testing.T) {
	dp := &mockDataProvider{trending: trendingItems(10, 11, 12)}
	e := newTestEngine(t, mockModels{}, dp)

	resp, err := e.Recommend(context.Background(), Request{UserID: 999, N: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if len(resp.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(resp.Items))
	}
	if resp.Items[0].ItemID != 10 || resp.Items[1].ItemID != 11 {
		t.Errorf("items = %+v, want trending order 10, 11", resp.Items)
	}
	if !resp.Metadata.Fallback {
		t.Error("expected fallback metadata for cold-start user")
	}
	if len(resp.Metadata.SourcesUsed) != 1 || resp.Metadata.SourcesUsed[0] != SourceTrending {
		t.Errorf("sources = %v, want [trending]", resp.Metadata.SourcesUsed)
	}
	for _, item := range resp.Items {
		if item.Scores.Collaborative != 0 || item.Scores.Content != 0 {
			t.Errorf("item %d has non-trending scores %+v", item.ItemID, item.Scores)
		}
	}
}

func TestEngine_BlendsSources(t *testing.T) {
	models := mockModels{
		ModelCollaborative: {Artifact: &mockArtifact{
			modelType: ModelCollaborative,
			scores:    map[int][]ScoredItem{1: {{ItemID: 100, Score: 2.0}, {ItemID: 200, Score: 1.0}}},
		}, VersionNumber: 3},
		ModelContent: {Artifact: &mockArtifact{
			modelType: ModelContent,
			scores:    map[int][]ScoredItem{50: {{ItemID: 200, Score: 0.9}, {ItemID: 300, Score: 0.2}}},
		}, VersionNumber: 1},
	}
	dp := &mockDataProvider{
		recent:   map[int][]int{1: {50}},
		trending: trendingItems(300, 100),
	}
	e := newTestEngine(t, models, dp)

	w := Weights{Collaborative: 1, Content: 1, Trending: 1}
	resp, err := e.Recommend(context.Background(), Request{UserID: 1, N: 10, Weights: &w})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if resp.Metadata.Fallback {
		t.Error("did not expect fallback with collaborative coverage")
	}
	if got := resp.Metadata.ModelVersions[ModelCollaborative]; got != 3 {
		t.Errorf("collaborative version = %d, want 3", got)
	}

	byID := make(map[int]Candidate)
	for _, c := range resp.Items {
		byID[c.ItemID] = c
	}
	// Normalized: collab 100=1, 200=0; content 200=1, 300=0; trending 300=1, 100=0.
	third := 1.0 / 3.0
	want := map[int]float64{100: third, 200: third, 300: third}
	for id, blended := range want {
		c, ok := byID[id]
		if !ok {
			t.Fatalf("item %d missing from response", id)
		}
		if math.Abs(c.BlendedScore-blended) > 1e-9 {
			t.Errorf("item %d blended = %f, want %f", id, c.BlendedScore, blended)
		}
	}
	// Equal scores tie-break by ascending item ID.
	if resp.Items[0].ItemID != 100 {
		t.Errorf("first item = %d, want 100", resp.Items[0].ItemID)
	}
}

func TestEngine_BlendedScoreIsWeightedSum(t *testing.T) {
	models := mockModels{
		ModelCollaborative: {Artifact: &mockArtifact{
			modelType: ModelCollaborative,
			scores:    map[int][]ScoredItem{1: {{ItemID: 100, Score: 5}, {ItemID: 101, Score: 1}}},
		}},
	}
	dp := &mockDataProvider{trending: trendingItems(101, 100)}
	e := newTestEngine(t, models, dp)

	w := Weights{Collaborative: 3, Trending: 1}
	resp, err := e.Recommend(context.Background(), Request{UserID: 1, N: 5, Weights: &w})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	for _, c := range resp.Items {
		want := 0.75*c.Scores.Collaborative + 0.25*c.Scores.Trending
		if math.Abs(c.BlendedScore-want) > 1e-9 {
			t.Errorf("item %d blended = %f, want %f", c.ItemID, c.BlendedScore, want)
		}
	}
	if resp.Items[0].ItemID != 100 {
		t.Errorf("first item = %d, want 100", resp.Items[0].ItemID)
	}
}

func TestEngine_ExcludesPurchased(t *testing.T) {
	dp := &mockDataProvider{
		purchased: map[int][]int{7: {10, 12}},
		trending:  trendingItems(10, 11, 12, 13),
	}
	e := newTestEngine(t, mockModels{}, dp)

	tests := []struct {
		name             string
		includePurchased bool
		want             []int
	}{
		{name: "excluded by default", includePurchased: false, want: []int{11, 13}},
		{name: "included on request", includePurchased: true, want: []int{10, 11, 12, 13}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := e.Recommend(context.Background(), Request{UserID: 7, N: 10, IncludePurchased: tt.includePurchased})
			if err != nil {
				t.Fatalf("Recommend() error = %v", err)
			}
			if len(resp.Items) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(resp.Items), len(tt.want))
			}
			for i, id := range tt.want {
				if resp.Items[i].ItemID != id {
					t.Errorf("item[%d] = %d, want %d", i, resp.Items[i].ItemID, id)
				}
			}
		})
	}
}

func TestEngine_TruncatesToN(t *testing.T) {
	dp := &mockDataProvider{trending: trendingItems(1, 2, 3, 4, 5, 6)}
	e := newTestEngine(t, mockModels{}, dp)

	resp, err := e.Recommend(context.Background(), Request{UserID: 1, N: 3})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Items) != 3 {
		t.Errorf("got %d items, want 3", len(resp.Items))
	}
}

func TestEngine_TrendingFailureDegradesToEmpty(t *testing.T) {
	dp := &mockDataProvider{trendingErr: errors.New("store down"), profileErr: errors.New("store down")}
	e := newTestEngine(t, mockModels{}, dp)

	resp, err := e.Recommend(context.Background(), Request{UserID: 1, N: 3})
	if err != nil {
		t.Fatalf("Recommend() error = %v, want degradation", err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("got %d items, want 0", len(resp.Items))
	}
	if e.Stats().SourceErrors == 0 {
		t.Error("expected source errors to be counted")
	}
}

func TestEngine_CategoryFilter(t *testing.T) {
	models := mockModels{
		ModelCollaborative: {Artifact: &mockArtifact{
			modelType: ModelCollaborative,
			scores:    map[int][]ScoredItem{1: {{ItemID: 1, Score: 3}, {ItemID: 2, Score: 2}, {ItemID: 3, Score: 1}}},
		}},
	}
	dp := &mockDataProvider{
		trending:   trendingItems(3, 4, 5),
		categories: map[string][]int{"tools": {2, 3}},
	}
	e := newTestEngine(t, models, dp)

	resp, err := e.Recommend(context.Background(), Request{UserID: 1, N: 10, Category: "tools"})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	for _, c := range resp.Items {
		if c.ItemID != 2 && c.ItemID != 3 {
			t.Errorf("item %d is outside category", c.ItemID)
		}
	}
	if dp.lastQuery.Category != "tools" {
		t.Errorf("trending category = %q, want tools", dp.lastQuery.Category)
	}
}

func TestEngine_CategoryLookupFailureSkipsModels(t *testing.T) {
	models := mockModels{
		ModelCollaborative: {Artifact: &mockArtifact{
			modelType: ModelCollaborative,
			scores:    map[int][]ScoredItem{1: {{ItemID: 1, Score: 3}}},
		}},
	}
	// Trending filters by category in its own query, so it still honors the
	// filter when the category item lookup fails.
	dp := &mockDataProvider{
		trending:    trendingItems(8, 9),
		categories:  map[string][]int{"tools": {1, 9}},
		categoryErr: errors.New("timeout"),
	}
	e := newTestEngine(t, models, dp)

	resp, err := e.Recommend(context.Background(), Request{UserID: 1, N: 10, Category: "tools"})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ItemID != 9 {
		t.Errorf("items = %+v, want only trending item 9", resp.Items)
	}
	if dp.lastQuery.Category != "tools" {
		t.Errorf("trending category = %q, want tools", dp.lastQuery.Category)
	}
	for _, src := range resp.Metadata.SourcesUsed {
		if src == SourceCollaborative {
			t.Error("collaborative source ran without a resolved category")
		}
	}
}

func TestEngine_AdaptiveWeights(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	dp := &mockDataProvider{
		profiles: map[int]*UserProfile{
			1: {UserID: 1, Known: true, CreatedAt: now.AddDate(0, 0, -5), PurchaseCount: 20},
			2: {UserID: 2, Known: true, CreatedAt: now.AddDate(-1, 0, 0), PurchaseCount: 2},
			3: {UserID: 3, Known: true, CreatedAt: now.AddDate(-1, 0, 0), PurchaseCount: 5},
			4: {UserID: 4, Known: true, CreatedAt: now.AddDate(-1, 0, 0), PurchaseCount: 10},
		},
		trending: trendingItems(1),
	}
	e := newTestEngine(t, mockModels{}, dp)
	e.now = func() time.Time { return now }

	tests := []struct {
		name     string
		userID   int
		wantTier string
		want     Weights
	}{
		{name: "young account", userID: 1, wantTier: TierNew, want: Weights{Collaborative: 0.2, Content: 0.3, Trending: 0.5}},
		{name: "few purchases", userID: 2, wantTier: TierNew, want: Weights{Collaborative: 0.2, Content: 0.3, Trending: 0.5}},
		{name: "growing", userID: 3, wantTier: TierGrowing, want: Weights{Collaborative: 0.3, Content: 0.5, Trending: 0.2}},
		{name: "established", userID: 4, wantTier: TierEstablished, want: Weights{Collaborative: 0.6, Content: 0.3, Trending: 0.1}},
		{name: "unknown user", userID: 99, wantTier: TierNew, want: Weights{Collaborative: 0.2, Content: 0.3, Trending: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := e.Recommend(context.Background(), Request{UserID: tt.userID, N: 5, Adaptive: true})
			if err != nil {
				t.Fatalf("Recommend() error = %v", err)
			}
			if resp.Metadata.Tier != tt.wantTier {
				t.Errorf("tier = %q, want %q", resp.Metadata.Tier, tt.wantTier)
			}
			got := resp.Metadata.Weights
			if math.Abs(got.Collaborative-tt.want.Collaborative) > 1e-9 ||
				math.Abs(got.Content-tt.want.Content) > 1e-9 ||
				math.Abs(got.Trending-tt.want.Trending) > 1e-9 {
				t.Errorf("weights = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEngine_ResponseCache(t *testing.T) {
	dp := &mockDataProvider{trending: trendingItems(1, 2)}
	cfg := DefaultConfig()
	e, err := NewEngine(cfg, mockModels{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.SetDataProvider(dp)

	ctx := context.Background()
	if _, err := e.Recommend(ctx, Request{UserID: 1, N: 2}); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	resp, err := e.Recommend(ctx, Request{UserID: 1, N: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if !resp.Metadata.CacheHit {
		t.Error("expected second request to hit cache")
	}
	if dp.trendingCalls != 1 {
		t.Errorf("trending calls = %d, want 1", dp.trendingCalls)
	}

	e.InvalidateCache()
	resp, err = e.Recommend(ctx, Request{UserID: 1, N: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Metadata.CacheHit {
		t.Error("expected miss after invalidation")
	}
}

func TestEngine_CachedResponseIsolatedFromCallers(t *testing.T) {
	dp := &mockDataProvider{trending: trendingItems(1, 2)}
	models := mockModels{
		ModelClustering: {Artifact: &mockArtifact{modelType: ModelClustering}, VersionNumber: 4},
	}
	e, err := NewEngine(DefaultConfig(), models, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.SetDataProvider(dp)

	ctx := context.Background()
	req := Request{UserID: 1, N: 2}
	mutate := func(r *Response) {
		r.Items[0].ItemID = 99
		r.Metadata.SourcesUsed[0] = "tampered"
		r.Metadata.ModelVersions[ModelClustering] = 99
	}

	first, err := e.Recommend(ctx, req)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	mutate(first)

	for i := range 2 {
		resp, err := e.Recommend(ctx, req)
		if err != nil {
			t.Fatalf("Recommend() error = %v", err)
		}
		if !resp.Metadata.CacheHit {
			t.Fatalf("request %d missed the cache", i)
		}
		if resp.Items[0].ItemID != 1 {
			t.Errorf("request %d first item = %d, want 1", i, resp.Items[0].ItemID)
		}
		if resp.Metadata.SourcesUsed[0] != SourceTrending {
			t.Errorf("request %d sources = %v, want trending", i, resp.Metadata.SourcesUsed)
		}
		if resp.Metadata.ModelVersions[ModelClustering] != 4 {
			t.Errorf("request %d model versions = %v, want clustering 4", i, resp.Metadata.ModelVersions)
		}
		mutate(resp)
	}
}

// reverseReranker reverses the pool it is handed.
type reverseReranker struct {
	received []int
}

func (r *reverseReranker) Rerank(_ context.Context, items []Candidate, k int) []Candidate {
	out := make([]Candidate, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		r.received = append(r.received, items[i].ItemID)
		out = append(out, items[i])
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func TestEngine_Reranker(t *testing.T) {
	dp := &mockDataProvider{
		trending:  trendingItems(10, 11, 12, 13, 14),
		purchased: map[int][]int{1: {12}},
	}
	e := newTestEngine(t, mockModels{}, dp)
	rr := &reverseReranker{}
	e.SetReranker(rr)

	resp, err := e.Recommend(context.Background(), Request{UserID: 1, N: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	// The reranker sees the filtered pool, not just the top N.
	if len(rr.received) != 4 {
		t.Fatalf("reranker received %v, want 4 unpurchased items", rr.received)
	}
	if len(resp.Items) != 2 || resp.Items[0].ItemID != 14 || resp.Items[1].ItemID != 13 {
		t.Errorf("Items = %+v, want [14 13]", resp.Items)
	}

	e.SetReranker(nil)
	resp, err = e.Recommend(context.Background(), Request{UserID: 1, N: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Items[0].ItemID != 10 {
		t.Errorf("Items[0] without reranker = %d, want 10", resp.Items[0].ItemID)
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	e := newTestEngine(t, mockModels{}, &mockDataProvider{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Recommend(ctx, Request{UserID: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("Recommend() error = %v, want context.Canceled", err)
	}
}

func TestNormalizeScores(t *testing.T) {
	tests := []struct {
		name  string
		input map[int]float64
		want  map[int]float64
	}{
		{name: "empty", input: map[int]float64{}, want: map[int]float64{}},
		{name: "equal scores", input: map[int]float64{1: 3, 2: 3}, want: map[int]float64{1: 1, 2: 1}},
		{name: "range", input: map[int]float64{1: 2, 2: 4, 3: 6}, want: map[int]float64{1: 0, 2: 0.5, 3: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeScores(tt.input)
			for id, want := range tt.want {
				if math.Abs(got[id]-want) > 1e-9 {
					t.Errorf("score[%d] = %f, want %f", id, got[id], want)
				}
			}
		})
	}
}
