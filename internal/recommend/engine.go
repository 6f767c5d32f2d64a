// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/shelfwise/internal/cache"
	"github.com/tomtom215/shelfwise/internal/metrics"
)

// Note: Apart from metrics and cache, this package has no dependencies on other
// internal packages. The DataProvider and ModelSource interfaces allow
// integration with the database and versions packages without creating
// circular imports.

// Source names used in response metadata and logs.
const (
	SourceCollaborative = "collaborative"
	SourceContent       = "content"
	SourceTrending      = "trending"
)

// ActiveModel is a published artifact together with its version number.
type ActiveModel struct {
	Artifact      Artifact
	VersionID     string
	VersionNumber int
}

// ModelSource resolves the active artifact for a model type.
// A miss is not an error; it means the source is skipped.
type ModelSource interface {
	Active(modelType ModelType) (ActiveModel, bool)
}

// TrendingQuery parameterizes the recency-weighted popularity source.
type TrendingQuery struct {
	Category string
	Window   time.Duration
	HalfLife time.Duration
	Limit    int
	Now      time.Time
}

// DataProvider defines the serving-time catalog lookups.
// This is typically implemented by the database layer.
type DataProvider interface {
	// GetUserProfile returns account age and purchase count.
	// Unknown users return a profile with Known=false, not an error.
	GetUserProfile(ctx context.Context, userID int) (*UserProfile, error)

	// GetPurchasedItems returns every item the user has bought.
	GetPurchasedItems(ctx context.Context, userID int) ([]int, error)

	// GetRecentPurchases returns the user's most recent distinct items, newest first.
	GetRecentPurchases(ctx context.Context, userID int, limit int) ([]int, error)

	// GetTrending returns recency-weighted popular items, best first.
	GetTrending(ctx context.Context, q TrendingQuery) ([]ScoredItem, error)

	// GetCategoryItems returns the item IDs in a category.
	GetCategoryItems(ctx context.Context, category string) ([]int, error)
}

// Engine blends collaborative, content and trending candidates into one
// ranked list. It is safe for concurrent use and never shares a lock with
// training.
type Engine struct {
	config *Config
	logger zerolog.Logger

	models       ModelSource
	dataProvider DataProvider
	reranker     Reranker
	now          func() time.Time

	requestCount  atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	fallbackCount atomic.Int64
	sourceErrors  atomic.Int64

	responses *cache.LRU[*Response]
}

// EngineStats are the engine's running counters.
type EngineStats struct {
	RequestCount  int64 `json:"request_count"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	FallbackCount int64 `json:"fallback_count"`
	SourceErrors  int64 `json:"source_errors"`
}

// NewEngine creates a new hybrid engine reading artifacts from models.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, models ModelSource, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if models == nil {
		return nil, fmt.Errorf("model source is required")
	}

	return &Engine{
		config:    cfg,
		logger:    logger.With().Str("component", "recommend").Logger(),
		models:    models,
		now:       time.Now,
		responses: cache.NewLRU[*Response](cfg.Cache.MaxEntries, cfg.Cache.TTL),
	}, nil
}

// SetDataProvider sets the serving-time catalog lookups.
func (e *Engine) SetDataProvider(dp DataProvider) {
	e.dataProvider = dp
}

// SetReranker installs a post-blend reranking step. nil disables it.
func (e *Engine) SetReranker(r Reranker) {
	e.reranker = r
}

// sourceResult is one candidate source's normalized scores.
type sourceResult struct {
	name   string
	scores map[int]float64
}

// requestContext is everything fetched about the user before scoring.
type requestContext struct {
	profile   *UserProfile
	purchased map[int]struct{}
	recent    []int
	category  map[int]struct{}
	catFailed bool
}

// Recommend returns up to req.N ranked items for a user.
//
// Missing models, uncovered users and failing sources all degrade to
// whatever sources remain. The returned error is non-nil only when ctx
// is already done on entry.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	e.requestCount.Add(1)

	req = e.prepareRequest(req)
	logger := e.logger.With().
		Str("request_id", req.RequestID).
		Int("user_id", req.UserID).
		Logger()

	if resp := e.tryGetCachedResponse(req, start, logger); resp != nil {
		return resp, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Limits.RequestTimeout)
	defer cancel()

	rc := e.loadRequestContext(reqCtx, req, logger)
	weights, tier := e.selectWeights(req, rc.profile)
	results := e.gatherCandidates(reqCtx, req, rc, logger)

	items := blend(results, weights)
	if e.reranker != nil {
		items = e.finalize(items, rc, req, e.poolSize(req.N))
		items = e.reranker.Rerank(reqCtx, items, req.N)
	} else {
		items = e.finalize(items, rc, req, req.N)
	}

	resp := &Response{
		Items: items,
		Metadata: ResponseMetadata{
			RequestID:     req.RequestID,
			UserID:        req.UserID,
			Weights:       weights,
			Tier:          tier,
			SourcesUsed:   sourceNames(results),
			ModelVersions: e.modelVersions(),
			GeneratedAt:   e.now(),
		},
	}
	resp.Metadata.Fallback = !hasSource(results, SourceCollaborative) && !hasSource(results, SourceContent)
	if resp.Metadata.Fallback {
		e.fallbackCount.Add(1)
	}
	resp.Metadata.LatencyMS = time.Since(start).Milliseconds()
	metrics.RecordRecommendation(time.Since(start), resp.Metadata.Fallback, false)

	e.cacheResponse(req, resp)

	logger.Debug().
		Int("returned", len(items)).
		Strs("sources", resp.Metadata.SourcesUsed).
		Bool("fallback", resp.Metadata.Fallback).
		Int64("latency_ms", resp.Metadata.LatencyMS).
		Msg("recommendation complete")

	return resp, nil
}

// prepareRequest applies defaults and generates request ID if needed.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) prepareRequest(req Request) Request {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.N <= 0 {
		req.N = e.config.Limits.DefaultN
	}
	if req.N > e.config.Limits.MaxN {
		req.N = e.config.Limits.MaxN
	}
	return req
}

// poolSize is how many candidates each source contributes.
func (e *Engine) poolSize(n int) int {
	size := n * e.config.Limits.CandidateMultiplier
	if size > e.config.Limits.MaxCandidates {
		size = e.config.Limits.MaxCandidates
	}
	if size < n {
		size = n
	}
	return size
}

// loadRequestContext fetches the user's profile, purchases and category set.
// Every lookup failure is logged and treated as empty.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) loadRequestContext(ctx context.Context, req Request, logger zerolog.Logger) *requestContext {
	rc := &requestContext{
		profile:   &UserProfile{UserID: req.UserID},
		purchased: make(map[int]struct{}),
	}
	if e.dataProvider == nil {
		logger.Warn().Msg("data provider not set")
		return rc
	}

	var (
		purchased []int
		category  []int
		catErr    error
	)
	var g errgroup.Group
	g.Go(func() error {
		profile, err := e.dataProvider.GetUserProfile(ctx, req.UserID)
		if err != nil {
			e.sourceFailed(logger, "user_profile", err)
			return nil
		}
		if profile != nil {
			rc.profile = profile
		}
		return nil
	})
	g.Go(func() error {
		items, err := e.dataProvider.GetPurchasedItems(ctx, req.UserID)
		if err != nil {
			e.sourceFailed(logger, "purchased_items", err)
			return nil
		}
		purchased = items
		return nil
	})
	g.Go(func() error {
		items, err := e.dataProvider.GetRecentPurchases(ctx, req.UserID, e.config.Limits.RecentPurchases)
		if err != nil {
			e.sourceFailed(logger, "recent_purchases", err)
			return nil
		}
		rc.recent = items
		return nil
	})
	if req.Category != "" {
		g.Go(func() error {
			category, catErr = e.dataProvider.GetCategoryItems(ctx, req.Category)
			if catErr != nil {
				e.sourceFailed(logger, "category_items", catErr)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	for _, id := range purchased {
		rc.purchased[id] = struct{}{}
	}
	if req.Category != "" {
		rc.catFailed = catErr != nil
		rc.category = make(map[int]struct{}, len(category))
		for _, id := range category {
			rc.category[id] = struct{}{}
		}
	}
	return rc
}

// selectWeights resolves the request's blend and adaptive tier.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) selectWeights(req Request, profile *UserProfile) (Weights, string) {
	if req.Weights != nil {
		return req.Weights.Normalize(), ""
	}
	if req.Adaptive {
		w, tier := e.config.Adaptive.Select(profile, e.now())
		return w.Normalize(), tier
	}
	return e.config.Weights.Normalize(), ""
}

// gatherCandidates runs every eligible source concurrently.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) gatherCandidates(ctx context.Context, req Request, rc *requestContext, logger zerolog.Logger) []sourceResult {
	pool := e.poolSize(req.N + len(rc.purchased))
	results := make([]sourceResult, 3)

	var g errgroup.Group
	// A category that could not be resolved cannot be enforced on model
	// output, so only the category-aware trending query runs.
	if !rc.catFailed {
		g.Go(func() error {
			results[0] = e.collaborativeSource(req.UserID, rc, pool, logger)
			return nil
		})
		g.Go(func() error {
			results[1] = e.contentSource(rc, pool, logger)
			return nil
		})
	}
	g.Go(func() error {
		results[2] = e.trendingSource(ctx, req, pool, logger)
		return nil
	})
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	used := results[:0]
	for _, r := range results {
		if len(r.scores) > 0 {
			used = append(used, r)
		}
	}
	return used
}

// collaborativeSource scores the user with the active collaborative artifact.
func (e *Engine) collaborativeSource(userID int, rc *requestContext, pool int, logger zerolog.Logger) sourceResult {
	result := sourceResult{name: SourceCollaborative}

	model, ok := e.models.Active(ModelCollaborative)
	if !ok {
		logger.Debug().Err(ErrNoModelAvailable).Str("source", SourceCollaborative).Msg("source skipped")
		return result
	}
	if !model.Artifact.Covers(userID) {
		logger.Debug().Str("source", SourceCollaborative).Msg("user not covered")
		return result
	}

	scores := make(map[int]float64, pool)
	for _, s := range model.Artifact.Score(userID, nil) {
		if !rc.inCategory(s.ItemID) {
			continue
		}
		scores[s.ItemID] = s.Score
		if len(scores) >= pool {
			break
		}
	}
	result.scores = normalizeScores(scores)
	return result
}

// contentSource expands the user's recent purchases through item similarity.
// A candidate similar to several seeds keeps its best similarity.
func (e *Engine) contentSource(rc *requestContext, pool int, logger zerolog.Logger) sourceResult {
	result := sourceResult{name: SourceContent}

	if len(rc.recent) == 0 {
		return result
	}
	model, ok := e.models.Active(ModelContent)
	if !ok {
		logger.Debug().Err(ErrNoModelAvailable).Str("source", SourceContent).Msg("source skipped")
		return result
	}

	scores := make(map[int]float64)
	for _, seed := range rc.recent {
		for _, s := range model.Artifact.Score(seed, nil) {
			if !rc.inCategory(s.ItemID) {
				continue
			}
			if s.Score > scores[s.ItemID] {
				scores[s.ItemID] = s.Score
			}
		}
	}
	result.scores = normalizeScores(topScores(scores, pool))
	return result
}

// trendingSource reads recency-weighted popularity. It is always attempted.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) trendingSource(ctx context.Context, req Request, pool int, logger zerolog.Logger) sourceResult {
	result := sourceResult{name: SourceTrending}
	if e.dataProvider == nil {
		return result
	}

	items, err := e.dataProvider.GetTrending(ctx, TrendingQuery{
		Category: req.Category,
		Window:   e.config.Trending.Window,
		HalfLife: e.config.Trending.HalfLife,
		Limit:    pool,
		Now:      e.now(),
	})
	if err != nil {
		e.sourceFailed(logger, SourceTrending, err)
		return result
	}

	scores := make(map[int]float64, len(items))
	for _, s := range items {
		scores[s.ItemID] = s.Score
	}
	result.scores = normalizeScores(scores)
	return result
}

// sourceFailed counts and logs a degraded lookup.
func (e *Engine) sourceFailed(logger zerolog.Logger, source string, err error) {
	e.sourceErrors.Add(1)
	metrics.RecordSourceError(source)
	logger.Warn().Err(err).Str("source", source).Msg("source lookup failed, degrading")
}

// inCategory reports whether id passes the request's category filter.
func (rc *requestContext) inCategory(id int) bool {
	if rc.category == nil {
		return true
	}
	_, ok := rc.category[id]
	return ok
}

// blend computes the weighted sum per item across sources.
// A source with no score for an item contributes zero.
func blend(results []sourceResult, w Weights) []Candidate {
	byItem := make(map[int]*Candidate)
	get := func(id int) *Candidate {
		c, ok := byItem[id]
		if !ok {
			c = &Candidate{ItemID: id}
			byItem[id] = c
		}
		return c
	}

	for _, r := range results {
		for id, score := range r.scores {
			c := get(id)
			switch r.name {
			case SourceCollaborative:
				c.Scores.Collaborative = score
			case SourceContent:
				c.Scores.Content = score
			case SourceTrending:
				c.Scores.Trending = score
			}
		}
	}

	items := make([]Candidate, 0, len(byItem))
	for _, c := range byItem {
		c.BlendedScore = w.Collaborative*c.Scores.Collaborative +
			w.Content*c.Scores.Content +
			w.Trending*c.Scores.Trending
		items = append(items, *c)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].BlendedScore != items[j].BlendedScore {
			return items[i].BlendedScore > items[j].BlendedScore
		}
		return items[i].ItemID < items[j].ItemID
	})
	return items
}

// finalize drops purchased items unless requested and truncates to limit.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) finalize(items []Candidate, rc *requestContext, req Request, limit int) []Candidate {
	out := make([]Candidate, 0, limit)
	for i := range items {
		if !req.IncludePurchased {
			if _, bought := rc.purchased[items[i].ItemID]; bought {
				continue
			}
		}
		out = append(out, items[i])
		if len(out) == limit {
			break
		}
	}
	return out
}

// modelVersions reports which version of each model served the request.
func (e *Engine) modelVersions() map[ModelType]int {
	out := make(map[ModelType]int)
	for _, mt := range AllModelTypes() {
		if m, ok := e.models.Active(mt); ok {
			out[mt] = m.VersionNumber
		}
	}
	return out
}

func sourceNames(results []sourceResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.name)
	}
	return names
}

func hasSource(results []sourceResult, name string) bool {
	for _, r := range results {
		if r.name == name {
			return true
		}
	}
	return false
}

// topScores keeps the k highest scores.
func topScores(scores map[int]float64, k int) map[int]float64 {
	if len(scores) <= k {
		return scores
	}
	ranked := make([]ScoredItem, 0, len(scores))
	for id, s := range scores {
		ranked = append(ranked, ScoredItem{ItemID: id, Score: s})
	}
	SortScored(ranked)
	out := make(map[int]float64, k)
	for _, s := range ranked[:k] {
		out[s.ItemID] = s.Score
	}
	return out
}

// SortScored orders scores descending with ties broken by item ID.
func SortScored(items []ScoredItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ItemID < items[j].ItemID
	})
}

// normalizeScores normalizes scores to [0, 1] range using min-max normalization.
func normalizeScores(scores map[int]float64) map[int]float64 {
	if len(scores) == 0 {
		return scores
	}

	var minScore, maxScore float64
	first := true
	for _, score := range scores {
		if first {
			minScore, maxScore = score, score
			first = false
			continue
		}
		if score < minScore {
			minScore = score
		}
		if score > maxScore {
			maxScore = score
		}
	}

	rang := maxScore - minScore
	if rang == 0 {
		// All scores are equal
		for id := range scores {
			scores[id] = 1
		}
		return scores
	}

	for id, score := range scores {
		scores[id] = (score - minScore) / rang
	}
	return scores
}

// Stats returns the engine's running counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		RequestCount:  e.requestCount.Load(),
		CacheHits:     e.cacheHits.Load(),
		CacheMisses:   e.cacheMisses.Load(),
		FallbackCount: e.fallbackCount.Load(),
		SourceErrors:  e.sourceErrors.Load(),
	}
}

// GetConfig returns a copy of the current configuration.
func (e *Engine) GetConfig() *Config {
	return e.config.Clone()
}

// InvalidateCache drops every cached response. Called after a model activation.
func (e *Engine) InvalidateCache() {
	e.responses.Clear()
	e.logger.Debug().Msg("cache cleared")
}

// tryGetCachedResponse attempts to retrieve a cached response.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) tryGetCachedResponse(req Request, start time.Time, logger zerolog.Logger) *Response {
	if !e.config.Cache.Enabled {
		return nil
	}

	resp := e.checkCache(cacheKey(req))
	if resp == nil {
		e.cacheMisses.Add(1)
		return nil
	}

	e.cacheHits.Add(1)
	resp.Metadata.RequestID = req.RequestID
	resp.Metadata.CacheHit = true
	resp.Metadata.LatencyMS = time.Since(start).Milliseconds()
	metrics.RecordRecommendation(time.Since(start), resp.Metadata.Fallback, true)
	logger.Debug().Msg("cache hit")
	return resp
}

// cacheKey generates a cache key for a request.
//
//nolint:gocritic // hugeParam: req passed by value for simplicity
func cacheKey(req Request) string {
	w := "cfg"
	if req.Weights != nil {
		w = fmt.Sprintf("%g/%g/%g", req.Weights.Collaborative, req.Weights.Content, req.Weights.Trending)
	} else if req.Adaptive {
		w = "adaptive"
	}
	return fmt.Sprintf("rec:%d:%d:%s:%t:%s", req.UserID, req.N, w, req.IncludePurchased, req.Category)
}

// checkCache returns a copy of a live cached response.
func (e *Engine) checkCache(key string) *Response {
	cached, ok := e.responses.Get(key)
	if !ok {
		return nil
	}
	return cached.Clone()
}

// cacheResponse stores the response in cache if enabled.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) cacheResponse(req Request, resp *Response) {
	if !e.config.Cache.Enabled {
		return
	}
	e.responses.Add(cacheKey(req), resp.Clone())
}
