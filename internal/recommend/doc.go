// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package recommend defines the shared model types and the hybrid serving
// engine for catalog recommendations.
//
// # Architecture
//
// Trained artifacts are produced by the algorithms package, persisted by
// the versions package and published to a process-wide model cache. The
// engine blends three candidate sources at request time:
//
//   - Collaborative: matrix factorization over purchase history
//   - Content: TF-IDF similarity seeded by the user's recent purchases
//   - Trending: recency-weighted popularity, always available
//
// # Adaptive Weights
//
// With adaptive mode the blend follows the user's history:
//
//   - New (account < 30 days or < 3 purchases): trending-heavy
//   - Growing (< 10 purchases): content-heavy
//   - Established: collaborative-heavy
//
// # Degradation
//
// A missing model, an uncovered user or a failing lookup removes that
// source from the blend; it never surfaces as an error. A user with no
// coverage at all receives pure trending results.
//
// # Usage
//
//	engine, err := recommend.NewEngine(cfg, modelCache, logger)
//	engine.SetDataProvider(db)
//
//	resp, err := engine.Recommend(ctx, recommend.Request{
//	    UserID:   userID,
//	    N:        10,
//	    Adaptive: true,
//	})
//
// # Thread Safety
//
// The engine is safe for concurrent use. It reads artifacts through the
// ModelSource without locks and never shares a lock with training.
package recommend
