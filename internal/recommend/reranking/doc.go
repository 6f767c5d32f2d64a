// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package reranking reorders blended recommendation lists for diversity.
//
// Reranking runs after the hybrid blend and the purchased-item filter:
//
//	sources -> blend -> filter -> MMR -> top N
//
// # Maximal Marginal Relevance
//
// MMR picks items greedily, each time taking the candidate with the best
//
//	lambda * blended(i) - (1 - lambda) * max sim(i, s) for s already picked
//
// where sim is the TF-IDF cosine similarity of the active content model.
// lambda = 1 keeps the blended order. With no content model active, the
// list is truncated unchanged.
//
// Reference: Carbonell and Goldstein, "The Use of MMR, Diversity-Based
// Reranking for Reordering Documents and Producing Summaries", SIGIR 1998.
package reranking
