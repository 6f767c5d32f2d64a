// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package reranking

import (
	"context"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// maxRerankSize bounds the similarity matrix.
const maxRerankSize = 1000

// PairwiseSimilarity is implemented by artifacts that can compare two items.
type PairwiseSimilarity interface {
	Pairwise(a, b int) float64
}

// MMR implements Maximal Marginal Relevance over blended candidates.
type MMR struct {
	lambda float64
	models recommend.ModelSource
}

// NewMMR creates an MMR reranker reading similarities from the active
// content model. lambda is clamped to [0, 1].
func NewMMR(lambda float64, models recommend.ModelSource) *MMR {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return &MMR{lambda: lambda, models: models}
}

// Name returns the reranker identifier.
func (m *MMR) Name() string {
	return "mmr"
}

// Lambda returns the relevance weight.
func (m *MMR) Lambda() float64 {
	return m.lambda
}

// Rerank returns at most k candidates in MMR order. Scores are left as
// blended so callers can still see why an item was chosen.
func (m *MMR) Rerank(ctx context.Context, items []recommend.Candidate, k int) []recommend.Candidate {
	if k <= 0 || len(items) == 0 {
		return items[:0]
	}
	if len(items) > maxRerankSize {
		items = items[:maxRerankSize]
	}
	if k > len(items) {
		k = len(items)
	}

	sim := m.similarity()
	if m.lambda >= 1 || sim == nil {
		return items[:k]
	}

	n := len(items)
	// maxSim[i] is the highest similarity of i to anything selected so far.
	maxSim := make([]float64, n)
	taken := make([]bool, n)
	selected := make([]recommend.Candidate, 0, k)

	for len(selected) < k {
		if ctx.Err() != nil {
			break
		}
		best := -1
		var bestScore float64
		for i := range items {
			if taken[i] {
				continue
			}
			score := m.lambda*items[i].BlendedScore - (1-m.lambda)*maxSim[i]
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		taken[best] = true
		selected = append(selected, items[best])

		for i := range items {
			if taken[i] {
				continue
			}
			if s := sim.Pairwise(items[i].ItemID, items[best].ItemID); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	// A cancelled request still gets a full list in blended order.
	if len(selected) < k {
		for i := range items {
			if !taken[i] {
				selected = append(selected, items[i])
				if len(selected) == k {
					break
				}
			}
		}
	}
	return selected
}

func (m *MMR) similarity() PairwiseSimilarity {
	if m.models == nil {
		return nil
	}
	active, ok := m.models.Active(recommend.ModelContent)
	if !ok {
		return nil
	}
	sim, ok := active.Artifact.(PairwiseSimilarity)
	if !ok {
		return nil
	}
	return sim
}

var _ recommend.Reranker = (*MMR)(nil)
