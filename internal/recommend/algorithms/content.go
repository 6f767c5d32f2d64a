// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// ContentConfig contains configuration for TF-IDF content similarity.
type ContentConfig struct {
	// MinSimilarity is the floor below which pairs are not recommended.
	MinSimilarity float64

	// MaxFeatures caps the vocabulary to the most frequent terms.
	MaxFeatures int

	// MinProducts is the smallest catalog that can be fit.
	MinProducts int
}

// DefaultContentConfig returns default content configuration.
func DefaultContentConfig() ContentConfig {
	return ContentConfig{
		MinSimilarity: 0.1,
		MaxFeatures:   5000,
		MinProducts:   2,
	}
}

func contentConfigFrom(hp recommend.Hyperparameters) ContentConfig {
	d := DefaultContentConfig()
	cfg := ContentConfig{
		MinSimilarity: hp.Float("min_similarity", d.MinSimilarity),
		MaxFeatures:   hp.Int("max_features", d.MaxFeatures),
		MinProducts:   d.MinProducts,
	}
	if cfg.MinSimilarity < 0 {
		cfg.MinSimilarity = 0
	}
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = d.MaxFeatures
	}
	return cfg
}

// ContentTrainer builds an item-item cosine similarity matrix from TF-IDF
// vectors over name, description, specification and brand.
type ContentTrainer struct{}

// ModelType implements Trainer.
func (ContentTrainer) ModelType() recommend.ModelType {
	return recommend.ModelContent
}

// ContentModel is the dense similarity matrix with its item ordering.
type ContentModel struct {
	ItemIDs       []int
	ItemIndex     map[int]int
	Similarity    [][]float32
	MinSimilarity float64
}

// sparseVec is a term-index to weight map.
type sparseVec map[int]float64

// Train fits TF-IDF vectors and the similarity matrix.
func (ContentTrainer) Train(ctx context.Context, ds *recommend.Dataset, hp recommend.Hyperparameters, progress chan<- recommend.Progress) (*Result, error) {
	cfg := contentConfigFrom(hp)

	if len(ds.Products) < cfg.MinProducts {
		return nil, recommend.InsufficientData("products", len(ds.Products), cfg.MinProducts)
	}

	docs := make([][]string, len(ds.Products))
	for i := range ds.Products {
		docs[i] = tokenize(productText(&ds.Products[i]))
	}
	vocab := buildVocabulary(docs, cfg.MaxFeatures)

	if err := checkpoint(ctx, progress, recommend.StageDataPrepared, 10,
		fmt.Sprintf("%d products, %d terms", len(docs), len(vocab))); err != nil {
		return nil, err
	}

	vectors := tfidf(docs, vocab)

	if err := checkpoint(ctx, progress, recommend.StageFitting, 30, "computing pairwise similarity"); err != nil {
		return nil, err
	}

	n := len(vectors)
	sim, err := similarityMatrix(ctx, vectors, len(vocab))
	if err != nil {
		return nil, err
	}

	if err := checkpoint(ctx, progress, recommend.StageEvaluating, 85, "summarizing similarity"); err != nil {
		return nil, err
	}

	var total float64
	var pairs, above int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := float64(sim[i][j])
			total += s
			pairs++
			if s >= cfg.MinSimilarity {
				above++
			}
		}
	}
	mean := 0.0
	if pairs > 0 {
		mean = total / float64(pairs)
	}

	if err := checkpoint(ctx, progress, recommend.StageFinalizing, 95, "building artifact"); err != nil {
		return nil, err
	}

	model := &ContentModel{
		ItemIDs:       make([]int, n),
		ItemIndex:     make(map[int]int, n),
		Similarity:    sim,
		MinSimilarity: cfg.MinSimilarity,
	}
	for i := range ds.Products {
		model.ItemIDs[i] = ds.Products[i].ID
		model.ItemIndex[ds.Products[i].ID] = i
	}

	return &Result{
		Artifact: model,
		Metrics: map[string]float64{
			"items":             float64(n),
			"vocabulary_size":   float64(len(vocab)),
			"mean_similarity":   mean,
			"pairs_above_floor": float64(above),
		},
	}, nil
}

// productText concatenates the fields that describe a product.
func productText(p *recommend.Product) string {
	return strings.Join([]string{p.Name, p.Description, p.Specification, p.Brand}, " ")
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "with": {}, "this": {},
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// buildVocabulary keeps the maxFeatures most frequent terms across the corpus.
func buildVocabulary(docs [][]string, maxFeatures int) map[string]int {
	counts := make(map[string]int)
	for _, doc := range docs {
		for _, t := range doc {
			counts[t]++
		}
	}

	terms := make([]string, 0, len(counts))
	for t := range counts {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	for i, t := range terms {
		vocab[t] = i
	}
	return vocab
}

// tfidf returns L2-normalized vectors using raw term counts and smoothed
// idf = ln((1+n)/(1+df)) + 1.
func tfidf(docs [][]string, vocab map[string]int) []sparseVec {
	n := len(docs)
	df := make([]int, len(vocab))
	counts := make([]map[int]int, n)

	for d, doc := range docs {
		counts[d] = make(map[int]int)
		for _, t := range doc {
			if idx, ok := vocab[t]; ok {
				counts[d][idx]++
			}
		}
		for idx := range counts[d] {
			df[idx]++
		}
	}

	vectors := make([]sparseVec, n)
	for d := range docs {
		vec := make(sparseVec, len(counts[d]))
		var norm float64
		for idx, c := range counts[d] {
			idf := math.Log(float64(1+n)/float64(1+df[idx])) + 1
			w := float64(c) * idf
			vec[idx] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for idx := range vec {
				vec[idx] /= norm
			}
		}
		vectors[d] = vec
	}
	return vectors
}

// similarityMatrix computes cosine similarity between unit vectors through
// an inverted index. The diagonal is 1 for non-empty documents.
func similarityMatrix(ctx context.Context, vectors []sparseVec, numTerms int) ([][]float32, error) {
	n := len(vectors)
	type posting struct {
		doc    int
		weight float64
	}
	index := make([][]posting, numTerms)
	for d, vec := range vectors {
		for idx, w := range vec {
			index[idx] = append(index[idx], posting{doc: d, weight: w})
		}
	}

	sim := make([][]float32, n)
	for i := range sim {
		sim[i] = make([]float32, n)
	}

	acc := make([]float64, n)
	for i, vec := range vectors {
		if i%256 == 0 && ContextCancelled(ctx) {
			return nil, ctx.Err()
		}
		for j := range acc {
			acc[j] = 0
		}
		for idx, w := range vec {
			for _, p := range index[idx] {
				if p.doc >= i {
					acc[p.doc] += w * p.weight
				}
			}
		}
		for j := i; j < n; j++ {
			s := float32(acc[j])
			sim[i][j] = s
			sim[j][i] = s
		}
	}
	return sim, nil
}

// ModelType implements recommend.Artifact.
func (m *ContentModel) ModelType() recommend.ModelType {
	return recommend.ModelContent
}

// Covers reports whether the item was in the training catalog.
func (m *ContentModel) Covers(itemID int) bool {
	_, ok := m.ItemIndex[itemID]
	return ok
}

// Score returns items similar to itemID at or above the similarity floor.
// The item itself is never returned.
func (m *ContentModel) Score(itemID int, candidates []int) []recommend.ScoredItem {
	row, ok := m.ItemIndex[itemID]
	if !ok {
		return nil
	}
	sims := m.Similarity[row]

	scores := make(map[int]float64)
	consider := func(j int) {
		if j == row {
			return
		}
		s := float64(sims[j])
		if s >= m.MinSimilarity && s > 0 {
			scores[m.ItemIDs[j]] = s
		}
	}

	if candidates == nil {
		for j := range sims {
			consider(j)
		}
	} else {
		for _, id := range candidates {
			if j, ok := m.ItemIndex[id]; ok {
				consider(j)
			}
		}
	}
	return rankScores(scores)
}

// Pairwise returns the cosine similarity of two catalog items, or 0 when
// either was not in the training catalog.
func (m *ContentModel) Pairwise(a, b int) float64 {
	i, ok := m.ItemIndex[a]
	if !ok {
		return 0
	}
	j, ok := m.ItemIndex[b]
	if !ok {
		return 0
	}
	return float64(m.Similarity[i][j])
}

// Similar returns the top n items similar to itemID.
func (m *ContentModel) Similar(itemID, n int) []recommend.ScoredItem {
	ranked := m.Score(itemID, nil)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
