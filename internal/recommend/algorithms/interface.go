// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package algorithms implements the trainers behind each model type and
// the FP-growth association rule miner.
//
// Every trainer satisfies the Trainer interface and produces an artifact
// implementing recommend.Artifact. Trainers are pure functions of the
// dataset and hyperparameters: they hold no state between calls, report
// progress at fixed checkpoints, and observe cancellation through the
// context.
//
// # Model Types
//
//   - Collaborative: implicit-feedback ALS matrix factorization
//   - Content: TF-IDF cosine similarity over product text
//   - Clustering: k-means++ over standardized RFM features
//   - Reorder: gradient-boosted trees over (user, item) purchase features
//
// # Thread Safety
//
// Artifacts are immutable once returned and are safe for concurrent use.
package algorithms

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// Result is a successful training outcome.
type Result struct {
	Artifact recommend.Artifact
	Metrics  map[string]float64
}

// Trainer fits one model type.
type Trainer interface {
	// ModelType identifies the family this trainer produces.
	ModelType() recommend.ModelType

	// Train fits a model. Progress events are sent on progress, which may
	// be nil. A failure returns a nil Result; errors wrapping
	// recommend.ErrInsufficientData signal a data shortfall.
	Train(ctx context.Context, ds *recommend.Dataset, hp recommend.Hyperparameters, progress chan<- recommend.Progress) (*Result, error)
}

// TrainerFor returns the trainer for a model type.
func TrainerFor(mt recommend.ModelType) (Trainer, error) {
	switch mt {
	case recommend.ModelCollaborative:
		return CollaborativeTrainer{}, nil
	case recommend.ModelContent:
		return ContentTrainer{}, nil
	case recommend.ModelClustering:
		return ClusteringTrainer{}, nil
	case recommend.ModelReorder:
		return ReorderTrainer{}, nil
	default:
		return nil, fmt.Errorf("no trainer for model type %q", mt)
	}
}

// DefaultHyperparameters returns the defaults a trainer applies for absent keys.
func DefaultHyperparameters(mt recommend.ModelType) recommend.Hyperparameters {
	switch mt {
	case recommend.ModelCollaborative:
		c := DefaultCollaborativeConfig()
		return recommend.Hyperparameters{
			"factors":          c.NumFactors,
			"iterations":       c.NumIterations,
			"regularization":   c.Regularization,
			"alpha":            c.Alpha,
			"min_interactions": c.MinInteractions,
		}
	case recommend.ModelContent:
		c := DefaultContentConfig()
		return recommend.Hyperparameters{
			"min_similarity": c.MinSimilarity,
			"max_features":   c.MaxFeatures,
		}
	case recommend.ModelClustering:
		c := DefaultClusteringConfig()
		return recommend.Hyperparameters{
			"k":                 c.K,
			"n_init":            c.NumInit,
			"max_iter":          c.MaxIter,
			"seed":              c.Seed,
			"silhouette_sample": c.SilhouetteSample,
		}
	case recommend.ModelReorder:
		c := DefaultReorderConfig()
		return recommend.Hyperparameters{
			"n_estimators":          c.NumEstimators,
			"max_depth":             c.MaxDepth,
			"learning_rate":         c.LearningRate,
			"early_stopping_rounds": c.EarlyStoppingRounds,
			"min_rows":              c.MinRows,
			"validation_fraction":   c.ValidationFraction,
		}
	default:
		return recommend.Hyperparameters{}
	}
}

// checkpoint reports a fixed training stage and checks for cancellation.
// The send blocks until the consumer reads it or ctx is done.
func checkpoint(ctx context.Context, progress chan<- recommend.Progress, stage recommend.Stage, percent float64, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if progress == nil {
		return nil
	}
	select {
	case progress <- recommend.Progress{Stage: stage, Percent: percent, Message: msg, At: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ContextCancelled checks if the context has been canceled.
func ContextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// rankScores converts a score map to a sorted slice, best first.
func rankScores(scores map[int]float64) []recommend.ScoredItem {
	out := make([]recommend.ScoredItem, 0, len(scores))
	for id, s := range scores {
		out = append(out, recommend.ScoredItem{ItemID: id, Score: s})
	}
	recommend.SortScored(out)
	return out
}

// cosineSimilarity computes cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(values)))
}

// Ensure all artifacts implement the interface.
var (
	_ recommend.Artifact = (*CollaborativeModel)(nil)
	_ recommend.Artifact = (*ContentModel)(nil)
	_ recommend.Artifact = (*ClusteringModel)(nil)
	_ recommend.Artifact = (*ReorderModel)(nil)
)
