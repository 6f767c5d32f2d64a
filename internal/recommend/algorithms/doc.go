// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package algorithms implements the model trainers and the association rule
// miner.
//
// Each trainer turns a recommend.Dataset into an immutable artifact that
// implements recommend.Artifact. Trainers hold no state between runs, so
// the orchestrator can run several at once.
//
// # Trainers
//
// Collaborative (CollaborativeTrainer):
//   - Implicit-feedback ALS over purchase quantities
//   - Confidence is 1 + alpha * quantity
//   - Metrics: users, items, interactions, sparsity, train_rmse, factors
//
// Content (ContentTrainer):
//   - TF-IDF over product name, description, specification and brand
//   - Dense cosine similarity matrix stored as float32
//   - Metrics: items, vocabulary_size, mean_similarity, pairs_above_floor
//
// Clustering (ClusteringTrainer):
//   - k-means++ over standardized RFM features
//   - Best of several seeded restarts by inertia
//   - Metrics: k, users, inertia, silhouette
//
// Reorder (ReorderTrainer):
//   - Gradient boosted trees over per user-item purchase history features
//   - Histogram splits with early stopping on a held-out split
//   - Metrics: rows, accuracy, precision, recall, val_logloss, best_iteration
//
// Hyperparameters arrive as a free-form map. Each trainer overlays the
// keys it knows onto its defaults; see DefaultHyperparameters.
//
// # Progress
//
// Trainers report the fixed stages data_prepared, fitting, evaluating and
// finalizing through checkpoint, which also observes cancellation. A
// cancelled context ends training at the next checkpoint or inner loop
// boundary with ctx.Err().
//
// # Frequently Bought Together
//
// MineFBT runs FP-growth over order baskets and derives one-to-one rules
// filtered by support, confidence and lift. The resulting RuleSet indexes
// rules by antecedent for constant-time lookup.
//
// # Persistence
//
// Artifacts travel through Envelope, which gob registers with every
// concrete model type so the storage layer can decode without knowing
// which trainer produced the blob.
package algorithms
