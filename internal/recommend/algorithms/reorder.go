// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// ReorderConfig contains configuration for gradient-boosted reorder prediction.
type ReorderConfig struct {
	NumEstimators       int
	MaxDepth            int
	LearningRate        float64
	EarlyStoppingRounds int

	// MinRows is the smallest (user, item) table that can be fit.
	MinRows int

	// ValidationFraction is the share of rows held out for early stopping
	// and evaluation.
	ValidationFraction float64

	MinSamplesLeaf int
	Seed           int64
}

// MinRowsFloor is the smallest (user, item) table any reorder fit accepts.
const MinRowsFloor = 50

// DefaultReorderConfig returns default reorder configuration.
func DefaultReorderConfig() ReorderConfig {
	return ReorderConfig{
		NumEstimators:       100,
		MaxDepth:            4,
		LearningRate:        0.1,
		EarlyStoppingRounds: 10,
		MinRows:             MinRowsFloor,
		ValidationFraction:  0.2,
		MinSamplesLeaf:      2,
		Seed:                42,
	}
}

func reorderConfigFrom(hp recommend.Hyperparameters) ReorderConfig {
	d := DefaultReorderConfig()
	cfg := ReorderConfig{
		NumEstimators:       hp.Int("n_estimators", d.NumEstimators),
		MaxDepth:            hp.Int("max_depth", d.MaxDepth),
		LearningRate:        hp.Float("learning_rate", d.LearningRate),
		EarlyStoppingRounds: hp.Int("early_stopping_rounds", d.EarlyStoppingRounds),
		MinRows:             hp.Int("min_rows", d.MinRows),
		ValidationFraction:  hp.Float("validation_fraction", d.ValidationFraction),
		MinSamplesLeaf:      hp.Int("min_samples_leaf", d.MinSamplesLeaf),
		Seed:                int64(hp.Int("seed", int(d.Seed))),
	}
	cfg.MinRows = max(cfg.MinRows, MinRowsFloor)
	if cfg.NumEstimators < 1 {
		cfg.NumEstimators = d.NumEstimators
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = d.MaxDepth
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		cfg.LearningRate = d.LearningRate
	}
	if cfg.ValidationFraction <= 0 || cfg.ValidationFraction >= 1 {
		cfg.ValidationFraction = d.ValidationFraction
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	return cfg
}

// ReorderFeatures are the per (user, item) purchase aggregates.
type ReorderFeatures struct {
	PurchaseFrequency    float64
	AvgDaysBetweenOrders float64
	StdDaysBetweenOrders float64
	TotalQuantity        float64
	AvgPrice             float64
	DaysSinceLast        float64
	LastPurchase         time.Time
}

// ReorderFeatureNames lists the model inputs in vector order.
var ReorderFeatureNames = []string{
	"purchase_frequency",
	"avg_days_between_orders",
	"std_days_between_orders",
	"total_quantity",
	"avg_price",
	"days_since_last_purchase",
}

func (f *ReorderFeatures) vector() []float64 {
	return []float64{
		f.PurchaseFrequency,
		f.AvgDaysBetweenOrders,
		f.StdDaysBetweenOrders,
		f.TotalQuantity,
		f.AvgPrice,
		f.DaysSinceLast,
	}
}

// ReorderCycle explains when an item is due for repurchase.
type ReorderCycle struct {
	ItemID         int       `json:"item_id"`
	Probability    float64   `json:"probability"`
	AvgDaysBetween float64   `json:"avg_days_between"`
	DaysSinceLast  float64   `json:"days_since_last"`
	DaysUntilDue   float64   `json:"days_until_due"`
	LastPurchase   time.Time `json:"last_purchase"`
}

// ReorderTrainer fits gradient-boosted trees predicting whether a user
// will buy an item again.
type ReorderTrainer struct{}

// ModelType implements Trainer.
func (ReorderTrainer) ModelType() recommend.ModelType {
	return recommend.ModelReorder
}

// ReorderModel is the boosted ensemble plus the feature rows it scores.
type ReorderModel struct {
	Trees         []Tree
	BaseScore     float64
	LearningRate  float64
	FeatureNames  []string
	Pairs         map[int]map[int]ReorderFeatures
	ReferenceTime time.Time
}

// Train builds the (user, item) table and fits the ensemble.
func (ReorderTrainer) Train(ctx context.Context, ds *recommend.Dataset, hp recommend.Hyperparameters, progress chan<- recommend.Progress) (*Result, error) {
	cfg := reorderConfigFrom(hp)

	pairs := BuildReorderFeatures(ds.Interactions, ds.ReferenceTime)
	keys := sortedPairKeys(pairs)
	if len(keys) < cfg.MinRows {
		return nil, recommend.InsufficientData("user-item rows", len(keys), cfg.MinRows)
	}

	x := make([][]float64, len(keys))
	y := make([]float64, len(keys))
	for i, k := range keys {
		f := pairs[k[0]][k[1]]
		x[i] = f.vector()
		if f.PurchaseFrequency > 1 {
			y[i] = 1
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic split
	perm := rng.Perm(len(keys))
	nVal := int(float64(len(keys)) * cfg.ValidationFraction)
	if nVal < 1 {
		nVal = 1
	}
	if len(keys)-nVal < 1 {
		return nil, recommend.InsufficientData("user-item training rows", len(keys)-nVal, 1)
	}
	xTrain, yTrain := make([][]float64, 0, len(keys)-nVal), make([]float64, 0, len(keys)-nVal)
	xVal, yVal := make([][]float64, 0, nVal), make([]float64, 0, nVal)
	for i, p := range perm {
		if i < nVal {
			xVal, yVal = append(xVal, x[p]), append(yVal, y[p])
		} else {
			xTrain, yTrain = append(xTrain, x[p]), append(yTrain, y[p])
		}
	}

	if err := checkpoint(ctx, progress, recommend.StageDataPrepared, 10,
		fmt.Sprintf("%d rows (%d train, %d validation)", len(keys), len(xTrain), len(xVal))); err != nil {
		return nil, err
	}

	bcfg := boostConfig{
		NumEstimators:       cfg.NumEstimators,
		MaxDepth:            cfg.MaxDepth,
		LearningRate:        cfg.LearningRate,
		EarlyStoppingRounds: cfg.EarlyStoppingRounds,
		MinSamplesLeaf:      cfg.MinSamplesLeaf,
		Lambda:              1.0,
		MaxBins:             32,
	}
	var progressErr error
	boosted, err := fitBoosted(ctx, xTrain, yTrain, xVal, yVal, bcfg, func(round int) {
		if round%10 != 0 || progressErr != nil {
			return
		}
		progressErr = checkpoint(ctx, progress, recommend.StageFitting,
			10+70*float64(round)/float64(cfg.NumEstimators),
			fmt.Sprintf("boosting round %d/%d", round+1, cfg.NumEstimators))
	})
	if err != nil {
		return nil, err
	}
	if progressErr != nil {
		return nil, progressErr
	}

	if err := checkpoint(ctx, progress, recommend.StageEvaluating, 85, "scoring validation rows"); err != nil {
		return nil, err
	}

	var tp, fp, tn, fn float64
	for i, row := range xVal {
		pred := sigmoid(boosted.predictLogit(row, cfg.LearningRate)) >= 0.5
		actual := yVal[i] == 1
		switch {
		case pred && actual:
			tp++
		case pred && !actual:
			fp++
		case !pred && actual:
			fn++
		default:
			tn++
		}
	}
	metrics := map[string]float64{
		"rows":           float64(len(keys)),
		"accuracy":       safeDiv(tp+tn, tp+tn+fp+fn),
		"precision":      safeDiv(tp, tp+fp),
		"recall":         safeDiv(tp, tp+fn),
		"val_logloss":    boosted.valLogLoss,
		"best_iteration": float64(boosted.bestIteration),
	}

	if err := checkpoint(ctx, progress, recommend.StageFinalizing, 95, "building artifact"); err != nil {
		return nil, err
	}

	return &Result{
		Artifact: &ReorderModel{
			Trees:         boosted.trees,
			BaseScore:     boosted.baseScore,
			LearningRate:  cfg.LearningRate,
			FeatureNames:  ReorderFeatureNames,
			Pairs:         pairs,
			ReferenceTime: ds.ReferenceTime,
		},
		Metrics: metrics,
	}, nil
}

// BuildReorderFeatures aggregates interactions per (user, item). Gaps are
// measured between distinct orders; days-since is relative to ref.
func BuildReorderFeatures(interactions []recommend.InteractionRecord, ref time.Time) map[int]map[int]ReorderFeatures {
	type agg struct {
		orders   map[int]time.Time
		quantity float64
		priceSum float64
		lines    int
	}
	byPair := make(map[[2]int]*agg)
	for _, inter := range interactions {
		key := [2]int{inter.UserID, inter.ItemID}
		a, ok := byPair[key]
		if !ok {
			a = &agg{orders: make(map[int]time.Time)}
			byPair[key] = a
		}
		if t, seen := a.orders[inter.OrderID]; !seen || inter.Timestamp.Before(t) {
			a.orders[inter.OrderID] = inter.Timestamp
		}
		qty := float64(inter.Quantity)
		if qty <= 0 {
			qty = 1
		}
		a.quantity += qty
		a.priceSum += inter.UnitPrice
		a.lines++
	}

	out := make(map[int]map[int]ReorderFeatures)
	for key, a := range byPair {
		times := make([]time.Time, 0, len(a.orders))
		for _, t := range a.orders {
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		gaps := make([]float64, 0, len(times))
		for i := 1; i < len(times); i++ {
			gaps = append(gaps, times[i].Sub(times[i-1]).Hours()/24)
		}
		mean, std := meanStd(gaps)
		last := times[len(times)-1]

		if out[key[0]] == nil {
			out[key[0]] = make(map[int]ReorderFeatures)
		}
		out[key[0]][key[1]] = ReorderFeatures{
			PurchaseFrequency:    float64(len(times)),
			AvgDaysBetweenOrders: mean,
			StdDaysBetweenOrders: std,
			TotalQuantity:        a.quantity,
			AvgPrice:             a.priceSum / float64(a.lines),
			DaysSinceLast:        ref.Sub(last).Hours() / 24,
			LastPurchase:         last,
		}
	}
	return out
}

func sortedPairKeys(pairs map[int]map[int]ReorderFeatures) [][2]int {
	keys := make([][2]int, 0)
	for u, items := range pairs {
		for i := range items {
			keys = append(keys, [2]int{u, i})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	return keys
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// ModelType implements recommend.Artifact.
func (m *ReorderModel) ModelType() recommend.ModelType {
	return recommend.ModelReorder
}

// Covers reports whether the user has purchase history in the model.
func (m *ReorderModel) Covers(userID int) bool {
	_, ok := m.Pairs[userID]
	return ok
}

// Probability returns the reorder probability for one (user, item) pair.
func (m *ReorderModel) Probability(userID, itemID int) (float64, bool) {
	f, ok := m.Pairs[userID][itemID]
	if !ok {
		return 0, false
	}
	return m.predict(&f), true
}

func (m *ReorderModel) predict(f *ReorderFeatures) float64 {
	x := f.vector()
	logit := m.BaseScore
	for i := range m.Trees {
		logit += m.LearningRate * m.Trees[i].predict(x)
	}
	return sigmoid(logit)
}

// Score returns reorder probabilities. Reorder scores items the user has
// already bought, so a nil candidate list means the user's full history.
func (m *ReorderModel) Score(userID int, candidates []int) []recommend.ScoredItem {
	items, ok := m.Pairs[userID]
	if !ok {
		return nil
	}
	scores := make(map[int]float64)
	if candidates == nil {
		for id, f := range items {
			scores[id] = m.predict(&f)
		}
	} else {
		for _, id := range candidates {
			if f, ok := items[id]; ok {
				scores[id] = m.predict(&f)
			}
		}
	}
	return rankScores(scores)
}

// Explain returns the repurchase cycle for the user's items, most likely first.
func (m *ReorderModel) Explain(userID int, limit int) []ReorderCycle {
	ranked := m.Score(userID, nil)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]ReorderCycle, 0, len(ranked))
	for _, s := range ranked {
		f := m.Pairs[userID][s.ItemID]
		due := 0.0
		if f.AvgDaysBetweenOrders > 0 {
			due = f.AvgDaysBetweenOrders - f.DaysSinceLast
		}
		out = append(out, ReorderCycle{
			ItemID:         s.ItemID,
			Probability:    s.Score,
			AvgDaysBetween: f.AvgDaysBetweenOrders,
			DaysSinceLast:  f.DaysSinceLast,
			DaysUntilDue:   due,
			LastPurchase:   f.LastPurchase,
		})
	}
	return out
}
