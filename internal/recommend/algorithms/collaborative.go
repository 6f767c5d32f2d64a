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

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// CollaborativeConfig contains configuration for ALS matrix factorization.
type CollaborativeConfig struct {
	// NumFactors is the dimension of the latent factor vectors.
	// Typical range: 16-200.
	NumFactors int

	// NumIterations is the number of ALS iterations to run.
	// Typical range: 10-50.
	NumIterations int

	// Regularization is the L2 regularization parameter.
	// Typical range: 0.01-0.1.
	Regularization float64

	// Alpha scales the confidence transformation for implicit feedback.
	// c = 1 + alpha * r, where r is the summed purchase quantity.
	Alpha float64

	// MinInteractions is the smallest interaction table that can be fit.
	MinInteractions int

	// NumWorkers is the number of parallel workers for training.
	NumWorkers int
}

// MinInteractionsFloor is the smallest interaction table any ALS fit accepts.
// A min_interactions hyperparameter may raise it but never lower it.
const MinInteractionsFloor = 100

// DefaultCollaborativeConfig returns default ALS configuration.
func DefaultCollaborativeConfig() CollaborativeConfig {
	return CollaborativeConfig{
		NumFactors:      32,
		NumIterations:   15,
		Regularization:  0.01,
		Alpha:           40.0,
		MinInteractions: MinInteractionsFloor,
		NumWorkers:      4,
	}
}

// collaborativeConfigFrom applies hyperparameters over the defaults.
func collaborativeConfigFrom(hp recommend.Hyperparameters) CollaborativeConfig {
	d := DefaultCollaborativeConfig()
	cfg := CollaborativeConfig{
		NumFactors:      hp.Int("factors", d.NumFactors),
		NumIterations:   hp.Int("iterations", d.NumIterations),
		Regularization:  hp.Float("regularization", d.Regularization),
		Alpha:           hp.Float("alpha", d.Alpha),
		MinInteractions: hp.Int("min_interactions", d.MinInteractions),
		NumWorkers:      hp.Int("workers", d.NumWorkers),
	}
	cfg.MinInteractions = max(cfg.MinInteractions, MinInteractionsFloor)
	if cfg.NumFactors <= 0 {
		cfg.NumFactors = d.NumFactors
	}
	if cfg.NumIterations <= 0 {
		cfg.NumIterations = d.NumIterations
	}
	if cfg.Regularization <= 0 {
		cfg.Regularization = d.Regularization
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = d.Alpha
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = d.NumWorkers
	}
	return cfg
}

// CollaborativeTrainer fits implicit-feedback ALS.
// Reference: "Collaborative Filtering for Implicit Feedback Datasets" (Hu, Koren, Volinsky, 2008)
//
// The objective function minimizes:
// sum_{u,i} c_ui * (p_ui - x_u' * y_i)^2 + lambda * (||x_u||^2 + ||y_i||^2)
//
// where p_ui = 1 if user u bought item i, 0 otherwise,
// and c_ui = 1 + alpha * r_ui is the confidence.
type CollaborativeTrainer struct{}

// ModelType implements Trainer.
func (CollaborativeTrainer) ModelType() recommend.ModelType {
	return recommend.ModelCollaborative
}

// CollaborativeModel is the trained factorization.
// Fields are exported for gob persistence.
type CollaborativeModel struct {
	UserIndex   map[int]int
	ItemIndex   map[int]int
	ItemIDs     []int
	UserFactors [][]float64
	ItemFactors [][]float64

	// UserItems lists each user's purchased items, sorted.
	UserItems map[int][]int
}

// als holds the mutable state of one fit.
type als struct {
	cfg         CollaborativeConfig
	X           [][]float64
	Y           [][]float64
	numFactors  int
	userItems   []map[int]float64
	itemUsers   []map[int]float64
	numUsers    int
	numItems    int
	indexToUser []int
	indexToItem []int
}

// Train fits the factorization using alternating optimization.
//
//nolint:gocyclo // ML training algorithms are inherently complex
func (CollaborativeTrainer) Train(ctx context.Context, ds *recommend.Dataset, hp recommend.Hyperparameters, progress chan<- recommend.Progress) (*Result, error) {
	cfg := collaborativeConfigFrom(hp)

	if len(ds.Interactions) < cfg.MinInteractions {
		return nil, recommend.InsufficientData("interactions", len(ds.Interactions), cfg.MinInteractions)
	}

	a := &als{cfg: cfg, numFactors: cfg.NumFactors}
	userIndex, itemIndex, purchased := a.buildMatrix(ds.Interactions)

	if err := checkpoint(ctx, progress, recommend.StageDataPrepared, 10,
		fmt.Sprintf("%d users x %d items", a.numUsers, a.numItems)); err != nil {
		return nil, err
	}

	a.initFactors()
	lambda := cfg.Regularization

	for iter := 0; iter < cfg.NumIterations; iter++ {
		if err := checkpoint(ctx, progress, recommend.StageFitting,
			10+70*float64(iter)/float64(cfg.NumIterations),
			fmt.Sprintf("iteration %d/%d", iter+1, cfg.NumIterations)); err != nil {
			return nil, err
		}

		// Update user factors (fix Y, solve for X)
		if err := a.updateFactors(ctx, a.X, a.Y, a.userItems, lambda); err != nil {
			return nil, err
		}
		// Update item factors (fix X, solve for Y)
		if err := a.updateFactors(ctx, a.Y, a.X, a.itemUsers, lambda); err != nil {
			return nil, err
		}
	}

	if err := checkpoint(ctx, progress, recommend.StageEvaluating, 85, "computing training error"); err != nil {
		return nil, err
	}
	rmse := a.trainRMSE()

	if err := checkpoint(ctx, progress, recommend.StageFinalizing, 95, "building artifact"); err != nil {
		return nil, err
	}

	model := &CollaborativeModel{
		UserIndex:   userIndex,
		ItemIndex:   itemIndex,
		ItemIDs:     a.indexToItem,
		UserFactors: a.X,
		ItemFactors: a.Y,
		UserItems:   purchased,
	}

	cells := float64(a.numUsers) * float64(a.numItems)
	observed := 0
	for _, items := range a.userItems {
		observed += len(items)
	}

	return &Result{
		Artifact: model,
		Metrics: map[string]float64{
			"users":        float64(a.numUsers),
			"items":        float64(a.numItems),
			"interactions": float64(len(ds.Interactions)),
			"sparsity":     1 - float64(observed)/cells,
			"train_rmse":   rmse,
			"factors":      float64(cfg.NumFactors),
		},
	}, nil
}

// buildMatrix indexes users and items and sums quantity per pair.
func (a *als) buildMatrix(interactions []recommend.InteractionRecord) (userIndex, itemIndex map[int]int, purchased map[int][]int) {
	userIndex = make(map[int]int)
	itemIndex = make(map[int]int)
	raw := make(map[[2]int]float64)

	for _, inter := range interactions {
		if _, ok := userIndex[inter.UserID]; !ok {
			userIndex[inter.UserID] = len(a.indexToUser)
			a.indexToUser = append(a.indexToUser, inter.UserID)
		}
		if _, ok := itemIndex[inter.ItemID]; !ok {
			itemIndex[inter.ItemID] = len(a.indexToItem)
			a.indexToItem = append(a.indexToItem, inter.ItemID)
		}
		qty := float64(inter.Quantity)
		if qty <= 0 {
			qty = 1
		}
		raw[[2]int{userIndex[inter.UserID], itemIndex[inter.ItemID]}] += qty
	}

	a.numUsers = len(a.indexToUser)
	a.numItems = len(a.indexToItem)
	a.userItems = make([]map[int]float64, a.numUsers)
	a.itemUsers = make([]map[int]float64, a.numItems)
	for u := range a.userItems {
		a.userItems[u] = make(map[int]float64)
	}
	for i := range a.itemUsers {
		a.itemUsers[i] = make(map[int]float64)
	}

	purchased = make(map[int][]int, a.numUsers)
	for key, r := range raw {
		ui, ii := key[0], key[1]
		conf := 1.0 + a.cfg.Alpha*r
		a.userItems[ui][ii] = conf
		a.itemUsers[ii][ui] = conf
		userID := a.indexToUser[ui]
		purchased[userID] = append(purchased[userID], a.indexToItem[ii])
	}
	for _, items := range purchased {
		sort.Ints(items)
	}
	return userIndex, itemIndex, purchased
}

// initFactors fills both factor matrices with small deterministic values.
func (a *als) initFactors() {
	a.X = make([][]float64, a.numUsers)
	for u := range a.X {
		a.X[u] = make([]float64, a.numFactors)
		for f := range a.X[u] {
			a.X[u][f] = 0.1 * (float64((u*a.numFactors+f)%1000)/1000.0 - 0.5)
		}
	}
	a.Y = make([][]float64, a.numItems)
	for i := range a.Y {
		a.Y[i] = make([]float64, a.numFactors)
		for f := range a.Y[i] {
			a.Y[i][f] = 0.1 * (float64((i*a.numFactors+f+7)%1000)/1000.0 - 0.5)
		}
	}
}

// updateFactors solves every row of target with fixed held constant.
// rows[r] maps the fixed-side index to confidence for target row r.
//
//nolint:gocritic // matrix names follow standard linear algebra notation
func (a *als) updateFactors(ctx context.Context, target, fixed [][]float64, rows []map[int]float64, lambda float64) error {
	k := a.numFactors

	// Precompute F'F
	FtF := make([][]float64, k)
	for f := range FtF {
		FtF[f] = make([]float64, k)
	}
	for _, vec := range fixed {
		for f1 := 0; f1 < k; f1++ {
			for f2 := f1; f2 < k; f2++ {
				FtF[f1][f2] += vec[f1] * vec[f2]
			}
		}
	}
	for f1 := 0; f1 < k; f1++ {
		for f2 := 0; f2 < f1; f2++ {
			FtF[f1][f2] = FtF[f2][f1]
		}
	}

	n := len(target)
	chunkSize := (n + a.cfg.NumWorkers - 1) / a.cfg.NumWorkers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		g.Go(func() error {
			for r := start; r < end; r++ {
				if ContextCancelled(gctx) {
					return gctx.Err()
				}
				target[r] = solveRow(rows[r], fixed, FtF, k, lambda)
			}
			return nil
		})
	}
	return g.Wait()
}

// solveRow computes one factor vector.
//
//nolint:gocritic // A, FtF follow standard linear algebra notation
func solveRow(conf map[int]float64, fixed, FtF [][]float64, k int, lambda float64) []float64 {
	// A = F' * C * F + lambda * I
	// b = F' * C * p
	A := make([][]float64, k)
	for f := range A {
		A[f] = make([]float64, k)
		copy(A[f], FtF[f])
		A[f][f] += lambda
	}

	b := make([]float64, k)
	for j, c := range conf {
		y := fixed[j]
		cMinus1 := c - 1.0

		for f1 := 0; f1 < k; f1++ {
			for f2 := f1; f2 < k; f2++ {
				delta := cMinus1 * y[f1] * y[f2]
				A[f1][f2] += delta
				if f1 != f2 {
					A[f2][f1] += delta
				}
			}
			b[f1] += c * y[f1]
		}
	}

	return solveLinearSystem(A, b)
}

// trainRMSE is the error on observed preferences (p = 1).
func (a *als) trainRMSE() float64 {
	var sum float64
	var n int
	for u, items := range a.userItems {
		for i := range items {
			d := 1 - dot(a.X[u], a.Y[i])
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// solveLinearSystem solves A*x = b using Cholesky decomposition.
//
//nolint:gocritic // A, L follow standard linear algebra notation
func solveLinearSystem(A [][]float64, b []float64) []float64 {
	n := len(b)

	// Cholesky decomposition: A = L * L'
	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := A[i][j]
			for k := 0; k < j; k++ {
				sum -= L[i][k] * L[j][k]
			}

			if i == j {
				if sum <= 0 {
					// Not positive definite; nudge the pivot.
					sum = 1e-10
				}
				L[i][j] = math.Sqrt(sum)
			} else if L[j][j] != 0 {
				L[i][j] = sum / L[j][j]
			}
		}
	}

	// Solve L * z = b (forward substitution)
	z := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= L[i][j] * z[j]
		}
		if L[i][i] != 0 {
			z[i] = sum / L[i][i]
		}
	}

	// Solve L' * x = z (back substitution)
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for j := i + 1; j < n; j++ {
			sum -= L[j][i] * x[j]
		}
		if L[i][i] != 0 {
			x[i] = sum / L[i][i]
		}
	}

	return x
}

// ModelType implements recommend.Artifact.
func (m *CollaborativeModel) ModelType() recommend.ModelType {
	return recommend.ModelCollaborative
}

// Covers reports whether the user was present at training time.
func (m *CollaborativeModel) Covers(userID int) bool {
	_, ok := m.UserIndex[userID]
	return ok
}

// Score returns dot-product scores for a known user. With nil candidates
// every item the user has not bought is ranked. Unknown users get nil.
func (m *CollaborativeModel) Score(userID int, candidates []int) []recommend.ScoredItem {
	ui, ok := m.UserIndex[userID]
	if !ok {
		return nil
	}
	userVec := m.UserFactors[ui]

	scores := make(map[int]float64)
	if candidates == nil {
		bought := make(map[int]bool, len(m.UserItems[userID]))
		for _, id := range m.UserItems[userID] {
			bought[id] = true
		}
		for ii, itemID := range m.ItemIDs {
			if bought[itemID] {
				continue
			}
			scores[itemID] = dot(userVec, m.ItemFactors[ii])
		}
	} else {
		for _, itemID := range candidates {
			ii, ok := m.ItemIndex[itemID]
			if !ok {
				continue
			}
			scores[itemID] = dot(userVec, m.ItemFactors[ii])
		}
	}

	return rankScores(scores)
}

// Recommend returns the top n unpurchased items for a known user.
func (m *CollaborativeModel) Recommend(userID, n int) []recommend.ScoredItem {
	ranked := m.Score(userID, nil)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
