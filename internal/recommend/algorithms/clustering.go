// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// ClusteringConfig contains configuration for k-means segmentation.
type ClusteringConfig struct {
	// K is the number of segments.
	K int

	// NumInit is the number of k-means++ restarts; the lowest inertia wins.
	NumInit int

	// MaxIter bounds Lloyd iterations per restart.
	MaxIter int

	// Tolerance stops a restart when total centroid movement falls below it.
	Tolerance float64

	// Seed makes restarts reproducible.
	Seed int64

	// SilhouetteSample caps the users scored for the silhouette metric.
	SilhouetteSample int
}

// DefaultClusteringConfig returns default clustering configuration.
func DefaultClusteringConfig() ClusteringConfig {
	return ClusteringConfig{
		K:                8,
		NumInit:          10,
		MaxIter:          300,
		Tolerance:        1e-4,
		Seed:             42,
		SilhouetteSample: 2000,
	}
}

func clusteringConfigFrom(hp recommend.Hyperparameters) ClusteringConfig {
	d := DefaultClusteringConfig()
	cfg := ClusteringConfig{
		K:                hp.Int("k", d.K),
		NumInit:          hp.Int("n_init", d.NumInit),
		MaxIter:          hp.Int("max_iter", d.MaxIter),
		Tolerance:        hp.Float("tolerance", d.Tolerance),
		Seed:             int64(hp.Int("seed", int(d.Seed))),
		SilhouetteSample: hp.Int("silhouette_sample", d.SilhouetteSample),
	}
	if cfg.K < 2 {
		cfg.K = 2
	}
	if cfg.NumInit < 1 {
		cfg.NumInit = 1
	}
	if cfg.MaxIter < 1 {
		cfg.MaxIter = d.MaxIter
	}
	if cfg.SilhouetteSample < 2 {
		cfg.SilhouetteSample = d.SilhouetteSample
	}
	return cfg
}

// ClusteringTrainer segments users with k-means over standardized RFM features.
type ClusteringTrainer struct{}

// ModelType implements Trainer.
func (ClusteringTrainer) ModelType() recommend.ModelType {
	return recommend.ModelClustering
}

// ClusteringModel holds centroids in standardized space plus the
// per-user assignment and per-segment item popularity.
type ClusteringModel struct {
	Means     []float64
	Stds      []float64
	Centroids [][]float64

	// Segments is each user's RFM row with Cluster filled in.
	Segments map[int]recommend.RFMFeatures

	// Popularity is per-cluster item purchase volume.
	Popularity map[int]map[int]float64

	UserItems map[int][]int
}

type kmeansRun struct {
	centroids [][]float64
	labels    []int
	inertia   float64
}

// Train fits k-means and writes each user's cluster into ds.RFM.
func (ClusteringTrainer) Train(ctx context.Context, ds *recommend.Dataset, hp recommend.Hyperparameters, progress chan<- recommend.Progress) (*Result, error) {
	cfg := clusteringConfigFrom(hp)

	if len(ds.RFM) < cfg.K {
		return nil, recommend.InsufficientData("users", len(ds.RFM), cfg.K)
	}

	raw := make([][]float64, len(ds.RFM))
	for i := range ds.RFM {
		raw[i] = ds.RFM[i].Vector()
	}
	points, means, stds := standardize(raw)

	if err := checkpoint(ctx, progress, recommend.StageDataPrepared, 10,
		fmt.Sprintf("%d users, %d features", len(points), len(means))); err != nil {
		return nil, err
	}

	var best *kmeansRun
	for run := 0; run < cfg.NumInit; run++ {
		if err := checkpoint(ctx, progress, recommend.StageFitting,
			10+60*float64(run)/float64(cfg.NumInit),
			fmt.Sprintf("restart %d/%d", run+1, cfg.NumInit)); err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewSource(cfg.Seed + int64(run))) //nolint:gosec // deterministic seeding, not security
		r := kmeans(points, cfg.K, cfg.MaxIter, cfg.Tolerance, rng)
		if best == nil || r.inertia < best.inertia {
			best = r
		}
	}

	if err := checkpoint(ctx, progress, recommend.StageEvaluating, 75, "computing silhouette"); err != nil {
		return nil, err
	}
	sil := silhouette(ctx, points, best.labels, cfg.K, cfg.SilhouetteSample, cfg.Seed)

	if err := checkpoint(ctx, progress, recommend.StageFinalizing, 90, "writing segments"); err != nil {
		return nil, err
	}

	model := &ClusteringModel{
		Means:      means,
		Stds:       stds,
		Centroids:  best.centroids,
		Segments:   make(map[int]recommend.RFMFeatures, len(ds.RFM)),
		Popularity: make(map[int]map[int]float64, cfg.K),
		UserItems:  make(map[int][]int),
	}
	sizes := make([]int, cfg.K)
	for i := range ds.RFM {
		ds.RFM[i].Cluster = best.labels[i]
		model.Segments[ds.RFM[i].UserID] = ds.RFM[i]
		sizes[best.labels[i]]++
	}
	for c := 0; c < cfg.K; c++ {
		model.Popularity[c] = make(map[int]float64)
	}
	seen := make(map[[2]int]bool)
	for _, inter := range ds.Interactions {
		seg, ok := model.Segments[inter.UserID]
		if !ok {
			continue
		}
		qty := float64(inter.Quantity)
		if qty <= 0 {
			qty = 1
		}
		model.Popularity[seg.Cluster][inter.ItemID] += qty
		key := [2]int{inter.UserID, inter.ItemID}
		if !seen[key] {
			seen[key] = true
			model.UserItems[inter.UserID] = append(model.UserItems[inter.UserID], inter.ItemID)
		}
	}

	metrics := map[string]float64{
		"k":          float64(cfg.K),
		"users":      float64(len(points)),
		"inertia":    best.inertia,
		"silhouette": sil,
	}
	for c, n := range sizes {
		metrics[fmt.Sprintf("cluster_%d_size", c)] = float64(n)
	}

	return &Result{Artifact: model, Metrics: metrics}, nil
}

// standardize z-scores each column. Constant columns get a std of 1.
func standardize(raw [][]float64) (points [][]float64, means, stds []float64) {
	if len(raw) == 0 {
		return nil, nil, nil
	}
	dims := len(raw[0])
	means = make([]float64, dims)
	stds = make([]float64, dims)
	col := make([]float64, len(raw))
	for d := 0; d < dims; d++ {
		for i := range raw {
			col[i] = raw[i][d]
		}
		means[d], stds[d] = meanStd(col)
		if stds[d] == 0 {
			stds[d] = 1
		}
	}

	points = make([][]float64, len(raw))
	for i, row := range raw {
		points[i] = make([]float64, dims)
		for d, v := range row {
			points[i][d] = (v - means[d]) / stds[d]
		}
	}
	return points, means, stds
}

// kmeans runs one k-means++ initialization followed by Lloyd iterations.
func kmeans(points [][]float64, k, maxIter int, tol float64, rng *rand.Rand) *kmeansRun {
	centroids := kmeansPlusPlus(points, k, rng)
	labels := make([]int, len(points))
	dims := len(points[0])

	for iter := 0; iter < maxIter; iter++ {
		for i, p := range points {
			labels[i], _ = nearest(p, centroids)
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}

		var shift float64
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Reseed an empty cluster at the point farthest from its centroid.
				far := farthestPoint(points, labels, centroids)
				shift += sqDist(centroids[c], points[far])
				centroids[c] = append([]float64(nil), points[far]...)
				continue
			}
			next := make([]float64, dims)
			for d := range next {
				next[d] = sums[c][d] / float64(counts[c])
			}
			shift += sqDist(centroids[c], next)
			centroids[c] = next
		}
		if shift <= tol {
			break
		}
	}

	var inertia float64
	for i, p := range points {
		var d float64
		labels[i], d = nearest(p, centroids)
		inertia += d
	}
	return &kmeansRun{centroids: centroids, labels: labels, inertia: inertia}
}

// kmeansPlusPlus picks initial centroids with D^2 weighting.
func kmeansPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := points[rng.Intn(len(points))]
	centroids = append(centroids, append([]float64(nil), first...))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			_, d := nearest(p, centroids)
			dist[i] = d
			total += d
		}
		if total == 0 {
			// Every point coincides with a centroid; duplicate one.
			centroids = append(centroids, append([]float64(nil), points[rng.Intn(len(points))]...))
			continue
		}
		target := rng.Float64() * total
		chosen := len(points) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), points[chosen]...))
	}
	return centroids
}

// nearest returns the closest centroid and its squared distance.
func nearest(p []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func farthestPoint(points [][]float64, labels []int, centroids [][]float64) int {
	far, farDist := 0, -1.0
	for i, p := range points {
		if d := sqDist(p, centroids[labels[i]]); d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// silhouette returns the mean silhouette coefficient over a deterministic
// sample. It is 0 when fewer than two clusters are populated.
func silhouette(ctx context.Context, points [][]float64, labels []int, k, sample int, seed int64) float64 {
	populated := make(map[int]bool)
	for _, l := range labels {
		populated[l] = true
	}
	if len(populated) < 2 {
		return 0
	}

	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	if len(idx) > sample {
		rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic sampling
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		idx = idx[:sample]
		sort.Ints(idx)
	}

	var total float64
	var n int
	sums := make([]float64, k)
	counts := make([]int, k)
	for _, i := range idx {
		if ContextCancelled(ctx) {
			break
		}
		for c := range sums {
			sums[c], counts[c] = 0, 0
		}
		for _, j := range idx {
			if i == j {
				continue
			}
			sums[labels[j]] += math.Sqrt(sqDist(points[i], points[j]))
			counts[labels[j]]++
		}
		own := labels[i]
		if counts[own] == 0 {
			// Singleton clusters score 0 by convention.
			n++
			continue
		}
		a := sums[own] / float64(counts[own])
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			if m := sums[c] / float64(counts[c]); m < b {
				b = m
			}
		}
		if math.IsInf(b, 1) {
			n++
			continue
		}
		total += (b - a) / math.Max(a, b)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// ModelType implements recommend.Artifact.
func (m *ClusteringModel) ModelType() recommend.ModelType {
	return recommend.ModelClustering
}

// Covers reports whether the user was segmented at training time.
func (m *ClusteringModel) Covers(userID int) bool {
	_, ok := m.Segments[userID]
	return ok
}

// Score ranks items by purchase volume within the user's segment.
func (m *ClusteringModel) Score(userID int, candidates []int) []recommend.ScoredItem {
	seg, ok := m.Segments[userID]
	if !ok {
		return nil
	}
	pop := m.Popularity[seg.Cluster]

	scores := make(map[int]float64)
	if candidates == nil {
		bought := make(map[int]bool, len(m.UserItems[userID]))
		for _, id := range m.UserItems[userID] {
			bought[id] = true
		}
		for id, v := range pop {
			if !bought[id] {
				scores[id] = v
			}
		}
	} else {
		for _, id := range candidates {
			if v, ok := pop[id]; ok {
				scores[id] = v
			}
		}
	}
	return rankScores(scores)
}

// Segment returns the user's RFM row with its cluster.
func (m *ClusteringModel) Segment(userID int) (recommend.RFMFeatures, bool) {
	seg, ok := m.Segments[userID]
	return seg, ok
}

// Assign places an unseen feature row into its nearest segment.
func (m *ClusteringModel) Assign(f *recommend.RFMFeatures) int {
	raw := f.Vector()
	p := make([]float64, len(raw))
	for d, v := range raw {
		p[d] = (v - m.Means[d]) / m.Stds[d]
	}
	c, _ := nearest(p, m.Centroids)
	return c
}
