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

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// TreeNode is one node of a regression tree. Leaves carry Value; internal
// nodes route x[Feature] <= Threshold to Left and everything else to Right.
type TreeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a flat regression tree rooted at Nodes[0].
type Tree struct {
	Nodes []TreeNode
}

// predict walks the tree for one feature row.
func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// boostConfig controls a logistic gradient-boosting fit.
type boostConfig struct {
	NumEstimators       int
	MaxDepth            int
	LearningRate        float64
	EarlyStoppingRounds int
	MinSamplesLeaf      int
	Lambda              float64
	MaxBins             int
}

// boostedModel is the fitted ensemble in logit space.
type boostedModel struct {
	trees         []Tree
	baseScore     float64
	bestIteration int
	valLogLoss    float64
}

// histogram binning shared across the fit.
type binning struct {
	edges  [][]float64
	binned [][]uint8
}

func newBinning(x [][]float64, maxBins int) *binning {
	if len(x) == 0 {
		return &binning{}
	}
	dims := len(x[0])
	b := &binning{edges: make([][]float64, dims), binned: make([][]uint8, len(x))}

	col := make([]float64, len(x))
	for f := 0; f < dims; f++ {
		for i := range x {
			col[i] = x[i][f]
		}
		sorted := append([]float64(nil), col...)
		sort.Float64s(sorted)
		uniq := sorted[:0:0]
		for i, v := range sorted {
			if i == 0 || v != sorted[i-1] {
				uniq = append(uniq, v)
			}
		}
		// Edges are split points; the largest value needs none.
		var edges []float64
		if len(uniq) <= maxBins {
			edges = uniq[:len(uniq)-1]
		} else {
			for q := 1; q < maxBins; q++ {
				e := uniq[q*len(uniq)/maxBins]
				if len(edges) == 0 || e != edges[len(edges)-1] {
					edges = append(edges, e)
				}
			}
		}
		b.edges[f] = edges
	}

	for i, row := range x {
		b.binned[i] = make([]uint8, dims)
		for f, v := range row {
			b.binned[i][f] = uint8(sort.SearchFloat64s(b.edges[f], v)) //nolint:gosec // maxBins <= 255
		}
	}
	return b
}

// fitBoosted trains a logistic-loss ensemble with early stopping on the
// validation rows.
func fitBoosted(ctx context.Context, xTrain [][]float64, yTrain []float64, xVal [][]float64, yVal []float64, cfg boostConfig, onRound func(round int)) (*boostedModel, error) {
	if len(xTrain) == 0 {
		return nil, fmt.Errorf("%w: no training rows", recommend.ErrTrainerFailure)
	}
	bins := newBinning(xTrain, cfg.MaxBins)

	var pos float64
	for _, y := range yTrain {
		pos += y
	}
	rate := clampProb(pos / float64(len(yTrain)))
	base := math.Log(rate / (1 - rate))

	fTrain := make([]float64, len(xTrain))
	fVal := make([]float64, len(xVal))
	for i := range fTrain {
		fTrain[i] = base
	}
	for i := range fVal {
		fVal[i] = base
	}

	model := &boostedModel{baseScore: base, valLogLoss: logLoss(fVal, yVal)}
	grad := make([]float64, len(xTrain))
	hess := make([]float64, len(xTrain))
	bestLoss := model.valLogLoss
	bestRound := -1
	var trees []Tree

	for round := 0; round < cfg.NumEstimators; round++ {
		if ContextCancelled(ctx) {
			return nil, ctx.Err()
		}
		if onRound != nil {
			onRound(round)
		}

		for i := range fTrain {
			p := sigmoid(fTrain[i])
			grad[i] = yTrain[i] - p
			hess[i] = math.Max(p*(1-p), 1e-6)
		}

		rows := make([]int, len(xTrain))
		for i := range rows {
			rows[i] = i
		}
		tb := &treeBuilder{cfg: cfg, bins: bins, grad: grad, hess: hess}
		tb.build(rows, 0)
		tree := Tree{Nodes: tb.nodes}
		trees = append(trees, tree)

		for i, x := range xTrain {
			fTrain[i] += cfg.LearningRate * tree.predict(x)
		}
		for i, x := range xVal {
			fVal[i] += cfg.LearningRate * tree.predict(x)
		}

		loss := logLoss(fVal, yVal)
		if loss < bestLoss-1e-12 {
			bestLoss = loss
			bestRound = round
		} else if cfg.EarlyStoppingRounds > 0 && round-bestRound >= cfg.EarlyStoppingRounds {
			break
		}
	}

	model.trees = trees[:bestRound+1]
	model.bestIteration = bestRound + 1
	model.valLogLoss = bestLoss
	return model, nil
}

type treeBuilder struct {
	cfg   boostConfig
	bins  *binning
	grad  []float64
	hess  []float64
	nodes []TreeNode
}

// build grows a node for rows and returns its index.
func (tb *treeBuilder) build(rows []int, depth int) int {
	var g, h float64
	for _, r := range rows {
		g += tb.grad[r]
		h += tb.hess[r]
	}

	idx := len(tb.nodes)
	tb.nodes = append(tb.nodes, TreeNode{Leaf: true, Value: g / (h + tb.cfg.Lambda)})

	if depth >= tb.cfg.MaxDepth || len(rows) < 2*tb.cfg.MinSamplesLeaf {
		return idx
	}

	feature, bin, gain := tb.bestSplit(rows, g, h)
	if gain <= 1e-9 {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if int(tb.bins.binned[r][feature]) <= bin {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := tb.build(left, depth+1)
	rgt := tb.build(right, depth+1)
	tb.nodes[idx] = TreeNode{
		Feature:   feature,
		Threshold: tb.bins.edges[feature][bin],
		Left:      l,
		Right:     rgt,
	}
	return idx
}

// bestSplit scans histogram bins of every feature.
func (tb *treeBuilder) bestSplit(rows []int, g, h float64) (feature, bin int, gain float64) {
	lambda := tb.cfg.Lambda
	parent := g * g / (h + lambda)
	feature, bin = -1, -1

	for f, edges := range tb.bins.edges {
		if len(edges) == 0 {
			continue
		}
		nb := len(edges) + 1
		gs := make([]float64, nb)
		hs := make([]float64, nb)
		cs := make([]int, nb)
		for _, r := range rows {
			b := tb.bins.binned[r][f]
			gs[b] += tb.grad[r]
			hs[b] += tb.hess[r]
			cs[b]++
		}

		var gl, hl float64
		var cl int
		for b := 0; b < len(edges); b++ {
			gl += gs[b]
			hl += hs[b]
			cl += cs[b]
			cr := len(rows) - cl
			if cl < tb.cfg.MinSamplesLeaf || cr < tb.cfg.MinSamplesLeaf {
				continue
			}
			gr, hr := g-gl, h-hl
			s := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if s > gain {
				feature, bin, gain = f, b, s
			}
		}
	}
	return feature, bin, gain
}

func (m *boostedModel) predictLogit(x []float64, lr float64) float64 {
	f := m.baseScore
	for i := range m.trees {
		f += lr * m.trees[i].predict(x)
	}
	return f
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clampProb(p float64) float64 {
	const eps = 1e-6
	return math.Min(math.Max(p, eps), 1-eps)
}

func logLoss(logits, y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var s float64
	for i, f := range logits {
		p := clampProb(sigmoid(f))
		s -= y[i]*math.Log(p) + (1-y[i])*math.Log(1-p)
	}
	return s / float64(len(y))
}
