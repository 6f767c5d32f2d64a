// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// FBTConfig bounds frequently-bought-together mining.
type FBTConfig struct {
	// MinSupport is the minimum fraction of baskets an itemset must appear in.
	MinSupport float64 `json:"min_support"`

	// MaxItemsetSize bounds the itemsets FP-growth enumerates.
	MaxItemsetSize int `json:"max_itemset_size"`

	// MinConfidence filters rules by P(consequent | antecedent).
	MinConfidence float64 `json:"min_confidence"`

	// MinLift filters rules by confidence over the consequent's base rate.
	MinLift float64 `json:"min_lift"`

	// MinTransactions is the smallest basket count that can be mined.
	MinTransactions int `json:"min_transactions"`

	// MaxRulesPerItem truncates each antecedent's list; 0 keeps all.
	MaxRulesPerItem int `json:"max_rules_per_item"`
}

// MinTransactionsFloor is the smallest basket count any mining pass accepts.
const MinTransactionsFloor = 10

// DefaultFBTConfig returns default mining configuration.
func DefaultFBTConfig() FBTConfig {
	return FBTConfig{
		MinSupport:      0.01,
		MaxItemsetSize:  3,
		MinConfidence:   0.1,
		MinLift:         1.0,
		MinTransactions: MinTransactionsFloor,
		MaxRulesPerItem: 20,
	}
}

// RuleSet is the mined rule map keyed by antecedent.
type RuleSet struct {
	Rules            map[int][]recommend.AssociationRule
	Transactions     int
	FrequentItemsets int
	RuleCount        int
	MinedAt          time.Time
}

// Lookup returns up to limit rules for an antecedent, best first.
func (rs *RuleSet) Lookup(itemID, limit int) []recommend.AssociationRule {
	rules := rs.Rules[itemID]
	if limit > 0 && len(rules) > limit {
		rules = rules[:limit]
	}
	return rules
}

// NormalizeBaskets dedupes items within each basket and drops baskets
// with fewer than two distinct items.
func NormalizeBaskets(raw [][]int) [][]int {
	out := make([][]int, 0, len(raw))
	for _, basket := range raw {
		seen := make(map[int]struct{}, len(basket))
		items := make([]int, 0, len(basket))
		for _, id := range basket {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			items = append(items, id)
		}
		if len(items) < 2 {
			continue
		}
		sort.Ints(items)
		out = append(out, items)
	}
	return out
}

// MineFBT runs FP-growth over baskets and derives single-item rules.
// Baskets must already be normalized.
func MineFBT(ctx context.Context, baskets [][]int, cfg FBTConfig) (*RuleSet, error) {
	cfg.MinTransactions = max(cfg.MinTransactions, MinTransactionsFloor)
	if len(baskets) < cfg.MinTransactions {
		return nil, recommend.InsufficientData("baskets", len(baskets), cfg.MinTransactions)
	}
	if cfg.MaxItemsetSize < 2 {
		cfg.MaxItemsetSize = 2
	}

	n := len(baskets)
	minCount := int(math.Ceil(cfg.MinSupport*float64(n) - 1e-9))
	if minCount < 1 {
		minCount = 1
	}

	counts := make([]int, n)
	for i := range counts {
		counts[i] = 1
	}

	m := &fpMiner{
		ctx:      ctx,
		minCount: minCount,
		maxSize:  cfg.MaxItemsetSize,
		singles:  make(map[int]int),
		pairs:    make(map[[2]int]int),
	}
	if err := m.mine(newFPTree(baskets, counts, minCount), nil); err != nil {
		return nil, err
	}

	rs := &RuleSet{
		Rules:            make(map[int][]recommend.AssociationRule),
		Transactions:     n,
		FrequentItemsets: m.itemsets,
		MinedAt:          time.Now(),
	}
	total := float64(n)
	for pair, c := range m.pairs {
		support := float64(c) / total
		for _, dir := range [2][2]int{{pair[0], pair[1]}, {pair[1], pair[0]}} {
			ante, cons := dir[0], dir[1]
			confidence := float64(c) / float64(m.singles[ante])
			lift := confidence / (float64(m.singles[cons]) / total)
			if confidence < cfg.MinConfidence || lift < cfg.MinLift {
				continue
			}
			rs.Rules[ante] = append(rs.Rules[ante], recommend.AssociationRule{
				Antecedent: ante,
				Consequent: cons,
				Support:    support,
				Confidence: confidence,
				Lift:       lift,
			})
		}
	}

	for ante, rules := range rs.Rules {
		sortRules(rules)
		if cfg.MaxRulesPerItem > 0 && len(rules) > cfg.MaxRulesPerItem {
			rules = rules[:cfg.MaxRulesPerItem]
		}
		rs.Rules[ante] = rules
		rs.RuleCount += len(rules)
	}
	return rs, nil
}

// sortRules orders by confidence, then lift, then support, all descending.
func sortRules(rules []recommend.AssociationRule) {
	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Lift != b.Lift {
			return a.Lift > b.Lift
		}
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		return a.Consequent < b.Consequent
	})
}

type fpNode struct {
	item     int
	count    int
	parent   *fpNode
	children map[int]*fpNode
}

type fpTree struct {
	root    *fpNode
	header  map[int][]*fpNode
	support map[int]int

	// order lists frequent items from least to most supported, the order
	// in which suffixes are grown.
	order []int
}

// newFPTree builds a tree from weighted paths, keeping items with at
// least minCount support.
func newFPTree(paths [][]int, counts []int, minCount int) *fpTree {
	support := make(map[int]int)
	for i, p := range paths {
		for _, item := range p {
			support[item] += counts[i]
		}
	}

	t := &fpTree{
		root:    &fpNode{item: -1, children: make(map[int]*fpNode)},
		header:  make(map[int][]*fpNode),
		support: make(map[int]int),
	}
	for item, s := range support {
		if s >= minCount {
			t.support[item] = s
			t.order = append(t.order, item)
		}
	}
	sort.Slice(t.order, func(i, j int) bool {
		a, b := t.order[i], t.order[j]
		if t.support[a] != t.support[b] {
			return t.support[a] < t.support[b]
		}
		return a > b
	})

	buf := make([]int, 0, 16)
	for i, p := range paths {
		buf = buf[:0]
		for _, item := range p {
			if _, ok := t.support[item]; ok {
				buf = append(buf, item)
			}
		}
		sort.Slice(buf, func(x, y int) bool {
			a, b := buf[x], buf[y]
			if t.support[a] != t.support[b] {
				return t.support[a] > t.support[b]
			}
			return a < b
		})
		t.insert(buf, counts[i])
	}
	return t
}

func (t *fpTree) insert(items []int, count int) {
	node := t.root
	for _, item := range items {
		child, ok := node.children[item]
		if !ok {
			child = &fpNode{item: item, parent: node, children: make(map[int]*fpNode)}
			node.children[item] = child
			t.header[item] = append(t.header[item], child)
		}
		child.count += count
		node = child
	}
}

type fpMiner struct {
	ctx      context.Context
	minCount int
	maxSize  int
	singles  map[int]int
	pairs    map[[2]int]int
	itemsets int
}

// mine grows every frequent suffix of t, recording itemsets up to maxSize.
func (m *fpMiner) mine(t *fpTree, suffix []int) error {
	if err := m.ctx.Err(); err != nil {
		return err
	}

	for _, item := range t.order {
		set := make([]int, 0, len(suffix)+1)
		set = append(set, item)
		set = append(set, suffix...)
		m.record(set, t.support[item])

		if len(set) >= m.maxSize {
			continue
		}

		var paths [][]int
		var counts []int
		for _, node := range t.header[item] {
			var path []int
			for p := node.parent; p != nil && p.parent != nil; p = p.parent {
				path = append(path, p.item)
			}
			if len(path) > 0 {
				paths = append(paths, path)
				counts = append(counts, node.count)
			}
		}
		if len(paths) == 0 {
			continue
		}

		cond := newFPTree(paths, counts, m.minCount)
		if len(cond.order) > 0 {
			if err := m.mine(cond, set); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *fpMiner) record(set []int, count int) {
	m.itemsets++
	switch len(set) {
	case 1:
		m.singles[set[0]] = count
	case 2:
		a, b := set[0], set[1]
		if a > b {
			a, b = b, a
		}
		m.pairs[[2]int{a, b}] = count
	}
}
