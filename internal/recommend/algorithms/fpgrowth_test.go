// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

func repeat(basket []int, n int) [][]int {
	out := make([][]int, n)
	for i := range out {
		out[i] = append([]int(nil), basket...)
	}
	return out
}

func testBaskets() [][]int {
	var b [][]int
	b = append(b, repeat([]int{1, 2}, 6)...)
	b = append(b, repeat([]int{1, 3}, 2)...)
	b = append(b, repeat([]int{2, 3}, 1)...)
	b = append(b, repeat([]int{4, 5}, 3)...)
	return b
}

func TestNormalizeBaskets(t *testing.T) {
	raw := [][]int{
		{3, 1, 3},
		{7},
		{5, 5},
		{9, 8, 9, 8},
	}
	got := NormalizeBaskets(raw)
	if len(got) != 2 {
		t.Fatalf("NormalizeBaskets() kept %d baskets, want 2", len(got))
	}
	if got[0][0] != 1 || got[0][1] != 3 || len(got[0]) != 2 {
		t.Errorf("basket[0] = %v, want [1 3]", got[0])
	}
	if got[1][0] != 8 || got[1][1] != 9 {
		t.Errorf("basket[1] = %v, want [8 9]", got[1])
	}
}

func TestMineFBT_InsufficientBaskets(t *testing.T) {
	baskets := testBaskets()[:8]
	_, err := MineFBT(context.Background(), baskets, DefaultFBTConfig())
	if !errors.Is(err, recommend.ErrInsufficientData) {
		t.Errorf("MineFBT() error = %v, want ErrInsufficientData", err)
	}

	// A lower configured minimum does not go below the floor.
	cfg := DefaultFBTConfig()
	cfg.MinTransactions = 2
	if _, err := MineFBT(context.Background(), baskets, cfg); !errors.Is(err, recommend.ErrInsufficientData) {
		t.Errorf("MineFBT(min 2) error = %v, want ErrInsufficientData", err)
	}
}

func TestMineFBT_Rules(t *testing.T) {
	cfg := DefaultFBTConfig()
	rs, err := MineFBT(context.Background(), testBaskets(), cfg)
	if err != nil {
		t.Fatalf("MineFBT() error = %v", err)
	}
	if rs.Transactions != 12 {
		t.Errorf("Transactions = %d, want 12", rs.Transactions)
	}

	tests := []struct {
		name       string
		antecedent int
		want       []recommend.AssociationRule
	}{
		{
			name:       "ranked by confidence",
			antecedent: 1,
			want: []recommend.AssociationRule{
				{Antecedent: 1, Consequent: 2, Support: 0.5, Confidence: 0.75, Lift: 0.75 / (7.0 / 12.0)},
				{Antecedent: 1, Consequent: 3, Support: 2.0 / 12.0, Confidence: 0.25, Lift: 1.0},
			},
		},
		{
			name:       "low lift filtered",
			antecedent: 2,
			want: []recommend.AssociationRule{
				{Antecedent: 2, Consequent: 1, Support: 0.5, Confidence: 6.0 / 7.0, Lift: (6.0 / 7.0) / (8.0 / 12.0)},
			},
		},
		{
			name:       "lift exactly one kept",
			antecedent: 3,
			want: []recommend.AssociationRule{
				{Antecedent: 3, Consequent: 1, Support: 2.0 / 12.0, Confidence: 2.0 / 3.0, Lift: 1.0},
			},
		},
		{
			name:       "perfect pair",
			antecedent: 4,
			want: []recommend.AssociationRule{
				{Antecedent: 4, Consequent: 5, Support: 0.25, Confidence: 1.0, Lift: 4.0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rs.Lookup(tt.antecedent, 0)
			if len(got) != len(tt.want) {
				t.Fatalf("Lookup(%d) = %+v, want %d rules", tt.antecedent, got, len(tt.want))
			}
			for i, w := range tt.want {
				g := got[i]
				if g.Antecedent != w.Antecedent || g.Consequent != w.Consequent {
					t.Errorf("rule[%d] = %d->%d, want %d->%d", i, g.Antecedent, g.Consequent, w.Antecedent, w.Consequent)
				}
				if math.Abs(g.Support-w.Support) > 1e-9 ||
					math.Abs(g.Confidence-w.Confidence) > 1e-9 ||
					math.Abs(g.Lift-w.Lift) > 1e-9 {
					t.Errorf("rule[%d] = %+v, want %+v", i, g, w)
				}
			}
		})
	}

	if got := rs.Lookup(1, 1); len(got) != 1 {
		t.Errorf("Lookup with limit returned %d rules, want 1", len(got))
	}
	if got := rs.Lookup(42, 5); len(got) != 0 {
		t.Errorf("Lookup(unknown) = %v, want empty", got)
	}
}

func TestMineFBT_MinSupportPrunes(t *testing.T) {
	cfg := DefaultFBTConfig()
	// Pair {1,3} appears in 2/12 baskets and {2,3} in 1/12.
	cfg.MinSupport = 0.2

	rs, err := MineFBT(context.Background(), testBaskets(), cfg)
	if err != nil {
		t.Fatalf("MineFBT() error = %v", err)
	}
	for _, r := range rs.Lookup(1, 0) {
		if r.Consequent == 3 {
			t.Error("rule 1->3 should be pruned by min_support")
		}
	}
	if len(rs.Lookup(3, 0)) != 0 {
		t.Error("every pair with item 3 is below min_support, want no rules")
	}
}

func TestMineFBT_LargerItemsets(t *testing.T) {
	baskets := repeat([]int{1, 2, 3}, 10)
	cfg := DefaultFBTConfig()

	rs, err := MineFBT(context.Background(), baskets, cfg)
	if err != nil {
		t.Fatalf("MineFBT() error = %v", err)
	}
	// 3 singles + 3 pairs + 1 triple.
	if rs.FrequentItemsets != 7 {
		t.Errorf("FrequentItemsets = %d, want 7", rs.FrequentItemsets)
	}

	cfg.MaxItemsetSize = 2
	rs, err = MineFBT(context.Background(), baskets, cfg)
	if err != nil {
		t.Fatalf("MineFBT() error = %v", err)
	}
	if rs.FrequentItemsets != 6 {
		t.Errorf("FrequentItemsets with max size 2 = %d, want 6", rs.FrequentItemsets)
	}
	for _, rules := range rs.Rules {
		for _, r := range rules {
			if r.Confidence != 1 || r.Lift != 1 {
				t.Errorf("rule %+v, want confidence 1 and lift 1", r)
			}
		}
	}
}

func TestMineFBT_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := MineFBT(ctx, testBaskets(), DefaultFBTConfig()); !errors.Is(err, context.Canceled) {
		t.Errorf("MineFBT() error = %v, want context.Canceled", err)
	}
}
