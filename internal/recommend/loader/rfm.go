// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package loader

import (
	"math"
	"sort"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

type rfmAccumulator struct {
	last   time.Time
	lines  int
	total  float64
	orders map[int]time.Time
	items  map[int]struct{}
}

// BuildRFM aggregates per-user RFM features from purchase lines.
//
//   - recency: days from the user's last purchase to ref
//   - frequency: purchase lines
//   - monetary: sum of unit price times quantity
//   - average order value: monetary over distinct orders
//   - order gaps: mean and population std of days between distinct orders
//
// Users are returned in ascending ID order with Cluster set to -1.
func BuildRFM(interactions []recommend.InteractionRecord, ref time.Time) []recommend.RFMFeatures {
	acc := make(map[int]*rfmAccumulator)
	for i := range interactions {
		in := &interactions[i]
		a, ok := acc[in.UserID]
		if !ok {
			a = &rfmAccumulator{
				orders: make(map[int]time.Time),
				items:  make(map[int]struct{}),
			}
			acc[in.UserID] = a
		}
		a.lines++
		a.total += in.UnitPrice * float64(in.Quantity)
		a.items[in.ItemID] = struct{}{}
		if in.Timestamp.After(a.last) {
			a.last = in.Timestamp
		}
		if ts, seen := a.orders[in.OrderID]; !seen || in.Timestamp.Before(ts) {
			a.orders[in.OrderID] = in.Timestamp
		}
	}

	users := make([]int, 0, len(acc))
	for id := range acc {
		users = append(users, id)
	}
	sort.Ints(users)

	out := make([]recommend.RFMFeatures, 0, len(users))
	for _, id := range users {
		a := acc[id]
		f := recommend.RFMFeatures{
			UserID:         id,
			RecencyDays:    ref.Sub(a.last).Hours() / 24,
			FrequencyCount: a.lines,
			MonetaryTotal:  a.total,
			UniqueItems:    len(a.items),
			Cluster:        -1,
		}
		if len(a.orders) > 0 {
			f.AvgOrderValue = a.total / float64(len(a.orders))
		}
		f.AvgDaysBetweenOrders, f.StdDaysBetweenOrders = orderGaps(a.orders)
		out = append(out, f)
	}
	return out
}

// orderGaps returns mean and population std of days between consecutive
// distinct orders. Fewer than two orders yields zeros.
func orderGaps(orders map[int]time.Time) (mean, std float64) {
	if len(orders) < 2 {
		return 0, 0
	}
	times := make([]time.Time, 0, len(orders))
	for _, ts := range orders {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Hours()/24)
	}

	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	for _, g := range gaps {
		d := g - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(gaps)))
	return mean, std
}
