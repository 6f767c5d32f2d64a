// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

var testBase = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// syntheticDataset builds two disjoint purchase communities. Users 1-20
// buy from items 1-5, users 21-40 from items 6-10. Each user skips one
// item of their group and rebuys every even-positioned item 30 days later.
func syntheticDataset() *recommend.Dataset {
	ds := &recommend.Dataset{}
	orderID := 0
	add := func(user, item int, ts time.Time) {
		orderID++
		ds.Interactions = append(ds.Interactions, recommend.InteractionRecord{
			UserID:    user,
			ItemID:    item,
			OrderID:   orderID,
			Quantity:  1,
			UnitPrice: float64(10 + item),
			Timestamp: ts,
		})
		if ts.After(ds.ReferenceTime) {
			ds.ReferenceTime = ts
		}
	}

	for u := 1; u <= 40; u++ {
		group := 0
		if u > 20 {
			group = 1
		}
		for k := 0; k < 5; k++ {
			if k == u%5 {
				continue
			}
			item := group*5 + k + 1
			ts := testBase.Add(time.Duration(u*24+k*72) * time.Hour)
			add(u, item, ts)
			if k%2 == 0 {
				add(u, item, ts.AddDate(0, 0, 30))
			}
		}
	}
	return ds
}

// collect drains a progress channel after training finished.
func collect(ch chan recommend.Progress) []recommend.Progress {
	close(ch)
	var out []recommend.Progress
	for p := range ch {
		out = append(out, p)
	}
	return out
}

// stagesInOrder reports whether every checkpoint appears, in order.
func stagesInOrder(events []recommend.Progress) bool {
	want := []recommend.Stage{
		recommend.StageDataPrepared,
		recommend.StageFitting,
		recommend.StageEvaluating,
		recommend.StageFinalizing,
	}
	i := 0
	for _, e := range events {
		if i < len(want) && e.Stage == want[i] {
			i++
		}
	}
	return i == len(want)
}
