// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/segments"
)

var (
	_ segments.Writer        = (*DB)(nil)
	_ segments.FeatureSource = (*DB)(nil)
)

func timeMinutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func TestReplaceSegments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := []recommend.RFMFeatures{
		{UserID: 1, Cluster: 0, RecencyDays: 2, FrequencyCount: 3, MonetaryTotal: 60},
		{UserID: 2, Cluster: 1, RecencyDays: 30, FrequencyCount: 1, MonetaryTotal: 15},
	}
	if err := db.ReplaceSegments(ctx, "v-1", first); err != nil {
		t.Fatalf("ReplaceSegments(v-1) error = %v", err)
	}

	got, versionID, err := db.StoredSegment(ctx, 2)
	if err != nil {
		t.Fatalf("StoredSegment() error = %v", err)
	}
	if versionID != "v-1" || got.Cluster != 1 || got.MonetaryTotal != 15 {
		t.Errorf("StoredSegment(2) = %+v from %s", got, versionID)
	}

	// A new clustering version replaces the whole table.
	if err := db.ReplaceSegments(ctx, "v-2", first[:1]); err != nil {
		t.Fatalf("ReplaceSegments(v-2) error = %v", err)
	}
	if _, _, err := db.StoredSegment(ctx, 2); !errors.Is(err, recommend.ErrNotFound) {
		t.Errorf("StoredSegment(2) after replace error = %v, want ErrNotFound", err)
	}
	if _, versionID, err := db.StoredSegment(ctx, 1); err != nil || versionID != "v-2" {
		t.Errorf("StoredSegment(1) = %s, %v; want v-2", versionID, err)
	}
}
