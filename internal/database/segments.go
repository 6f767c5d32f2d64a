// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// ReplaceSegments implements segments.Writer. The previous assignment is
// replaced wholesale in one transaction.
func (db *DB) ReplaceSegments(ctx context.Context, versionID string, rows []recommend.RFMFeatures) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("replace", "user_segments", start, err) }(time.Now())

	now := db.now().UTC()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_segments`); err != nil {
			return fmt.Errorf("clear user segments: %w", err)
		}
		for i := range rows {
			f := &rows[i]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO user_segments (user_id, cluster, version_id, recency_days, frequency_count,
					monetary_total, avg_order_value, unique_items, avg_days_between_orders,
					std_days_between_orders, assigned_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				f.UserID, f.Cluster, versionID, f.RecencyDays, f.FrequencyCount, f.MonetaryTotal,
				f.AvgOrderValue, f.UniqueItems, f.AvgDaysBetweenOrders, f.StdDaysBetweenOrders, now); err != nil {
				return fmt.Errorf("insert segment of user %d: %w", f.UserID, err)
			}
		}
		return nil
	})
}

// StoredSegment returns the persisted segment row of a user.
func (db *DB) StoredSegment(ctx context.Context, userID int) (_ *recommend.RFMFeatures, versionID string, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "user_segments", start, err) }(time.Now())

	var f recommend.RFMFeatures
	err = db.conn.QueryRowContext(ctx, `
		SELECT user_id, cluster, version_id, recency_days, frequency_count, monetary_total,
			avg_order_value, unique_items, avg_days_between_orders, std_days_between_orders
		FROM user_segments WHERE user_id = ?`, userID).Scan(
		&f.UserID, &f.Cluster, &versionID, &f.RecencyDays, &f.FrequencyCount, &f.MonetaryTotal,
		&f.AvgOrderValue, &f.UniqueItems, &f.AvgDaysBetweenOrders, &f.StdDaysBetweenOrders)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("segment of user %d: %w", userID, recommend.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("query segment of user %d: %w", userID, err)
	}
	return &f, versionID, nil
}
