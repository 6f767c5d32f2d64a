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

	"github.com/tomtom215/shelfwise/internal/database/query"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// GetUserProfile implements recommend.DataProvider. PurchaseCount is the
// number of fulfilled purchase lines.
func (db *DB) GetUserProfile(ctx context.Context, userID int) (_ *recommend.UserProfile, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "users", start, err) }(time.Now())

	profile := &recommend.UserProfile{UserID: userID}

	var created time.Time
	switch err := db.conn.QueryRowContext(ctx, `SELECT created_at FROM users WHERE id = ?`, userID).Scan(&created); {
	case err == nil:
		profile.Known = true
		profile.CreatedAt = created
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("query user %d: %w", userID, err)
	}

	where, args := query.NewWhereBuilder().
		AddIn("o.status", db.fulfilled).
		AddClause("o.user_id = ?", userID).
		BuildWithPrefix()
	if err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM order_items oi JOIN orders o ON o.id = oi.order_id `+where,
		args...).Scan(&profile.PurchaseCount); err != nil {
		return nil, fmt.Errorf("count purchases of user %d: %w", userID, err)
	}
	if profile.PurchaseCount > 0 {
		profile.Known = true
	}
	return profile, nil
}

// GetPurchasedItems implements recommend.DataProvider.
func (db *DB) GetPurchasedItems(ctx context.Context, userID int) (_ []int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "order_items", start, err) }(time.Now())

	where, args := query.NewWhereBuilder().
		AddIn("o.status", db.fulfilled).
		AddClause("o.user_id = ?", userID).
		BuildWithPrefix()
	return db.queryInts(ctx, `
		SELECT DISTINCT oi.product_id
		FROM order_items oi JOIN orders o ON o.id = oi.order_id
		`+where+`
		ORDER BY oi.product_id`, args...)
}

// GetRecentPurchases implements recommend.DataProvider.
func (db *DB) GetRecentPurchases(ctx context.Context, userID int, limit int) (_ []int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "order_items", start, err) }(time.Now())

	where, args := query.NewWhereBuilder().
		AddIn("o.status", db.fulfilled).
		AddClause("o.user_id = ?", userID).
		BuildWithPrefix()
	args = append(args, max(limit, 1))
	return db.queryInts(ctx, `
		SELECT oi.product_id
		FROM order_items oi JOIN orders o ON o.id = oi.order_id
		`+where+`
		GROUP BY oi.product_id
		ORDER BY MAX(o.created_at) DESC, oi.product_id
		LIMIT ?`, args...)
}

// GetTrending implements recommend.DataProvider. Each non-cancelled order
// line inside the window contributes quantity * 0.5^(age / half-life).
func (db *DB) GetTrending(ctx context.Context, q recommend.TrendingQuery) (out []recommend.ScoredItem, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "trending", start, err) }(time.Now())

	now := q.Now
	if now.IsZero() {
		now = db.now()
	}
	now = now.UTC()
	halfLife := q.HalfLife.Seconds()
	if halfLife <= 0 {
		halfLife = (7 * 24 * time.Hour).Seconds()
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	wb := query.NewWhereBuilder().AddClause("o.status <> ?", OrderCancelled)
	if q.Window > 0 {
		wb.AddSince("o.created_at", now.Add(-q.Window))
	}
	wb.AddClause("o.created_at <= ?", now)
	wb.AddEqual("p.category", q.Category)
	where, whereArgs := wb.BuildWithPrefix()

	args := make([]any, 0, len(whereArgs)+3)
	args = append(args, float64(now.UnixMilli())/1000, halfLife)
	args = append(args, whereArgs...)
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT oi.product_id,
		       SUM(oi.quantity * POWER(0.5, (? - epoch(o.created_at)) / ?)) AS score
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		`+where+`
		GROUP BY oi.product_id
		ORDER BY score DESC, oi.product_id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query trending: %w", err)
	}
	defer closeWithLog(rows, "trending rows")

	for rows.Next() {
		var it recommend.ScoredItem
		if err := rows.Scan(&it.ItemID, &it.Score); err != nil {
			return nil, fmt.Errorf("scan trending item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetCategoryItems implements recommend.DataProvider.
func (db *DB) GetCategoryItems(ctx context.Context, category string) (_ []int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "products", start, err) }(time.Now())

	return db.queryInts(ctx, `SELECT id FROM products WHERE category = ? ORDER BY id`, category)
}

func (db *DB) queryInts(ctx context.Context, q string, args ...any) ([]int, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer closeWithLog(rows, "id rows")

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
