// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/shelfwise/internal/database/query"
	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/loader"
)

// OrderCancelled is excluded from baskets and trending volume.
const OrderCancelled = "cancelled"

// Order is a catalog order with its line items.
type Order struct {
	ID        int
	UserID    int
	Status    string
	CreatedAt time.Time
	Items     []OrderItem
}

// OrderItem is one purchased product in an order.
type OrderItem struct {
	ProductID int
	Quantity  int
	UnitPrice float64
}

// CatalogStats summarizes the catalog tables.
type CatalogStats struct {
	Products         int     `json:"products"`
	Users            int     `json:"users"`
	Orders           int     `json:"orders"`
	FulfilledOrders  int     `json:"fulfilled_orders"`
	FulfilledRevenue float64 `json:"fulfilled_revenue"`
}

func observe(operation, table string, start time.Time, err error) {
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
}

// FulfilledInteractions implements loader.Source.
func (db *DB) FulfilledInteractions(ctx context.Context, maxOrders int) (out []recommend.InteractionRecord, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "order_items", start, err) }(time.Now())

	wb := query.NewWhereBuilder().AddIn("status", db.fulfilled)
	where, args := wb.BuildWithPrefix()
	limit := ""
	if maxOrders > 0 {
		limit = "LIMIT ?"
		args = append(args, maxOrders)
	}

	q := fmt.Sprintf(`
		WITH recent AS (
			SELECT id, user_id, created_at FROM orders
			%s
			ORDER BY created_at DESC, id DESC
			%s
		)
		SELECT r.user_id, oi.product_id, r.id, oi.quantity, oi.unit_price, r.created_at
		FROM recent r
		JOIN order_items oi ON oi.order_id = r.id
		ORDER BY r.created_at, r.id, oi.product_id`, where, limit)

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer closeWithLog(rows, "interaction rows")

	for rows.Next() {
		var in recommend.InteractionRecord
		if err := rows.Scan(&in.UserID, &in.ItemID, &in.OrderID, &in.Quantity, &in.UnitPrice, &in.Timestamp); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Products implements loader.Source.
func (db *DB) Products(ctx context.Context) (out []recommend.Product, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "products", start, err) }(time.Now())

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, description, specification, brand, category, price
		FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer closeWithLog(rows, "product rows")

	for rows.Next() {
		var p recommend.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Specification, &p.Brand, &p.Category, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Users implements loader.Source.
func (db *DB) Users(ctx context.Context) (out []recommend.User, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "users", start, err) }(time.Now())

	rows, err := db.conn.QueryContext(ctx, `SELECT id, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeWithLog(rows, "user rows")

	for rows.Next() {
		var u recommend.User
		if err := rows.Scan(&u.ID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Baskets implements fbt.BasketSource: the product ids of every
// non-cancelled order, in order id order.
func (db *DB) Baskets(ctx context.Context) (out [][]int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "order_items", start, err) }(time.Now())

	rows, err := db.conn.QueryContext(ctx, `
		SELECT oi.order_id, oi.product_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status <> ?
		ORDER BY oi.order_id, oi.product_id`, OrderCancelled)
	if err != nil {
		return nil, fmt.Errorf("query baskets: %w", err)
	}
	defer closeWithLog(rows, "basket rows")

	current := -1
	for rows.Next() {
		var orderID, productID int
		if err := rows.Scan(&orderID, &productID); err != nil {
			return nil, fmt.Errorf("scan basket line: %w", err)
		}
		if orderID != current {
			out = append(out, nil)
			current = orderID
		}
		out[len(out)-1] = append(out[len(out)-1], productID)
	}
	return out, rows.Err()
}

// UserRFM implements segments.FeatureSource. Recency is measured against
// the latest fulfilled order in the catalog, matching training. A user
// without fulfilled orders yields nil.
func (db *DB) UserRFM(ctx context.Context, userID int) (_ *recommend.RFMFeatures, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "orders", start, err) }(time.Now())

	wb := query.NewWhereBuilder().AddIn("o.status", db.fulfilled).AddClause("o.user_id = ?", userID)
	where, args := wb.BuildWithPrefix()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT o.user_id, oi.product_id, o.id, oi.quantity, oi.unit_price, o.created_at
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		`+where+`
		ORDER BY o.created_at, o.id, oi.product_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query user interactions: %w", err)
	}
	defer closeWithLog(rows, "user interaction rows")

	var interactions []recommend.InteractionRecord
	for rows.Next() {
		var in recommend.InteractionRecord
		if err := rows.Scan(&in.UserID, &in.ItemID, &in.OrderID, &in.Quantity, &in.UnitPrice, &in.Timestamp); err != nil {
			return nil, fmt.Errorf("scan user interaction: %w", err)
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(interactions) == 0 {
		return nil, nil
	}

	ref, err := db.latestFulfilledOrder(ctx)
	if err != nil {
		return nil, err
	}
	features := loader.BuildRFM(interactions, ref)
	return &features[0], nil
}

func (db *DB) latestFulfilledOrder(ctx context.Context) (time.Time, error) {
	where, args := query.NewWhereBuilder().AddIn("status", db.fulfilled).BuildWithPrefix()
	var latest sql.NullTime
	if err := db.conn.QueryRowContext(ctx, `SELECT MAX(created_at) FROM orders `+where, args...).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("query latest order: %w", err)
	}
	if !latest.Valid {
		return db.now().UTC(), nil
	}
	return latest.Time, nil
}

// UpsertProducts inserts or replaces catalog products.
func (db *DB) UpsertProducts(ctx context.Context, products []recommend.Product) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("upsert", "products", start, err) }(time.Now())

	return db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range products {
			p := &products[i]
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO products (id, name, description, specification, brand, category, price)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.Name, p.Description, p.Specification, p.Brand, p.Category, p.Price); err != nil {
				return fmt.Errorf("upsert product %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// UpsertUsers inserts or replaces users.
func (db *DB) UpsertUsers(ctx context.Context, users []recommend.User) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("upsert", "users", start, err) }(time.Now())

	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range users {
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO users (id, created_at) VALUES (?, ?)`,
				u.ID, u.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("upsert user %d: %w", u.ID, err)
			}
		}
		return nil
	})
}

// InsertOrder writes an order and its lines in one transaction.
func (db *DB) InsertOrder(ctx context.Context, o *Order) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("insert", "orders", start, err) }(time.Now())

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO orders (id, user_id, status, created_at) VALUES (?, ?, ?, ?)`,
			o.ID, o.UserID, o.Status, o.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert order %d: %w", o.ID, err)
		}
		for _, it := range o.Items {
			qty := max(it.Quantity, 1)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, product_id, quantity, unit_price, line_total)
				VALUES (?, ?, ?, ?, ?)`,
				o.ID, it.ProductID, qty, it.UnitPrice, float64(qty)*it.UnitPrice); err != nil {
				return fmt.Errorf("insert order %d item %d: %w", o.ID, it.ProductID, err)
			}
		}
		return nil
	})
}

// SetOrderStatus updates an order's status.
func (db *DB) SetOrderStatus(ctx context.Context, orderID int, status string) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("update", "orders", start, err) }(time.Now())

	res, err := db.conn.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, orderID)
	if err != nil {
		return fmt.Errorf("update order %d: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // duckdb always reports affected rows
		return fmt.Errorf("order %d: %w", orderID, recommend.ErrNotFound)
	}
	return nil
}

// Stats returns catalog row counts and fulfilled revenue.
func (db *DB) Stats(ctx context.Context) (_ *CatalogStats, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "catalog", start, err) }(time.Now())

	where, args := query.NewWhereBuilder().AddIn("o.status", db.fulfilled).BuildWithPrefix()
	q := `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM orders o ` + where + `),
			(SELECT COALESCE(SUM(oi.line_total), 0) FROM order_items oi JOIN orders o ON o.id = oi.order_id ` + where + `)`
	args = append(args, args...)

	var s CatalogStats
	if err := db.conn.QueryRowContext(ctx, q, args...).Scan(
		&s.Products, &s.Users, &s.Orders, &s.FulfilledOrders, &s.FulfilledRevenue); err != nil {
		return nil, fmt.Errorf("query catalog stats: %w", err)
	}
	return &s, nil
}
