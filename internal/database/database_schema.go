// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

// tableCreationQueries returns the CREATE TABLE statements.
//
// Columns that are updated in place (status, is_active, progress) carry no
// index: DuckDB rewrites indexed rows as delete plus insert, which makes
// concurrent updates conflict.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			specification TEXT NOT NULL DEFAULT '',
			brand TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			price DOUBLE NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id INTEGER NOT NULL,
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			unit_price DOUBLE NOT NULL DEFAULT 0,
			PRIMARY KEY (order_id, product_id)
		);`,
		`CREATE TABLE IF NOT EXISTS model_configs (
			id TEXT PRIMARY KEY,
			model_type TEXT NOT NULL,
			hyperparameters TEXT NOT NULL DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			training_schedule TEXT NOT NULL DEFAULT 'manual',
			schedule_spec TEXT NOT NULL DEFAULT '',
			performance_threshold DOUBLE NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			model_config_id TEXT NOT NULL,
			model_type TEXT NOT NULL,
			status TEXT NOT NULL,
			parameters_snapshot TEXT NOT NULL DEFAULT '{}',
			metrics TEXT NOT NULL DEFAULT '{}',
			error TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL DEFAULT '',
			reported_progress DOUBLE NOT NULL DEFAULT 0,
			version_id TEXT NOT NULL DEFAULT '',
			submitted_at TIMESTAMP NOT NULL,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			duration_ms BIGINT NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS model_versions (
			id TEXT PRIMARY KEY,
			model_config_id TEXT NOT NULL,
			model_type TEXT NOT NULL,
			training_run_id TEXT NOT NULL,
			version_number INTEGER NOT NULL,
			artifact_location TEXT NOT NULL,
			artifact_size BIGINT NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			performance_metrics TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			UNIQUE (model_config_id, version_number)
		);`,
		`CREATE TABLE IF NOT EXISTS user_segments (
			user_id INTEGER PRIMARY KEY,
			cluster INTEGER NOT NULL,
			version_id TEXT NOT NULL,
			recency_days DOUBLE NOT NULL,
			frequency_count INTEGER NOT NULL,
			monetary_total DOUBLE NOT NULL,
			avg_order_value DOUBLE NOT NULL,
			unique_items INTEGER NOT NULL,
			avg_days_between_orders DOUBLE NOT NULL,
			std_days_between_orders DOUBLE NOT NULL,
			assigned_at TIMESTAMP NOT NULL
		);`,
	}
}

func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range indexCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func indexCreationQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id);`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);`,
		`CREATE INDEX IF NOT EXISTS idx_versions_config ON model_versions(model_config_id);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_config ON training_runs(model_config_id);`,
	}
}
