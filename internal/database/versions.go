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

const versionColumns = `id, model_config_id, model_type, training_run_id, version_number,
	artifact_location, artifact_size, checksum, is_active, performance_metrics, created_at`

func scanVersion(row interface{ Scan(...any) error }) (*recommend.ModelVersion, error) {
	var (
		v    recommend.ModelVersion
		mt   string
		perf string
	)
	if err := row.Scan(&v.ID, &v.ModelConfigID, &mt, &v.TrainingRunID, &v.VersionNumber,
		&v.ArtifactLocation, &v.ArtifactSize, &v.Checksum, &v.IsActive, &perf, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.ModelType = recommend.ModelType(mt)
	m, err := decodeMetrics(perf)
	if err != nil {
		return nil, err
	}
	v.PerformanceMetrics = m
	return &v, nil
}

// NextVersionNumber implements versions.Repository.
func (db *DB) NextVersionNumber(ctx context.Context, configID string) (_ int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "model_versions", start, err) }(time.Now())

	var highest int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM model_versions WHERE model_config_id = ?`,
		configID).Scan(&highest); err != nil {
		return 0, fmt.Errorf("query highest version of %s: %w", configID, err)
	}
	return highest + 1, nil
}

// Create implements versions.Repository.
func (db *DB) Create(ctx context.Context, v *recommend.ModelVersion) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("insert", "model_versions", start, err) }(time.Now())

	perf, err := encodeJSON(v.PerformanceMetrics)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO model_versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ModelConfigID, string(v.ModelType), v.TrainingRunID, v.VersionNumber,
		v.ArtifactLocation, v.ArtifactSize, v.Checksum, v.IsActive, perf, v.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert model version %s: %w", v.ID, err)
	}
	return nil
}

// Get implements versions.Repository.
func (db *DB) Get(ctx context.Context, id string) (_ *recommend.ModelVersion, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "model_versions", start, err) }(time.Now())

	v, err := scanVersion(db.conn.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM model_versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model version %s: %w", id, recommend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query model version %s: %w", id, err)
	}
	return v, nil
}

// ListByConfig implements versions.Repository.
func (db *DB) ListByConfig(ctx context.Context, configID string) ([]*recommend.ModelVersion, error) {
	return db.listVersions(ctx, `SELECT `+versionColumns+` FROM model_versions
		WHERE model_config_id = ? ORDER BY created_at DESC, version_number DESC`, configID)
}

// GetActive implements versions.Repository.
func (db *DB) GetActive(ctx context.Context, configID string) (_ *recommend.ModelVersion, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "model_versions", start, err) }(time.Now())

	v, err := scanVersion(db.conn.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM model_versions WHERE model_config_id = ? AND is_active LIMIT 1`, configID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active version of %s: %w", configID, recommend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query active version of %s: %w", configID, err)
	}
	return v, nil
}

// SetActive implements versions.Repository: one UPDATE inside a
// transaction flips every version of the config.
func (db *DB) SetActive(ctx context.Context, configID, versionID string) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("update", "model_versions", start, err) }(time.Now())

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT model_config_id FROM model_versions WHERE id = ?`, versionID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != configID) {
			return fmt.Errorf("model version %s: %w", versionID, recommend.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query model version %s: %w", versionID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE model_versions SET is_active = (id = ?) WHERE model_config_id = ?`,
			versionID, configID); err != nil {
			return fmt.Errorf("activate model version %s: %w", versionID, err)
		}
		return nil
	})
}

// Delete implements versions.Repository.
func (db *DB) Delete(ctx context.Context, id string) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("delete", "model_versions", start, err) }(time.Now())

	res, err := db.conn.ExecContext(ctx, `DELETE FROM model_versions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model version %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // duckdb always reports affected rows
		return fmt.Errorf("model version %s: %w", id, recommend.ErrNotFound)
	}
	return nil
}

// ListActive implements versions.Repository.
func (db *DB) ListActive(ctx context.Context) ([]*recommend.ModelVersion, error) {
	return db.listVersions(ctx, `SELECT `+versionColumns+` FROM model_versions WHERE is_active ORDER BY created_at, id`)
}

func (db *DB) listVersions(ctx context.Context, q string, args ...any) (out []*recommend.ModelVersion, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "model_versions", start, err) }(time.Now())

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query model versions: %w", err)
	}
	defer closeWithLog(rows, "version rows")

	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
