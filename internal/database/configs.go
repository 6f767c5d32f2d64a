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

	"github.com/google/uuid"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// ConfigRepository is the model configuration store.
type ConfigRepository interface {
	ActiveConfig(ctx context.Context, modelType recommend.ModelType) (*recommend.ModelConfig, error)
	GetConfig(ctx context.Context, id string) (*recommend.ModelConfig, error)
	ListConfigs(ctx context.Context) ([]*recommend.ModelConfig, error)
	UpsertConfig(ctx context.Context, cfg *recommend.ModelConfig) error
	ActivateConfig(ctx context.Context, id string) error
	PeriodicConfigs(ctx context.Context) ([]*recommend.ModelConfig, error)
}

var _ ConfigRepository = (*DB)(nil)

const configColumns = `id, model_type, hyperparameters, is_active, training_schedule,
	schedule_spec, performance_threshold, created_at, updated_at`

func scanConfig(row interface{ Scan(...any) error }) (*recommend.ModelConfig, error) {
	var (
		c  recommend.ModelConfig
		mt string
		hp string
		sc string
	)
	if err := row.Scan(&c.ID, &mt, &hp, &c.IsActive, &sc, &c.ScheduleSpec,
		&c.PerformanceThreshold, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ModelType = recommend.ModelType(mt)
	c.TrainingSchedule = recommend.Schedule(sc)
	params, err := decodeHyperparameters(hp)
	if err != nil {
		return nil, err
	}
	c.Hyperparameters = params
	return &c, nil
}

// ActiveConfig implements training.ConfigProvider.
func (db *DB) ActiveConfig(ctx context.Context, modelType recommend.ModelType) (_ *recommend.ModelConfig, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "model_configs", start, err) }(time.Now())

	c, err := scanConfig(db.conn.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM model_configs WHERE model_type = ? AND is_active ORDER BY updated_at DESC LIMIT 1`,
		string(modelType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active %s config: %w", modelType, recommend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query active %s config: %w", modelType, err)
	}
	return c, nil
}

// GetConfig returns a config by id.
func (db *DB) GetConfig(ctx context.Context, id string) (_ *recommend.ModelConfig, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "model_configs", start, err) }(time.Now())

	c, err := scanConfig(db.conn.QueryRowContext(ctx, `SELECT `+configColumns+` FROM model_configs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model config %s: %w", id, recommend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query model config %s: %w", id, err)
	}
	return c, nil
}

// ListConfigs returns every config ordered by model type then creation.
func (db *DB) ListConfigs(ctx context.Context) ([]*recommend.ModelConfig, error) {
	return db.listConfigs(ctx, `SELECT `+configColumns+` FROM model_configs ORDER BY model_type, created_at, id`)
}

// PeriodicConfigs returns the active configs trained on a schedule.
func (db *DB) PeriodicConfigs(ctx context.Context) ([]*recommend.ModelConfig, error) {
	return db.listConfigs(ctx, `SELECT `+configColumns+` FROM model_configs
		WHERE is_active AND training_schedule = ? AND schedule_spec <> ''
		ORDER BY model_type`, string(recommend.SchedulePeriodic))
}

func (db *DB) listConfigs(ctx context.Context, q string, args ...any) (out []*recommend.ModelConfig, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "model_configs", start, err) }(time.Now())

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query model configs: %w", err)
	}
	defer closeWithLog(rows, "config rows")

	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertConfig inserts or updates a config. An empty ID is assigned a UUID.
// Saving an active config deactivates the other configs of its model type.
func (db *DB) UpsertConfig(ctx context.Context, cfg *recommend.ModelConfig) (err error) {
	if !cfg.ModelType.Valid() {
		return fmt.Errorf("unknown model type %q", cfg.ModelType)
	}
	if cfg.TrainingSchedule == "" {
		cfg.TrainingSchedule = recommend.ScheduleManual
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("upsert", "model_configs", start, err) }(time.Now())

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := db.now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	hp, err := encodeJSON(cfg.Hyperparameters)
	if err != nil {
		return err
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if cfg.IsActive {
			if _, err := tx.ExecContext(ctx,
				`UPDATE model_configs SET is_active = FALSE, updated_at = ? WHERE model_type = ? AND id <> ? AND is_active`,
				now, string(cfg.ModelType), cfg.ID); err != nil {
				return fmt.Errorf("deactivate %s configs: %w", cfg.ModelType, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO model_configs (`+configColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				model_type = excluded.model_type,
				hyperparameters = excluded.hyperparameters,
				is_active = excluded.is_active,
				training_schedule = excluded.training_schedule,
				schedule_spec = excluded.schedule_spec,
				performance_threshold = excluded.performance_threshold,
				updated_at = excluded.updated_at`,
			cfg.ID, string(cfg.ModelType), hp, cfg.IsActive, string(cfg.TrainingSchedule),
			cfg.ScheduleSpec, cfg.PerformanceThreshold, cfg.CreatedAt, cfg.UpdatedAt); err != nil {
			return fmt.Errorf("upsert model config %s: %w", cfg.ID, err)
		}
		return nil
	})
}

// ActivateConfig makes id the single active config of its model type.
func (db *DB) ActivateConfig(ctx context.Context, id string) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("update", "model_configs", start, err) }(time.Now())

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var mt string
		if err := tx.QueryRowContext(ctx, `SELECT model_type FROM model_configs WHERE id = ?`, id).Scan(&mt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("model config %s: %w", id, recommend.ErrNotFound)
			}
			return fmt.Errorf("query model config %s: %w", id, err)
		}
		now := db.now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE model_configs SET is_active = (id = ?), updated_at = ? WHERE model_type = ?`,
			id, now, mt); err != nil {
			return fmt.Errorf("activate model config %s: %w", id, err)
		}
		return nil
	})
}

// SeedDefaultConfigs inserts one active manual config per model type when
// the table is empty. It reports how many were created.
func (db *DB) SeedDefaultConfigs(ctx context.Context, defaults func(recommend.ModelType) recommend.Hyperparameters) (int, error) {
	existing, err := db.ListConfigs(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, mt := range recommend.AllModelTypes() {
		cfg := &recommend.ModelConfig{
			ModelType:        mt,
			Hyperparameters:  defaults(mt),
			IsActive:         true,
			TrainingSchedule: recommend.ScheduleManual,
		}
		if err := db.UpsertConfig(ctx, cfg); err != nil {
			return 0, err
		}
	}
	return len(recommend.AllModelTypes()), nil
}
