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

const runColumns = `id, model_config_id, model_type, status, parameters_snapshot, metrics,
	error, stage, reported_progress, version_id, submitted_at, started_at, completed_at, duration_ms`

type runRow struct {
	params  string
	metrics string
}

func runArgs(run *recommend.TrainingRun) ([]any, error) {
	params, err := encodeJSON(run.ParametersSnapshot)
	if err != nil {
		return nil, err
	}
	metricsJSON, err := encodeJSON(run.Metrics)
	if err != nil {
		return nil, err
	}
	return []any{
		run.ID, run.ModelConfigID, string(run.ModelType), string(run.Status), params, metricsJSON,
		run.Error, string(run.Stage), run.ReportedProgress, run.VersionID,
		run.SubmittedAt.UTC(), utcPtr(run.StartedAt), utcPtr(run.CompletedAt), run.Duration.Milliseconds(),
	}, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func scanRun(row interface{ Scan(...any) error }) (*recommend.TrainingRun, error) {
	var (
		r         recommend.TrainingRun
		raw       runRow
		mt        string
		status    string
		stage     string
		started   sql.NullTime
		completed sql.NullTime
		durMS     int64
	)
	if err := row.Scan(&r.ID, &r.ModelConfigID, &mt, &status, &raw.params, &raw.metrics,
		&r.Error, &stage, &r.ReportedProgress, &r.VersionID, &r.SubmittedAt, &started, &completed, &durMS); err != nil {
		return nil, err
	}
	r.ModelType = recommend.ModelType(mt)
	r.Status = recommend.RunStatus(status)
	r.Stage = recommend.Stage(stage)
	r.Duration = time.Duration(durMS) * time.Millisecond
	if started.Valid {
		t := started.Time
		r.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}

	var err error
	if r.ParametersSnapshot, err = decodeHyperparameters(raw.params); err != nil {
		return nil, err
	}
	if r.Metrics, err = decodeMetrics(raw.metrics); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRun implements training.RunRepository.
func (db *DB) CreateRun(ctx context.Context, run *recommend.TrainingRun) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("insert", "training_runs", start, err) }(time.Now())

	args, err := runArgs(run)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO training_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...); err != nil {
		return fmt.Errorf("insert training run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRun implements training.RunRepository.
func (db *DB) UpdateRun(ctx context.Context, run *recommend.TrainingRun) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("update", "training_runs", start, err) }(time.Now())

	params, err := encodeJSON(run.ParametersSnapshot)
	if err != nil {
		return err
	}
	metricsJSON, err := encodeJSON(run.Metrics)
	if err != nil {
		return err
	}

	var affected int64
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		// Identity columns are indexed and never change, so they are not rewritten.
		res, err := tx.ExecContext(ctx, `
			UPDATE training_runs SET
				status = ?, parameters_snapshot = ?, metrics = ?, error = ?, stage = ?,
				reported_progress = ?, version_id = ?, started_at = ?, completed_at = ?, duration_ms = ?
			WHERE id = ?`,
			string(run.Status), params, metricsJSON, run.Error, string(run.Stage),
			run.ReportedProgress, run.VersionID, utcPtr(run.StartedAt), utcPtr(run.CompletedAt),
			run.Duration.Milliseconds(), run.ID)
		if err != nil {
			return fmt.Errorf("update training run %s: %w", run.ID, err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("training run %s: %w", run.ID, recommend.ErrNotFound)
	}
	return nil
}

// GetRun implements training.RunRepository.
func (db *DB) GetRun(ctx context.Context, id string) (_ *recommend.TrainingRun, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "training_runs", start, err) }(time.Now())

	run, err := scanRun(db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM training_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training run %s: %w", id, recommend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query training run %s: %w", id, err)
	}
	return run, nil
}

// ListRunsByStatus implements training.RunRepository.
func (db *DB) ListRunsByStatus(ctx context.Context, statuses ...recommend.RunStatus) ([]*recommend.TrainingRun, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	where, args := query.NewWhereBuilder().AddIn("status", names).BuildWithPrefix()
	return db.listRuns(ctx, `SELECT `+runColumns+` FROM training_runs `+where+` ORDER BY submitted_at, id`, args...)
}

// ListRunsByConfig returns the newest runs of a config, newest first.
func (db *DB) ListRunsByConfig(ctx context.Context, configID string, limit int) ([]*recommend.TrainingRun, error) {
	return db.listRuns(ctx, `SELECT `+runColumns+` FROM training_runs
		WHERE model_config_id = ? ORDER BY submitted_at DESC, id DESC LIMIT ?`, configID, max(limit, 1))
}

func (db *DB) listRuns(ctx context.Context, q string, args ...any) (out []*recommend.TrainingRun, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer func(start time.Time) { observe("select", "training_runs", start, err) }(time.Now())

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query training runs: %w", err)
	}
	defer closeWithLog(rows, "run rows")

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
