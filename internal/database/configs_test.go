// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

func TestUpsertConfig_SingleActivePerType(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := &recommend.ModelConfig{
		ModelType:       recommend.ModelCollaborative,
		Hyperparameters: recommend.Hyperparameters{"factors": 32, "regularization": 0.05},
		IsActive:        true,
	}
	if err := db.UpsertConfig(ctx, first); err != nil {
		t.Fatalf("UpsertConfig(first) error = %v", err)
	}
	if first.ID == "" {
		t.Fatal("UpsertConfig() did not assign an id")
	}

	second := &recommend.ModelConfig{ModelType: recommend.ModelCollaborative, IsActive: true}
	if err := db.UpsertConfig(ctx, second); err != nil {
		t.Fatalf("UpsertConfig(second) error = %v", err)
	}

	active, err := db.ActiveConfig(ctx, recommend.ModelCollaborative)
	if err != nil {
		t.Fatalf("ActiveConfig() error = %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("ActiveConfig() = %s, want %s", active.ID, second.ID)
	}

	got, err := db.GetConfig(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if got.IsActive {
		t.Error("first config still active")
	}
	if got.Hyperparameters.Int("factors", 0) != 32 || got.Hyperparameters.Float("regularization", 0) != 0.05 {
		t.Errorf("Hyperparameters = %v", got.Hyperparameters)
	}
	if got.TrainingSchedule != recommend.ScheduleManual {
		t.Errorf("TrainingSchedule = %q, want manual", got.TrainingSchedule)
	}

	if err := db.ActivateConfig(ctx, first.ID); err != nil {
		t.Fatalf("ActivateConfig() error = %v", err)
	}
	active, _ = db.ActiveConfig(ctx, recommend.ModelCollaborative) //nolint:errcheck // checked above
	if active == nil || active.ID != first.ID {
		t.Errorf("after ActivateConfig ActiveConfig() = %+v, want %s", active, first.ID)
	}
	if err := db.ActivateConfig(ctx, "missing"); !errors.Is(err, recommend.ErrNotFound) {
		t.Errorf("ActivateConfig(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpsertConfig_Errors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertConfig(ctx, &recommend.ModelConfig{ModelType: "bogus"}); err == nil {
		t.Error("UpsertConfig(bogus type) error = nil")
	}
	if _, err := db.ActiveConfig(ctx, recommend.ModelReorder); !errors.Is(err, recommend.ErrNotFound) {
		t.Errorf("ActiveConfig(none) error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetConfig(ctx, "missing"); !errors.Is(err, recommend.ErrNotFound) {
		t.Errorf("GetConfig(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPeriodicConfigs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, c := range []*recommend.ModelConfig{
		{ModelType: recommend.ModelContent, IsActive: true, TrainingSchedule: recommend.SchedulePeriodic, ScheduleSpec: "@daily"},
		{ModelType: recommend.ModelClustering, IsActive: false, TrainingSchedule: recommend.SchedulePeriodic, ScheduleSpec: "@weekly"},
		{ModelType: recommend.ModelReorder, IsActive: true, TrainingSchedule: recommend.ScheduleManual},
	} {
		if err := db.UpsertConfig(ctx, c); err != nil {
			t.Fatalf("UpsertConfig() error = %v", err)
		}
	}

	got, err := db.PeriodicConfigs(ctx)
	if err != nil {
		t.Fatalf("PeriodicConfigs() error = %v", err)
	}
	if len(got) != 1 || got[0].ModelType != recommend.ModelContent || got[0].ScheduleSpec != "@daily" {
		t.Errorf("PeriodicConfigs() = %+v, want only the content config", got)
	}
}

func TestSeedDefaultConfigs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	defaults := func(mt recommend.ModelType) recommend.Hyperparameters {
		return recommend.Hyperparameters{"model": string(mt)}
	}

	n, err := db.SeedDefaultConfigs(ctx, defaults)
	if err != nil {
		t.Fatalf("SeedDefaultConfigs() error = %v", err)
	}
	if n != 4 {
		t.Errorf("SeedDefaultConfigs() = %d, want 4", n)
	}
	for _, mt := range recommend.AllModelTypes() {
		c, err := db.ActiveConfig(ctx, mt)
		if err != nil {
			t.Fatalf("ActiveConfig(%s) error = %v", mt, err)
		}
		if c.Hyperparameters["model"] != string(mt) {
			t.Errorf("%s hyperparameters = %v", mt, c.Hyperparameters)
		}
	}

	// Seeding is skipped once configs exist.
	if n, err := db.SeedDefaultConfigs(ctx, defaults); err != nil || n != 0 {
		t.Errorf("second SeedDefaultConfigs() = %d, %v; want 0, nil", n, err)
	}
}
