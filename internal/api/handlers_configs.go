// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/validation"
)

// UpsertConfigRequest is the body of PUT /api/v1/configs. An empty ID
// creates a config.
type UpsertConfigRequest struct {
	ID                   string                    `json:"id" validate:"omitempty,max=64"`
	ModelType            string                    `json:"model_type" validate:"required,modeltype"`
	Hyperparameters      recommend.Hyperparameters `json:"hyperparameters"`
	IsActive             bool                      `json:"is_active"`
	TrainingSchedule     string                    `json:"training_schedule" validate:"omitempty,oneof=manual periodic"`
	ScheduleSpec         string                    `json:"schedule_spec" validate:"required_if=TrainingSchedule periodic,omitempty,cronspec"`
	PerformanceThreshold float64                   `json:"performance_threshold" validate:"gte=0"`
}

// ListConfigs returns every model config.
func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Configs == nil {
		h.unavailable(w, r, "configs")
		return
	}
	configs, err := h.deps.Configs.ListConfigs(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, configs)
}

// GetConfig returns one model config.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	if h.deps.Configs == nil {
		h.unavailable(w, r, "configs")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	cfg, err := h.deps.Configs.GetConfig(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, cfg)
}

// UpsertConfig creates or updates a model config. Saving an active config
// deactivates the other configs of its type.
func (h *Handler) UpsertConfig(w http.ResponseWriter, r *http.Request) {
	if h.deps.Configs == nil {
		h.unavailable(w, r, "configs")
		return
	}
	var req UpsertConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid JSON body", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(w, r, verr)
		return
	}

	cfg := &recommend.ModelConfig{
		ID:                   req.ID,
		ModelType:            recommend.ModelType(req.ModelType),
		Hyperparameters:      req.Hyperparameters,
		IsActive:             req.IsActive,
		TrainingSchedule:     recommend.Schedule(req.TrainingSchedule),
		ScheduleSpec:         req.ScheduleSpec,
		PerformanceThreshold: req.PerformanceThreshold,
	}
	status := http.StatusCreated
	if cfg.ID != "" {
		existing, err := h.deps.Configs.GetConfig(r.Context(), cfg.ID)
		switch {
		case err == nil:
			status = http.StatusOK
			cfg.CreatedAt = existing.CreatedAt
		case !errors.Is(err, recommend.ErrNotFound):
			respondServiceError(w, r, err)
			return
		}
	}
	if cfg.Hyperparameters == nil {
		cfg.Hyperparameters = recommend.Hyperparameters{}
	}

	if err := h.deps.Configs.UpsertConfig(r.Context(), cfg); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, status, cfg)
}

// ActivateConfig makes a config the active one of its model type.
func (h *Handler) ActivateConfig(w http.ResponseWriter, r *http.Request) {
	if h.deps.Configs == nil {
		h.unavailable(w, r, "configs")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	if err := h.deps.Configs.ActivateConfig(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	cfg, err := h.deps.Configs.GetConfig(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, cfg)
}
