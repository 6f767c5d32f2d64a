// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"net/http"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/validation"
)

// SubmitTrainingRequest is the body of POST /api/v1/training.
type SubmitTrainingRequest struct {
	ModelType       string                    `json:"model_type" validate:"required,modeltype"`
	Hyperparameters recommend.Hyperparameters `json:"hyperparameters,omitempty"`
}

// SubmitTraining queues a run for the active config of a model type.
func (h *Handler) SubmitTraining(w http.ResponseWriter, r *http.Request) {
	if h.deps.Training == nil {
		h.unavailable(w, r, "training")
		return
	}

	var req SubmitTrainingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid JSON body", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(w, r, verr)
		return
	}

	run, err := h.deps.Training.Submit(r.Context(), recommend.ModelType(req.ModelType), req.Hyperparameters)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/training/"+run.ID)
	respondSuccess(w, r, http.StatusAccepted, run)
}

// ListTraining returns in-flight runs, or the run history of one config
// when config_id is given.
func (h *Handler) ListTraining(w http.ResponseWriter, r *http.Request) {
	if h.deps.Training == nil {
		h.unavailable(w, r, "training")
		return
	}

	configID := r.URL.Query().Get("config_id")
	if configID == "" {
		respondSuccess(w, r, http.StatusOK, h.deps.Training.InFlight())
		return
	}
	if h.deps.Runs == nil {
		h.unavailable(w, r, "run history")
		return
	}
	limit, err := queryInt(r, "limit", 20, 1, maxResultLimit)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	runs, err := h.deps.Runs.ListRunsByConfig(r.Context(), configID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, runs)
}

// GetTraining returns a run with its progress percentage.
func (h *Handler) GetTraining(w http.ResponseWriter, r *http.Request) {
	if h.deps.Training == nil {
		h.unavailable(w, r, "training")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	status, err := h.deps.Training.Status(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, status)
}

// CancelTraining requests cooperative cancellation of a run.
func (h *Handler) CancelTraining(w http.ResponseWriter, r *http.Request) {
	if h.deps.Training == nil {
		h.unavailable(w, r, "training")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	if err := h.deps.Training.Cancel(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, map[string]string{"id": id, "status": "cancellation_requested"})
}

// TrainingLogs returns the recent log lines of a run.
func (h *Handler) TrainingLogs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Training == nil {
		h.unavailable(w, r, "training")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	logs, err := h.deps.Training.Logs(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, logs)
}
