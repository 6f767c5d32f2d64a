// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/shelfwise/internal/database"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/fbt"
)

const healthCheckTimeout = 2 * time.Second

// HealthLive reports that the process is serving HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady reports whether the catalog store answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health == nil {
		respondSuccess(w, r, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	if err := h.deps.Health.Ping(ctx); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "database unavailable", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// ServedModel describes one model in the serving cache.
type ServedModel struct {
	ModelType     recommend.ModelType `json:"model_type"`
	VersionID     string              `json:"version_id"`
	VersionNumber int                 `json:"version_number"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status       string                   `json:"status"`
	Uptime       string                   `json:"uptime"`
	DatabaseOK   bool                     `json:"database_ok"`
	Catalog      *database.CatalogStats   `json:"catalog,omitempty"`
	Models       []ServedModel            `json:"models"`
	Rules        *fbt.Stats               `json:"rules,omitempty"`
	TrainingRuns []*recommend.TrainingRun `json:"training_runs"`
}

// Health summarizes catalog size, served models, rules and in-flight runs.
// A failing database makes the status "degraded" but the call still succeeds.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "healthy",
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		DatabaseOK:   true,
		Models:       []ServedModel{},
		TrainingRuns: []*recommend.TrainingRun{},
	}

	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		stats, err := h.deps.Health.Stats(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.DatabaseOK = false
		} else {
			resp.Catalog = stats
		}
	}

	if h.deps.Models != nil {
		snap := h.deps.Models.Snapshot()
		for _, mt := range recommend.AllModelTypes() {
			if m, ok := snap[mt]; ok {
				resp.Models = append(resp.Models, ServedModel{ModelType: mt, VersionID: m.VersionID, VersionNumber: m.VersionNumber})
			}
		}
	}
	if h.deps.Rules != nil {
		st := h.deps.Rules.Stats()
		resp.Rules = &st
	}
	if h.deps.Training != nil {
		resp.TrainingRuns = h.deps.Training.InFlight()
	}

	respondSuccess(w, r, http.StatusOK, resp)
}
