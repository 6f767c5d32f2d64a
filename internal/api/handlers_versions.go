// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"errors"
	"net/http"
)

// ListVersions returns the versions of a config, newest first.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Versions == nil {
		h.unavailable(w, r, "versions")
		return
	}
	configID := r.URL.Query().Get("config_id")
	if configID == "" {
		badRequest(w, r, errors.New("config_id is required"))
		return
	}
	versions, err := h.deps.Versions.List(r.Context(), configID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, versions)
}

// GetVersion returns one version.
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	if h.deps.Versions == nil {
		h.unavailable(w, r, "versions")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	v, err := h.deps.Versions.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, v)
}

// ActivateVersion makes a version the one served for its config.
func (h *Handler) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	if h.deps.Versions == nil {
		h.unavailable(w, r, "versions")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	v, err := h.deps.Versions.Activate(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, v)
}

// DeleteVersion removes an inactive version and its artifact.
func (h *Handler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	if h.deps.Versions == nil {
		h.unavailable(w, r, "versions")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	if err := h.deps.Versions.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// CleanupResponse reports how many versions a cleanup removed.
type CleanupResponse struct {
	ConfigID string `json:"config_id"`
	Deleted  int    `json:"deleted"`
}

// CleanupVersions keeps the newest versions of a config plus the active one.
func (h *Handler) CleanupVersions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Versions == nil {
		h.unavailable(w, r, "versions")
		return
	}
	configID, err := pathID(r, "configID")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	n, err := h.deps.Versions.Cleanup(r.Context(), configID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, CleanupResponse{ConfigID: configID, Deleted: n})
}
