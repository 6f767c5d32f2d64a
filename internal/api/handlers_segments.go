// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"net/http"
	"sort"
)

// UserSegment returns a user's customer segment.
func (h *Handler) UserSegment(w http.ResponseWriter, r *http.Request) {
	if h.deps.Segments == nil {
		h.unavailable(w, r, "segments")
		return
	}
	userID, err := pathInt(r, "userID")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	a, err := h.deps.Segments.Segment(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, a)
}

// SegmentSize is the number of trained users in one cluster.
type SegmentSize struct {
	Cluster int `json:"cluster"`
	Users   int `json:"users"`
}

// SegmentSizes returns users per cluster, ordered by cluster.
func (h *Handler) SegmentSizes(w http.ResponseWriter, r *http.Request) {
	if h.deps.Segments == nil {
		h.unavailable(w, r, "segments")
		return
	}
	sizes, err := h.deps.Segments.Sizes()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	out := make([]SegmentSize, 0, len(sizes))
	for c, n := range sizes {
		out = append(out, SegmentSize{Cluster: c, Users: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	respondSuccess(w, r, http.StatusOK, out)
}
