// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/shelfwise/internal/logging"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// maxCategoryLength bounds the category filter.
const maxCategoryLength = 128

// UserRecommendations serves hybrid recommendations.
//
// Query parameters: n, adaptive, include_purchased, category and the weight
// overrides w_collaborative, w_content, w_trending. Any weight present
// replaces the configured blend; absent ones count as zero.
func (h *Handler) UserRecommendations(w http.ResponseWriter, r *http.Request) {
	if h.deps.Recommender == nil {
		h.unavailable(w, r, "recommendations")
		return
	}
	start := time.Now()

	req, err := parseRecommendRequest(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	resp, err := h.deps.Recommender.Recommend(r.Context(), req)
	if err != nil {
		// Only a cancelled request context ends up here.
		respondError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "request cancelled", err)
		return
	}
	respondTimed(w, r, resp, start)
}

func parseRecommendRequest(r *http.Request) (recommend.Request, error) {
	userID, err := pathInt(r, "userID")
	if err != nil {
		return recommend.Request{}, err
	}
	n, err := queryInt(r, "n", 0, 1, maxResultLimit)
	if err != nil {
		return recommend.Request{}, err
	}
	adaptive, err := queryBool(r, "adaptive", false)
	if err != nil {
		return recommend.Request{}, err
	}
	includePurchased, err := queryBool(r, "include_purchased", false)
	if err != nil {
		return recommend.Request{}, err
	}
	category := r.URL.Query().Get("category")
	if len(category) > maxCategoryLength {
		return recommend.Request{}, errors.New("category is too long")
	}

	req := recommend.Request{
		UserID:           userID,
		N:                n,
		Adaptive:         adaptive,
		IncludePurchased: includePurchased,
		Category:         category,
		RequestID:        logging.RequestIDFromContext(r.Context()),
	}

	var weights recommend.Weights
	var anyWeight bool
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"w_collaborative", &weights.Collaborative},
		{"w_content", &weights.Content},
		{"w_trending", &weights.Trending},
	} {
		v, ok, err := queryFloat(r, p.name)
		if err != nil {
			return recommend.Request{}, err
		}
		if ok {
			*p.dst = v
			anyWeight = true
		}
	}
	if anyWeight {
		req.Weights = &weights
	}
	return req, nil
}

// FBTResponse is the body of the frequently-bought-together route.
type FBTResponse struct {
	ItemID int                         `json:"item_id"`
	Rules  []recommend.AssociationRule `json:"rules"`
}

// FrequentlyBoughtTogether returns association rules for an item.
// Unknown items and an untrained miner both yield an empty list.
func (h *Handler) FrequentlyBoughtTogether(w http.ResponseWriter, r *http.Request) {
	if h.deps.Rules == nil {
		h.unavailable(w, r, "frequently bought together")
		return
	}
	start := time.Now()
	itemID, err := pathInt(r, "itemID")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	n, err := queryInt(r, "n", 10, 1, maxResultLimit)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	respondTimed(w, r, FBTResponse{ItemID: itemID, Rules: h.deps.Rules.Recommend(itemID, n)}, start)
}
