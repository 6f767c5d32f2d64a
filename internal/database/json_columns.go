// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	if string(b) == "null" {
		return "{}", nil
	}
	return string(b), nil
}

func decodeHyperparameters(s string) (recommend.Hyperparameters, error) {
	hp := recommend.Hyperparameters{}
	if s == "" {
		return hp, nil
	}
	if err := json.Unmarshal([]byte(s), &hp); err != nil {
		return nil, fmt.Errorf("decode hyperparameters: %w", err)
	}
	return hp, nil
}

func decodeMetrics(s string) (map[string]float64, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	m := make(map[string]float64)
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return m, nil
}
