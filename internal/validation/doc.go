// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package validation validates API request bodies with go-playground/validator.
//
// A single validator instance is shared process-wide; it caches struct
// metadata after first use. Field names in messages are the JSON names, so
// clients see the keys they sent.
//
// Besides the built-in tags, two domain tags are registered:
//
//	modeltype   collaborative, content, clustering or reorder
//	cronspec    a standard five-field cron expression or @descriptor
//
// Usage:
//
//	type submitRequest struct {
//	    ModelType string `json:"model_type" validate:"required,modeltype"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    ...
//	}
package validation
