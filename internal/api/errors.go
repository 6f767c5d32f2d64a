// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/training"
)

// Error codes returned in APIError.Code.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnknownModelType   = "UNKNOWN_MODEL_TYPE"
	CodeDuplicateJob       = "DUPLICATE_JOB"
	CodeConcurrencyLimit   = "CONCURRENCY_LIMIT"
	CodeInsufficientData   = "INSUFFICIENT_DATA"
	CodeNotFound           = "NOT_FOUND"
	CodeActiveVersion      = "ACTIVE_VERSION"
	CodeAlreadyTerminal    = "ALREADY_TERMINAL"
	CodeCannotActivate     = "CANNOT_ACTIVATE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// errorStatus maps a service error to its HTTP status and client-facing
// error. Unrecognized errors are 500 with a generic message.
func errorStatus(err error) (int, *APIError) {
	var dup *recommend.DuplicateJobError
	switch {
	case errors.As(err, &dup):
		return http.StatusConflict, &APIError{
			Code:    CodeDuplicateJob,
			Message: "a training job for this config is already queued or running",
			Details: map[string]any{
				"model_config_id": dup.ModelConfigID,
				"existing_run_id": dup.ExistingRunID,
			},
		}
	case errors.Is(err, recommend.ErrDuplicateJob):
		return http.StatusConflict, &APIError{Code: CodeDuplicateJob, Message: err.Error()}
	case errors.Is(err, recommend.ErrConcurrencyLimit):
		return http.StatusTooManyRequests, &APIError{Code: CodeConcurrencyLimit, Message: err.Error()}
	case errors.Is(err, training.ErrUnknownModelType):
		return http.StatusBadRequest, &APIError{Code: CodeUnknownModelType, Message: err.Error()}
	case errors.Is(err, recommend.ErrCannotActivate):
		if errors.Is(err, recommend.ErrNotFound) {
			return http.StatusNotFound, &APIError{Code: CodeNotFound, Message: err.Error()}
		}
		return http.StatusUnprocessableEntity, &APIError{Code: CodeCannotActivate, Message: err.Error()}
	case errors.Is(err, recommend.ErrNotFound):
		return http.StatusNotFound, &APIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, recommend.ErrInsufficientData):
		return http.StatusUnprocessableEntity, &APIError{Code: CodeInsufficientData, Message: err.Error()}
	case errors.Is(err, recommend.ErrCannotDeleteActiveVersion):
		return http.StatusConflict, &APIError{Code: CodeActiveVersion, Message: err.Error()}
	case errors.Is(err, recommend.ErrAlreadyTerminal):
		return http.StatusConflict, &APIError{Code: CodeAlreadyTerminal, Message: err.Error()}
	default:
		return http.StatusInternalServerError, &APIError{Code: CodeInternal, Message: "internal server error"}
	}
}
