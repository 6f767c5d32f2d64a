// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData means the training set is below a trainer's minimum
	// or the catalog store could not be read.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrConcurrencyLimit means queued plus running jobs already meet the ceiling.
	ErrConcurrencyLimit = errors.New("training concurrency limit reached")

	// ErrDuplicateJob means the config already has a queued or running job.
	ErrDuplicateJob = errors.New("training job already in progress for config")

	// ErrTrainerFailure wraps any other error raised while fitting.
	ErrTrainerFailure = errors.New("trainer failure")

	// ErrCannotDeleteActiveVersion guards the active version against deletion.
	ErrCannotDeleteActiveVersion = errors.New("cannot delete active model version")

	// ErrCannotActivate means the version is unknown or its artifact is unreadable.
	ErrCannotActivate = errors.New("cannot activate model version")

	// ErrNoModelAvailable is internal to serving and never returned to callers.
	ErrNoModelAvailable = errors.New("no model available")

	// ErrAlreadyTerminal is returned when cancelling a finished run.
	ErrAlreadyTerminal = errors.New("training run already terminal")

	// ErrNotFound is returned for unknown runs, versions and configs.
	ErrNotFound = errors.New("not found")
)

// DuplicateJobError carries the run that blocks a duplicate submission.
type DuplicateJobError struct {
	ModelConfigID string
	ExistingRunID string
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("%s: config %s has run %s", ErrDuplicateJob.Error(), e.ModelConfigID, e.ExistingRunID)
}

// Unwrap allows errors.Is(err, ErrDuplicateJob).
func (e *DuplicateJobError) Unwrap() error {
	return ErrDuplicateJob
}

// InsufficientData builds an ErrInsufficientData with the observed and required counts.
func InsufficientData(what string, have, need int) error {
	return fmt.Errorf("%w: %d %s, need at least %d", ErrInsufficientData, have, what, need)
}
