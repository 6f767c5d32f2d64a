// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package training runs model training jobs in the background.

The Orchestrator accepts submissions, executes them on a bounded worker
pool, and forwards successful artifacts to the version store where they
become the active version of their config.

# Lifecycle

	queued -> running -> completed | failed | cancelled

Submissions are rejected when the config already has a queued or running
job (recommend.DuplicateJobError) or when queued plus running jobs meet the
ceiling (recommend.ErrConcurrencyLimit). The duplicate check runs first.

Terminal runs never change again. Cancelling a queued run is immediate.
Cancelling a running run cancels its context; trainers observe it at their
checkpoints, and a result that still arrives is discarded. Once a run has
started publishing its version the cancel is refused with
recommend.ErrAlreadyTerminal.

# Progress

Status reports the larger of the trainer's last checkpoint and the elapsed
share of the expected duration for the model type, capped at 95 until the
run completes.

# Restarts

Serve marks runs left queued or running by a previous process as failed
before the workers start.

# Usage

	orch := training.New(training.Deps{
		Runs:      runRepo,
		Configs:   configRepo,
		Loader:    dataLoader,
		Publisher: versionStore,
		Trainers:  algorithms.TrainerFor,
	}, training.DefaultConfig(), logger)

	// Serve under the supervisor.
	tree.AddTrainingService(orch)

	run, err := orch.Submit(ctx, recommend.ModelCollaborative, nil)
*/
package training
