// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package supervisor runs Shelfwise's long-lived services under a suture v4 tree.

	RootSupervisor ("shelfwise")
	├── TrainingSupervisor ("training-layer")
	│   ├── training.Orchestrator
	│   └── services.ScheduleService
	└── APISupervisor ("api-layer")
	    └── services.HTTPServerService

A service that returns an error is restarted with backoff. Failures are
counted per layer, so a crash-looping HTTP server does not restart the
orchestrator and its in-flight runs.

Shutdown cancels the root context. The orchestrator cancels running jobs and
marks them failed; ShutdownTimeout bounds the wait. Services still running
after it are listed by UnstoppedServiceReport.

Supervisor events go to the slog logger given to NewSupervisorTree, which
cmd/server bridges to zerolog with logging.NewSlogLogger.
*/
package supervisor
