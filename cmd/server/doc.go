// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package main is the entry point for the Shelfwise server.

Shelfwise trains recommendation models over an order catalog stored in
DuckDB and serves hybrid recommendations, frequently-bought-together rules
and customer segments over HTTP.

# Supervisor Tree

	RootSupervisor ("shelfwise")
	├── TrainingSupervisor ("training-layer")
	│   ├── training-orchestrator   queued runs, worker pool of MaxConcurrentJobs
	│   └── schedule-service        periodic configs and FBT mining (cron)
	└── APISupervisor ("api-layer")
	    └── http-server             chi router

A crashing HTTP server restarts without touching in-flight training runs.

# Startup Order

 1. Configuration (koanf: defaults, config.yaml, environment)
 2. DuckDB catalog store, migrations, optional config seeding
 3. Artifact store (file, badger or memory) and model cache warm-up
 4. Data loader behind a circuit breaker
 5. Orchestrator, engine (with optional MMR reranker), FBT miner, segment service
 6. Supervisor tree

# Configuration

Common environment variables:

	HTTP_PORT                      listen port (default 8080)
	DUCKDB_PATH                    catalog database file
	MODEL_STORE_BACKEND            file, badger or memory
	MODEL_STORE_PATH               artifact directory
	TRAINING_MAX_CONCURRENT_JOBS   queued plus running ceiling (default 2)
	TRAINING_MAX_ORDERS            recent fulfilled orders per dataset (default 50000)
	TRAINING_SCHEDULER_ENABLED     submit periodic configs on their cron spec
	FBT_REFRESH_SCHEDULE           cron spec for rule mining
	RECOMMEND_DIVERSITY_ENABLED    MMR reranking of recommendations
	LOG_LEVEL, LOG_FORMAT          zerolog settings

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains, running
training jobs are cancelled and marked failed, and the database is closed.
*/
package main
