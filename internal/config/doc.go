// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package config loads Shelfwise configuration.

Configuration is layered with koanf, lowest precedence first:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, else config.yaml, config.yml,
    /etc/shelfwise/config.yaml
 3. Environment variables

Only the environment variables listed in envMappings are read; anything
else in the environment is ignored. Common ones:

  - HTTP_HOST, HTTP_PORT: listen address (default 0.0.0.0:8470)
  - LOG_LEVEL, LOG_FORMAT: zerolog level and json|console output
  - DUCKDB_PATH, DUCKDB_MAX_MEMORY: catalog database
  - TRAINING_MAX_CONCURRENT_JOBS: worker pool and queue ceiling (default 2)
  - TRAINING_RETAIN_VERSIONS: versions kept per config by cleanup (default 3)
  - MODEL_STORE_BACKEND, MODEL_STORE_PATH: artifact store (file|badger|memory)
  - FBT_REFRESH_SCHEDULE: cron spec for association rule refresh

# Example

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(cfg.Server.Addr())
*/
package config
