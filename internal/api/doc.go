// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package api binds Shelfwise's services to HTTP using the chi router.

# Routes

	GET    /api/v1/health/live                     process is up
	GET    /api/v1/health/ready                    DuckDB reachable
	GET    /api/v1/health                          catalog, model and rule summary

	POST   /api/v1/training                        submit a run (rate limited per IP)
	GET    /api/v1/training                        queued and running runs
	GET    /api/v1/training/{id}                   status and progress
	POST   /api/v1/training/{id}/cancel            cooperative cancellation
	GET    /api/v1/training/{id}/logs              recent log lines

	GET    /api/v1/recommendations/user/{userID}   hybrid recommendations
	GET    /api/v1/recommendations/fbt/{itemID}    frequently bought together

	GET    /api/v1/configs                         model configs
	PUT    /api/v1/configs                         create or update a config
	POST   /api/v1/configs/{id}/activate           make a config active for its type

	GET    /api/v1/versions?config_id=             versions of a config, newest first
	GET    /api/v1/versions/{id}                   one version
	POST   /api/v1/versions/{id}/activate          publish a version to serving
	DELETE /api/v1/versions/{id}                   delete an inactive version
	POST   /api/v1/versions/cleanup/{configID}     keep only the newest versions

	GET    /api/v1/segments/user/{userID}          customer segment
	GET    /api/v1/segments/sizes                  users per segment

	GET    /metrics                                Prometheus exposition

# Responses

Every JSON body uses the same envelope:

	{"status": "success", "data": ..., "metadata": {"timestamp": ...}}
	{"status": "error", "error": {"code": "DUPLICATE_JOB", "message": ...}, "metadata": {...}}

Service errors map to status codes in one place (errorStatus): duplicate
jobs and deleting the active version are 409, the training ceiling is 429,
insufficient data is 422 and unknown ids are 404.
*/
package api
