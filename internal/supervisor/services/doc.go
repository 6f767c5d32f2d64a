// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package services adapts components that are not natively context-driven to
suture.Service.

HTTPServerService translates ListenAndServe/Shutdown into Serve(ctx) with a
bounded drain on cancellation.

ScheduleService owns a robfig/cron instance. It submits a training run for
every active periodic model config on that config's cron expression and
refreshes frequently-bought-together rules on the FBT schedule. Periodic
configs are re-read on an interval, so schedule edits take effect without a
restart. A tick that finds the config's previous run still in flight is
skipped rather than queued.
*/
package services
