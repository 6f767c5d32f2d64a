// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package versions manages model versions and the process-wide cache of
// active artifacts.
//
// Each model config has a numbered history of versions. At most one is
// active. Store.Activate flips the active flag in one repository
// transaction and swaps the artifact into the Cache inside the same short
// critical section, so serving sees either the old or the new model and
// never a mix. Store.Cleanup keeps the newest versions and skips the active
// one; deleting the active version outright is refused.
//
// The Cache implements recommend.ModelSource. Reads are a single atomic
// pointer load.
package versions
