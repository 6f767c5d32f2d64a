// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package cache provides a bounded, thread-safe LRU cache with per-entry TTL.

The recommendation engine keeps one entry per distinct request shape and
clears the whole cache whenever a model version is activated, so stale
rankings never outlive the artifact that produced them.

# Behavior

  - Get, Add and Remove are O(1)
  - Adding past capacity evicts the least recently used entry
  - Expired entries are dropped lazily on Get, or in bulk by CleanupExpired
  - Get moves an entry to the front; Contains does not

# Usage

	c := cache.NewLRU[*Response](10000, 5*time.Minute)
	c.Add(key, resp)
	if resp, ok := c.Get(key); ok {
		// serve cached
	}
	c.Clear() // on model swap
*/
package cache
