// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package storage persists trained model artifacts and other training
// snapshots as opaque blobs.
//
// # Format
//
// Every blob is a gob-encoded record holding metadata and a gzip-compressed
// gob payload. The metadata carries the SHA-256 checksum of the uncompressed
// payload, which is verified on every load:
//
//	record:
//	  - Metadata (key, model type, checksum, size, saved_at)
//	  - CompressedData (gzip(gob(value)))
//
// Artifacts are wrapped in an algorithms.Envelope so the concrete model type
// survives the round trip behind the recommend.Artifact interface.
//
// # Backends
//
// The Store is backend-agnostic. Two backends are provided:
//
//   - FileBackend: one file per key under a base directory, written to a
//     temporary file and renamed into place
//   - BadgerBackend: keys in an embedded BadgerDB, optionally in memory
//
// Keys are slash-separated paths such as
//
//	collaborative/3f1c.../v4.gob.gz
//
// built with ArtifactKey.
//
// # Thread Safety
//
// Store methods are safe for concurrent use. Backends serialize their own
// writes; readers never block each other.
package storage
