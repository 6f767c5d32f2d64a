// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
)

// ErrBlobNotFound is returned by backends for unknown keys.
// It wraps recommend.ErrNotFound.
var ErrBlobNotFound = fmt.Errorf("blob %w", recommend.ErrNotFound)

// ErrChecksumMismatch means a stored payload no longer matches its checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Backend stores opaque blobs by key.
type Backend interface {
	// Put writes data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the blob stored under key or ErrBlobNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every key with the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Name identifies the backend in artifact locations.
	Name() string

	// Close releases backend resources.
	Close() error
}

// Metadata describes one stored blob.
type Metadata struct {
	// Key is the backend key the blob was written under.
	Key string `json:"key"`

	// ModelType is set for artifacts and empty for other snapshots.
	ModelType recommend.ModelType `json:"model_type,omitempty"`

	// Checksum is the SHA-256 of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`

	// SavedAt is when the blob was written.
	SavedAt time.Time `json:"saved_at"`
}

// record is the persisted blob format.
type record struct {
	Metadata       Metadata
	CompressedData []byte
}

// OpenBackend opens the backend named by kind: "file" (default), "badger",
// or "memory" for an in-memory BadgerDB.
func OpenBackend(kind, path string) (Backend, error) {
	switch kind {
	case "", "file":
		return NewFileBackend(path)
	case "badger":
		return OpenBadger(BadgerConfig{Path: path, SyncWrites: true})
	case "memory":
		return OpenBadger(BadgerConfig{InMemory: true})
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", kind)
	}
}

// Store encodes values into the blob format and delegates to a Backend.
type Store struct {
	backend Backend
	now     func() time.Time
}

// NewStore wraps a backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// ArtifactKey returns the key for a model version's artifact.
func ArtifactKey(modelType recommend.ModelType, configID string, version int) string {
	return fmt.Sprintf("%s/%s/v%d.gob.gz", modelType, configID, version)
}

// Location returns the backend-qualified location for key.
func (s *Store) Location(key string) string {
	return s.backend.Name() + "://" + key
}

// KeyFromLocation strips the backend prefix from a location.
// Bare keys are returned unchanged.
func KeyFromLocation(location string) string {
	if i := strings.Index(location, "://"); i >= 0 {
		return location[i+3:]
	}
	return location
}

// Save gob-encodes value, compresses it, and writes it under key.
func (s *Store) Save(ctx context.Context, key string, value any) (*Metadata, error) {
	return s.save(ctx, key, "", value)
}

// SaveArtifact stores a trained artifact in an envelope.
func (s *Store) SaveArtifact(ctx context.Context, key string, art recommend.Artifact) (*Metadata, error) {
	if art == nil {
		return nil, errors.New("save artifact: nil artifact")
	}
	return s.save(ctx, key, art.ModelType(), &algorithms.Envelope{Artifact: art})
}

func (s *Store) save(ctx context.Context, key string, modelType recommend.ModelType, value any) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(value); err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}

	hash := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compress %s: %w", key, err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	rec := record{
		Metadata: Metadata{
			Key:       key,
			ModelType: modelType,
			Checksum:  hex.EncodeToString(hash[:]),
			SizeBytes: int64(compressed.Len()),
			SavedAt:   s.now().UTC(),
		},
		CompressedData: compressed.Bytes(),
	}

	var out bytes.Buffer
	if err := gob.NewEncoder(&out).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record %s: %w", key, err)
	}
	if err := s.backend.Put(ctx, key, out.Bytes()); err != nil {
		return nil, fmt.Errorf("write %s: %w", key, err)
	}

	meta := rec.Metadata
	return &meta, nil
}

// Load reads key, verifies its checksum, and decodes it into target.
func (s *Store) Load(ctx context.Context, key string, target any) (*Metadata, error) {
	rec, raw, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &rec.Metadata, nil
}

// LoadArtifact reads an artifact and checks it is of the expected type.
func (s *Store) LoadArtifact(ctx context.Context, key string, want recommend.ModelType) (recommend.Artifact, *Metadata, error) {
	var env algorithms.Envelope
	meta, err := s.Load(ctx, key, &env)
	if err != nil {
		return nil, nil, err
	}
	art, err := env.Open(want)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", key, err)
	}
	return art, meta, nil
}

// Stat returns the metadata of key without decoding the payload.
func (s *Store) Stat(ctx context.Context, key string) (*Metadata, error) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("read record %s: %w", key, err)
	}
	return &rec.Metadata, nil
}

func (s *Store) read(ctx context.Context, key string) (*record, []byte, error) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	var rec record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, nil, fmt.Errorf("read record %s: %w", key, err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(rec.CompressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(raw)
	if got := hex.EncodeToString(hash[:]); got != rec.Metadata.Checksum {
		return nil, nil, fmt.Errorf("%w for %s: expected %s, got %s", ErrChecksumMismatch, key, rec.Metadata.Checksum, got)
	}
	return &rec, raw, nil
}

// Delete removes key from the backend.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns the keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// validateKey rejects keys that could escape a backend namespace.
func validateKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	return nil
}
