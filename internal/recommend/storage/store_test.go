// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
)

func testContentModel() *algorithms.ContentModel {
	return &algorithms.ContentModel{
		ItemIDs:   []int{100, 200, 300},
		ItemIndex: map[int]int{100: 0, 200: 1, 300: 2},
		Similarity: [][]float32{
			{1, 0.8, 0.2},
			{0.8, 1, 0.05},
			{0.2, 0.05, 1},
		},
		MinSimilarity: 0.1,
	}
}

// backends returns every backend under test, each on fresh storage.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	fb, err := NewFileBackend(filepath.Join(t.TempDir(), "models"))
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	bb, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { _ = bb.Close() })

	return map[string]Backend{"file": fb, "badger": bb}
}

func TestStore_ArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			model := testContentModel()
			key := ArtifactKey(recommend.ModelContent, "cfg-1", 1)

			meta, err := store.SaveArtifact(ctx, key, model)
			if err != nil {
				t.Fatalf("SaveArtifact() error = %v", err)
			}
			if meta.Checksum == "" || meta.SizeBytes == 0 {
				t.Errorf("metadata = %+v, want checksum and size", meta)
			}
			if meta.ModelType != recommend.ModelContent {
				t.Errorf("ModelType = %s, want content", meta.ModelType)
			}

			loaded, loadedMeta, err := store.LoadArtifact(ctx, key, recommend.ModelContent)
			if err != nil {
				t.Fatalf("LoadArtifact() error = %v", err)
			}
			if loadedMeta.Checksum != meta.Checksum {
				t.Errorf("checksum = %s, want %s", loadedMeta.Checksum, meta.Checksum)
			}

			want := model.Score(100, nil)
			got := loaded.Score(100, nil)
			if len(got) != len(want) {
				t.Fatalf("Score() after load = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("Score()[%d] = %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestStore_LoadArtifactWrongType(t *testing.T) {
	ctx := context.Background()
	store := NewStore(backends(t)["file"])
	key := ArtifactKey(recommend.ModelContent, "cfg-1", 1)

	if _, err := store.SaveArtifact(ctx, key, testContentModel()); err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
	if _, _, err := store.LoadArtifact(ctx, key, recommend.ModelCollaborative); err == nil {
		t.Error("LoadArtifact() with wrong type should fail")
	}
}

func TestStore_SaveAndLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	type snapshot struct {
		Rules map[int][]int
		Count int
	}

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			in := snapshot{Rules: map[int][]int{1: {2, 3}}, Count: 12}
			if _, err := store.Save(ctx, "fbt/rules.gob.gz", in); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			var out snapshot
			meta, err := store.Load(ctx, "fbt/rules.gob.gz", &out)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if meta.ModelType != "" {
				t.Errorf("ModelType = %q, want empty for snapshots", meta.ModelType)
			}
			if out.Count != 12 || len(out.Rules[1]) != 2 {
				t.Errorf("Load() = %+v, want %+v", out, in)
			}
		})
	}
}

func TestStore_LoadMissing(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			var out map[string]int
			_, err := store.Load(ctx, "content/none/v1.gob.gz", &out)
			if !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("Load() error = %v, want ErrBlobNotFound", err)
			}
			if !errors.Is(err, recommend.ErrNotFound) {
				t.Errorf("Load() error = %v, want to wrap recommend.ErrNotFound", err)
			}
		})
	}
}

func TestStore_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	backend := backends(t)["badger"]
	store := NewStore(backend)
	key := "snap/a.gob.gz"

	if _, err := store.Save(ctx, key, []int{1, 2, 3}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := backend.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	rec.Metadata.Checksum = "0000"
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if err := backend.Put(ctx, key, buf.Bytes()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var out []int
	if _, err := store.Load(ctx, key, &out); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Load() error = %v, want ErrChecksumMismatch", err)
	}
}

func TestStore_CorruptBlob(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.gob.gz"), []byte("not a record"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var out []int
	if _, err := NewStore(backend).Load(ctx, "bad.gob.gz", &out); err == nil {
		t.Error("Load() of corrupt blob should fail")
	}
}

func TestStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			keys := []string{
				ArtifactKey(recommend.ModelContent, "cfg-1", 1),
				ArtifactKey(recommend.ModelContent, "cfg-1", 2),
				ArtifactKey(recommend.ModelReorder, "cfg-2", 1),
			}
			for _, k := range keys {
				if _, err := store.Save(ctx, k, k); err != nil {
					t.Fatalf("Save(%s) error = %v", k, err)
				}
			}

			got, err := store.List(ctx, "content/")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != 2 || got[0] != keys[0] || got[1] != keys[1] {
				t.Errorf("List(content/) = %v, want %v", got, keys[:2])
			}

			if err := store.Delete(ctx, keys[0]); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			// Deleting twice is not an error.
			if err := store.Delete(ctx, keys[0]); err != nil {
				t.Errorf("second Delete() error = %v", err)
			}

			got, err = store.List(ctx, "")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != 2 {
				t.Errorf("List() after delete = %v, want 2 keys", got)
			}
		})
	}
}

func TestStore_Stat(t *testing.T) {
	ctx := context.Background()
	store := NewStore(backends(t)["file"])
	key := ArtifactKey(recommend.ModelContent, "cfg-1", 3)

	saved, err := store.SaveArtifact(ctx, key, testContentModel())
	if err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
	meta, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if meta.Checksum != saved.Checksum || meta.Key != key {
		t.Errorf("Stat() = %+v, want %+v", meta, saved)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"content/cfg/v1.gob.gz", false},
		{"fbt.gob.gz", false},
		{"", true},
		{"/etc/passwd", true},
		{"../escape", true},
		{"a//b", true},
		{"a/./b", true},
		{`a\b`, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := validateKey(tt.key); (err != nil) != tt.wantErr {
				t.Errorf("validateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	store := NewStore(backends(t)["badger"])
	loc := store.Location("content/cfg/v1.gob.gz")
	if loc != "badger://content/cfg/v1.gob.gz" {
		t.Errorf("Location() = %s", loc)
	}
	if got := KeyFromLocation(loc); got != "content/cfg/v1.gob.gz" {
		t.Errorf("KeyFromLocation() = %s", got)
	}
	if got := KeyFromLocation("plain/key"); got != "plain/key" {
		t.Errorf("KeyFromLocation(bare) = %s", got)
	}
}

func TestOpenBackend(t *testing.T) {
	tests := []struct {
		kind    string
		want    string
		wantErr bool
	}{
		{"", "file", false},
		{"file", "file", false},
		{"memory", "badger", false},
		{"s3", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			b, err := OpenBackend(tt.kind, t.TempDir())
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenBackend(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer func() { _ = b.Close() }()
			if b.Name() != tt.want {
				t.Errorf("Name() = %s, want %s", b.Name(), tt.want)
			}
		})
	}
}
