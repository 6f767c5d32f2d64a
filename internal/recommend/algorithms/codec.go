// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"encoding/gob"
	"fmt"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// Envelope carries an artifact through gob, which needs a concrete
// registered type behind the interface field.
type Envelope struct {
	Artifact recommend.Artifact
}

// Open returns the artifact after checking it matches the expected type.
func (e *Envelope) Open(want recommend.ModelType) (recommend.Artifact, error) {
	if e.Artifact == nil {
		return nil, fmt.Errorf("envelope holds no artifact")
	}
	if got := e.Artifact.ModelType(); got != want {
		return nil, fmt.Errorf("artifact is %s, want %s", got, want)
	}
	return e.Artifact, nil
}

// Register gob types for serialization.
//
//nolint:gochecknoinits // gob.Register must be called in init for type registration
func init() {
	gob.Register(&CollaborativeModel{})
	gob.Register(&ContentModel{})
	gob.Register(&ClusteringModel{})
	gob.Register(&ReorderModel{})
}
