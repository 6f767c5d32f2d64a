// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package fbt serves frequently-bought-together rules.
//
// Rules are mined with FP-growth over order baskets and published by
// swapping an atomic pointer, so lookups never wait on a refresh. The
// current rule set is persisted through the artifact store and reloaded at
// startup.
package fbt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
	"github.com/tomtom215/shelfwise/internal/recommend/storage"
)

// SnapshotKey is the artifact store key of the persisted rule set.
const SnapshotKey = "fbt/rules.gob.gz"

// BasketSource reads purchase baskets: the item ids of each non-cancelled order.
type BasketSource interface {
	Baskets(ctx context.Context) ([][]int, error)
}

// Stats summarizes the rule set being served.
type Stats struct {
	Trained          bool      `json:"trained"`
	Transactions     int       `json:"transactions"`
	FrequentItemsets int       `json:"frequent_itemsets"`
	Rules            int       `json:"rules"`
	MinedAt          time.Time `json:"mined_at,omitempty"`
}

// Service mines and serves association rules.
type Service struct {
	source BasketSource
	blobs  *storage.Store
	cfg    algorithms.FBTConfig
	logger zerolog.Logger

	rules   atomic.Pointer[algorithms.RuleSet]
	trainMu sync.Mutex
}

// NewService creates a Service. blobs may be nil to disable persistence.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewService(source BasketSource, blobs *storage.Store, cfg algorithms.FBTConfig, logger zerolog.Logger) *Service {
	return &Service{
		source: source,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger.With().Str("component", "fbt").Logger(),
	}
}

// Train mines a fresh rule set and swaps it in. On failure the previous
// rules stay in service.
func (s *Service) Train(ctx context.Context) (*Stats, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	start := time.Now()
	raw, err := s.source.Baskets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read baskets: %w", recommend.ErrInsufficientData, err)
	}
	baskets := algorithms.NormalizeBaskets(raw)

	rs, err := algorithms.MineFBT(ctx, baskets, s.cfg)
	if err != nil {
		return nil, err
	}
	s.publish(rs)

	if s.blobs != nil {
		if _, err := s.blobs.Save(ctx, SnapshotKey, rs); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist association rules")
		}
	}

	s.logger.Info().
		Int("baskets", rs.Transactions).
		Int("itemsets", rs.FrequentItemsets).
		Int("rules", rs.RuleCount).
		Dur("elapsed", time.Since(start)).
		Msg("association rules mined")
	stats := statsOf(rs)
	return &stats, nil
}

// Load restores the persisted rule set. It reports false when none exists.
func (s *Service) Load(ctx context.Context) (bool, error) {
	if s.blobs == nil {
		return false, nil
	}
	var rs algorithms.RuleSet
	if _, err := s.blobs.Load(ctx, SnapshotKey, &rs); err != nil {
		if errors.Is(err, recommend.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load association rules: %w", err)
	}
	if rs.Rules == nil {
		rs.Rules = make(map[int][]recommend.AssociationRule)
	}
	s.publish(&rs)
	s.logger.Info().Int("rules", rs.RuleCount).Time("mined_at", rs.MinedAt).Msg("association rules restored")
	return true, nil
}

func (s *Service) publish(rs *algorithms.RuleSet) {
	s.rules.Store(rs)
	metrics.FBTRules.Set(float64(rs.RuleCount))
}

// Recommend returns up to limit rules whose antecedent is itemID, best
// first. An untrained service or unknown item yields an empty list.
func (s *Service) Recommend(itemID, limit int) []recommend.AssociationRule {
	rs := s.rules.Load()
	if rs == nil {
		metrics.RecordFBTLookup("not_trained")
		return []recommend.AssociationRule{}
	}
	rules := rs.Lookup(itemID, limit)
	if len(rules) == 0 {
		metrics.RecordFBTLookup("miss")
		return []recommend.AssociationRule{}
	}
	metrics.RecordFBTLookup("hit")
	out := make([]recommend.AssociationRule, len(rules))
	copy(out, rules)
	return out
}

// Stats describes the rule set currently served.
func (s *Service) Stats() Stats {
	rs := s.rules.Load()
	if rs == nil {
		return Stats{}
	}
	return statsOf(rs)
}

func statsOf(rs *algorithms.RuleSet) Stats {
	return Stats{
		Trained:          true,
		Transactions:     rs.Transactions,
		FrequentItemsets: rs.FrequentItemsets,
		Rules:            rs.RuleCount,
		MinedAt:          rs.MinedAt,
	}
}
