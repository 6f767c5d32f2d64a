// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ModelType identifies a trainable model family.
// The set is closed; every switch over it must handle all four values.
type ModelType string

const (
	// ModelCollaborative is matrix factorization over user-item purchases.
	ModelCollaborative ModelType = "collaborative"
	// ModelContent is TF-IDF item similarity over product text.
	ModelContent ModelType = "content"
	// ModelClustering is k-means segmentation over RFM features.
	ModelClustering ModelType = "clustering"
	// ModelReorder is gradient-boosted reorder prediction.
	ModelReorder ModelType = "reorder"
)

// AllModelTypes returns every model type in a stable order.
func AllModelTypes() []ModelType {
	return []ModelType{ModelCollaborative, ModelContent, ModelClustering, ModelReorder}
}

// Valid reports whether t is one of the known model types.
func (t ModelType) Valid() bool {
	switch t {
	case ModelCollaborative, ModelContent, ModelClustering, ModelReorder:
		return true
	default:
		return false
	}
}

// String returns the model type name.
func (t ModelType) String() string {
	return string(t)
}

// ParseModelType converts a string into a ModelType.
func ParseModelType(s string) (ModelType, error) {
	t := ModelType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown model type %q", s)
	}
	return t, nil
}

// Schedule controls how a model config is retrained.
type Schedule string

const (
	// ScheduleManual configs only train on explicit submission.
	ScheduleManual Schedule = "manual"
	// SchedulePeriodic configs are submitted by the scheduler on ScheduleSpec.
	SchedulePeriodic Schedule = "periodic"
)

// Hyperparameters is an opaque key-value map handed to trainers.
// Values arrive from JSON or the database, so numeric lookups accept
// any numeric representation.
type Hyperparameters map[string]any

// Float returns the value for key as a float64, or def if absent or not numeric.
func (h Hyperparameters) Float(key string, def float64) float64 {
	v, ok := h[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

// Int returns the value for key as an int, or def if absent or not numeric.
func (h Hyperparameters) Int(key string, def int) int {
	f := h.Float(key, math.NaN())
	if math.IsNaN(f) {
		return def
	}
	return int(f)
}

// Clone returns a shallow copy suitable for a parameters snapshot.
func (h Hyperparameters) Clone() Hyperparameters {
	out := make(Hyperparameters, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Merge returns a copy of h with override applied on top.
func (h Hyperparameters) Merge(override Hyperparameters) Hyperparameters {
	out := h.Clone()
	for k, v := range override {
		out[k] = v
	}
	return out
}

// ModelConfig describes how one model family is trained.
// At most one config per ModelType is active.
type ModelConfig struct {
	ID                   string          `json:"id"`
	ModelType            ModelType       `json:"model_type"`
	Hyperparameters      Hyperparameters `json:"hyperparameters"`
	IsActive             bool            `json:"is_active"`
	TrainingSchedule     Schedule        `json:"training_schedule"`
	ScheduleSpec         string          `json:"schedule_spec,omitempty"`
	PerformanceThreshold float64         `json:"performance_threshold"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// RunStatus is the lifecycle state of a training run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// IsActive reports whether the run counts against the concurrency ceiling.
func (s RunStatus) IsActive() bool {
	return s == RunQueued || s == RunRunning
}

// TrainingRun is the record of one training job.
// Only the orchestrator mutates it, and never after it is terminal.
type TrainingRun struct {
	ID                 string             `json:"id"`
	ModelConfigID      string             `json:"model_config_id"`
	ModelType          ModelType          `json:"model_type"`
	Status             RunStatus          `json:"status"`
	ParametersSnapshot Hyperparameters    `json:"parameters_snapshot"`
	Metrics            map[string]float64 `json:"metrics,omitempty"`
	Error              string             `json:"error,omitempty"`
	Stage              Stage              `json:"stage,omitempty"`
	ReportedProgress   float64            `json:"reported_progress"`
	VersionID          string             `json:"version_id,omitempty"`
	SubmittedAt        time.Time          `json:"submitted_at"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	Duration           time.Duration      `json:"duration"`
}

// Clone returns a deep copy so callers never share mutable state with the orchestrator.
func (r *TrainingRun) Clone() *TrainingRun {
	out := *r
	out.ParametersSnapshot = r.ParametersSnapshot.Clone()
	if r.Metrics != nil {
		out.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// ModelVersion is one persisted artifact of a model config.
type ModelVersion struct {
	ID                 string             `json:"id"`
	ModelConfigID      string             `json:"model_config_id"`
	ModelType          ModelType          `json:"model_type"`
	TrainingRunID      string             `json:"training_run_id"`
	VersionNumber      int                `json:"version_number"`
	ArtifactLocation   string             `json:"artifact_location"`
	ArtifactSize       int64              `json:"artifact_size"`
	Checksum           string             `json:"checksum"`
	IsActive           bool               `json:"is_active"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// InteractionRecord is one purchased line item.
type InteractionRecord struct {
	UserID    int       `json:"user_id"`
	ItemID    int       `json:"item_id"`
	OrderID   int       `json:"order_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Timestamp time.Time `json:"timestamp"`
}

// Product is the catalog metadata used for content similarity.
type Product struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Specification string  `json:"specification"`
	Brand         string  `json:"brand"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
}

// User is the account metadata the training set needs.
type User struct {
	ID        int       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// RFMFeatures are per-user recency, frequency and monetary aggregates.
type RFMFeatures struct {
	UserID               int     `json:"user_id"`
	RecencyDays          float64 `json:"recency_days"`
	FrequencyCount       int     `json:"frequency_count"`
	MonetaryTotal        float64 `json:"monetary_total"`
	AvgOrderValue        float64 `json:"avg_order_value"`
	UniqueItems          int     `json:"unique_items"`
	AvgDaysBetweenOrders float64 `json:"avg_days_between_orders"`
	StdDaysBetweenOrders float64 `json:"std_days_between_orders"`

	// Cluster is the segment assigned by clustering, or -1 before assignment.
	Cluster int `json:"cluster"`
}

// Vector returns the numeric features in a fixed order.
func (f *RFMFeatures) Vector() []float64 {
	return []float64{
		f.RecencyDays,
		float64(f.FrequencyCount),
		f.MonetaryTotal,
		f.AvgOrderValue,
		float64(f.UniqueItems),
		f.AvgDaysBetweenOrders,
		f.StdDaysBetweenOrders,
	}
}

// Dataset is everything a trainer may read.
type Dataset struct {
	Interactions []InteractionRecord
	Products     []Product
	Users        []User
	RFM          []RFMFeatures

	// ReferenceTime is the latest interaction timestamp. Recency and
	// days-since features are measured against it, not the wall clock.
	ReferenceTime time.Time
}

// AssociationRule is a single-antecedent, single-consequent FBT rule.
type AssociationRule struct {
	Antecedent int     `json:"antecedent"`
	Consequent int     `json:"consequent"`
	Support    float64 `json:"support"`
	Confidence float64 `json:"confidence"`
	Lift       float64 `json:"lift"`
}

// SourceScores holds the per-source contributions to a candidate.
type SourceScores struct {
	Collaborative float64 `json:"collaborative"`
	Content       float64 `json:"content"`
	Trending      float64 `json:"trending"`
}

// Candidate is one ranked recommendation.
type Candidate struct {
	ItemID       int          `json:"item_id"`
	Scores       SourceScores `json:"scores"`
	BlendedScore float64      `json:"blended_score"`
}

// ScoredItem is a raw score from an artifact or data source.
type ScoredItem struct {
	ItemID int     `json:"item_id"`
	Score  float64 `json:"score"`
}

// Reranker reorders a blended list, returning at most k candidates.
type Reranker interface {
	Rerank(ctx context.Context, items []Candidate, k int) []Candidate
}

// Artifact is the uniform query surface of every trained model.
type Artifact interface {
	// ModelType identifies the family that produced the artifact.
	ModelType() ModelType

	// Covers reports whether the artifact has any signal for entityID.
	Covers(entityID int) bool

	// Score returns scores for candidates, best first. A nil candidate
	// list scores everything the artifact knows except what the entity
	// already has. An entity with no coverage yields nil, not an error.
	Score(entityID int, candidates []int) []ScoredItem
}

// Stage is a fixed training checkpoint.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageDataPrepared Stage = "data_prepared"
	StageFitting      Stage = "fitting"
	StageEvaluating   Stage = "evaluating"
	StageFinalizing   Stage = "finalizing"
)

// Progress is one event on a trainer's progress channel.
type Progress struct {
	Stage   Stage     `json:"stage"`
	Percent float64   `json:"percent"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// UserProfile is what the engine needs to pick adaptive weights.
type UserProfile struct {
	UserID        int       `json:"user_id"`
	Known         bool      `json:"known"`
	CreatedAt     time.Time `json:"created_at"`
	PurchaseCount int       `json:"purchase_count"`
}

// Request is a recommendation request.
type Request struct {
	UserID int `json:"user_id"`

	// N is the number of recommendations to return.
	N int `json:"n"`

	// Weights overrides the configured blend when non-nil.
	Weights *Weights `json:"weights,omitempty"`

	// Adaptive selects weights from the user's purchase history.
	// Ignored when Weights is set.
	Adaptive bool `json:"adaptive"`

	// IncludePurchased keeps items the user already bought.
	IncludePurchased bool `json:"include_purchased"`

	// Category restricts every source to one product category.
	Category string `json:"category,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// Response is a ranked recommendation list with serving metadata.
type Response struct {
	Items    []Candidate      `json:"items"`
	Metadata ResponseMetadata `json:"metadata"`
}

// Clone returns a deep copy that shares no slices or maps with r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := &Response{Metadata: r.Metadata}
	if r.Items != nil {
		c.Items = make([]Candidate, len(r.Items))
		copy(c.Items, r.Items)
	}
	if r.Metadata.SourcesUsed != nil {
		c.Metadata.SourcesUsed = append([]string(nil), r.Metadata.SourcesUsed...)
	}
	if r.Metadata.ModelVersions != nil {
		c.Metadata.ModelVersions = make(map[ModelType]int, len(r.Metadata.ModelVersions))
		for mt, v := range r.Metadata.ModelVersions {
			c.Metadata.ModelVersions[mt] = v
		}
	}
	return c
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	RequestID     string            `json:"request_id"`
	UserID        int               `json:"user_id"`
	Weights       Weights           `json:"weights"`
	Tier          string            `json:"tier,omitempty"`
	SourcesUsed   []string          `json:"sources_used"`
	Fallback      bool              `json:"fallback"`
	CacheHit      bool              `json:"cache_hit"`
	LatencyMS     int64             `json:"latency_ms"`
	ModelVersions map[ModelType]int `json:"model_versions,omitempty"`
	GeneratedAt   time.Time         `json:"generated_at"`
}
