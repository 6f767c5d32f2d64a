// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package training

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
)

// ErrUnknownModelType is returned by Submit for a model type outside the closed set.
var ErrUnknownModelType = errors.New("unknown model type")

const (
	progressBuffer = 16
	publishTimeout = 2 * time.Minute

	msgInterruptedByRestart  = "interrupted by restart"
	msgInterruptedByShutdown = "interrupted by shutdown"
)

// ConfigProvider resolves the active config of a model type.
type ConfigProvider interface {
	ActiveConfig(ctx context.Context, modelType recommend.ModelType) (*recommend.ModelConfig, error)
}

// DataLoader builds the dataset a model type trains on.
type DataLoader interface {
	Load(ctx context.Context, modelType recommend.ModelType) (*recommend.Dataset, error)
}

// Publisher stores and activates trained artifacts. versions.Store satisfies it.
type Publisher interface {
	Publish(ctx context.Context, cfg *recommend.ModelConfig, runID string, art recommend.Artifact, perf map[string]float64) (*recommend.ModelVersion, error)
	Activate(ctx context.Context, versionID string) (*recommend.ModelVersion, error)
	Cleanup(ctx context.Context, configID string) (int, error)
}

// TrainerLookup returns the trainer for a model type.
type TrainerLookup func(recommend.ModelType) (algorithms.Trainer, error)

// PublishHook runs after a new version is active. Hook errors are logged
// and do not fail the run.
type PublishHook func(ctx context.Context, run *recommend.TrainingRun, art recommend.Artifact) error

// Config bounds the orchestrator.
type Config struct {
	// MaxConcurrentJobs is the ceiling on queued plus running jobs and the
	// worker pool size.
	MaxConcurrentJobs int

	// JobTimeout bounds a single run. Zero disables the timeout.
	JobTimeout time.Duration

	// ExpectedDurations drive time-based progress interpolation.
	ExpectedDurations map[recommend.ModelType]time.Duration

	// LogLines is the per-run log buffer size.
	LogLines int

	// RetainFinished is how many finished runs keep their logs in memory.
	RetainFinished int
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 2,
		JobTimeout:        time.Hour,
		ExpectedDurations: map[recommend.ModelType]time.Duration{
			recommend.ModelCollaborative: 10 * time.Minute,
			recommend.ModelContent:       5 * time.Minute,
			recommend.ModelClustering:    5 * time.Minute,
			recommend.ModelReorder:       15 * time.Minute,
		},
		LogLines:       200,
		RetainFinished: 100,
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Runs      RunRepository
	Configs   ConfigProvider
	Loader    DataLoader
	Publisher Publisher
	Trainers  TrainerLookup
	Hooks     []PublishHook
}

// Status is a run plus its computed progress. Committing is set while a
// running run publishes its version; it can no longer be cancelled.
type Status struct {
	*recommend.TrainingRun
	ProgressPercentage float64 `json:"progress_percentage"`
	Committing         bool    `json:"committing,omitempty"`
}

type job struct {
	run    *recommend.TrainingRun
	config *recommend.ModelConfig
	logs   *logBuffer

	cancel          context.CancelFunc
	cancelRequested bool
	committed       bool
	holdsSlot       bool
}

// Orchestrator schedules and executes training runs.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	jobs     map[string]*job   // in-flight and recently finished
	byConfig map[string]string // config id -> queued or running run id
	slots    int               // queued + running
	pending  []*job
	finished []string
	wake     chan struct{}
}

// New creates an Orchestrator. Nothing runs until Serve is called.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(deps Deps, cfg Config, logger zerolog.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = def.LogLines
	}
	if cfg.RetainFinished <= 0 {
		cfg.RetainFinished = def.RetainFinished
	}
	if cfg.ExpectedDurations == nil {
		cfg.ExpectedDurations = def.ExpectedDurations
	}
	if deps.Trainers == nil {
		deps.Trainers = algorithms.TrainerFor
	}

	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With().Str("component", "training").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
		jobs:     make(map[string]*job),
		byConfig: make(map[string]string),
		wake:     make(chan struct{}, 1),
	}
}

// String implements fmt.Stringer for the supervisor.
func (o *Orchestrator) String() string {
	return "training-orchestrator"
}

// Submit queues a training run for the active config of modelType.
// hp overrides the config's hyperparameters, which override the trainer defaults.
func (o *Orchestrator) Submit(ctx context.Context, modelType recommend.ModelType, hp recommend.Hyperparameters) (*recommend.TrainingRun, error) {
	if !modelType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelType, modelType)
	}

	mc, err := o.deps.Configs.ActiveConfig(ctx, modelType)
	if err != nil {
		metrics.RecordTrainingSubmission(modelType.String(), "error")
		return nil, fmt.Errorf("active config for %s: %w", modelType, err)
	}

	o.mu.Lock()
	if existing, busy := o.byConfig[mc.ID]; busy {
		o.mu.Unlock()
		metrics.RecordTrainingSubmission(modelType.String(), "duplicate")
		return nil, &recommend.DuplicateJobError{ModelConfigID: mc.ID, ExistingRunID: existing}
	}
	if o.slots >= o.cfg.MaxConcurrentJobs {
		inUse := o.slots
		o.mu.Unlock()
		metrics.RecordTrainingSubmission(modelType.String(), "concurrency_limit")
		return nil, fmt.Errorf("%w: %d of %d slots in use", recommend.ErrConcurrencyLimit, inUse, o.cfg.MaxConcurrentJobs)
	}

	run := &recommend.TrainingRun{
		ID:                 o.newID(),
		ModelConfigID:      mc.ID,
		ModelType:          modelType,
		Status:             recommend.RunQueued,
		Stage:              recommend.StageQueued,
		ParametersSnapshot: algorithms.DefaultHyperparameters(modelType).Merge(mc.Hyperparameters).Merge(hp),
		SubmittedAt:        o.now(),
	}
	j := &job{run: run, config: mc, logs: newLogBuffer(o.cfg.LogLines), holdsSlot: true}
	o.byConfig[mc.ID] = run.ID
	o.slots++
	metrics.TrainingJobsActive.Set(float64(o.slots))
	o.mu.Unlock()

	if err := o.deps.Runs.CreateRun(ctx, run.Clone()); err != nil {
		o.mu.Lock()
		o.releaseLocked(j)
		o.mu.Unlock()
		metrics.RecordTrainingSubmission(modelType.String(), "error")
		return nil, fmt.Errorf("persist training run: %w", err)
	}

	o.mu.Lock()
	o.jobs[run.ID] = j
	o.pending = append(o.pending, j)
	snapshot := run.Clone()
	o.mu.Unlock()
	o.signal()

	o.logf(j, zerolog.InfoLevel, "queued %s training for config %s", modelType, mc.ID)
	metrics.RecordTrainingSubmission(modelType.String(), "accepted")
	return snapshot, nil
}

// Status returns a run with its progress percentage.
func (o *Orchestrator) Status(ctx context.Context, id string) (*Status, error) {
	o.mu.Lock()
	if j, ok := o.jobs[id]; ok {
		run := j.run.Clone()
		committing := j.committed && !run.Status.IsTerminal()
		o.mu.Unlock()
		return &Status{TrainingRun: run, ProgressPercentage: o.progress(run), Committing: committing}, nil
	}
	o.mu.Unlock()

	run, err := o.deps.Runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Status{TrainingRun: run, ProgressPercentage: o.progress(run)}, nil
}

// progress is the reported percentage of a run. Only completed runs reach 100.
func (o *Orchestrator) progress(run *recommend.TrainingRun) float64 {
	switch run.Status {
	case recommend.RunCompleted:
		return 100
	case recommend.RunQueued:
		return 0
	case recommend.RunRunning:
		p := run.ReportedProgress
		if expected := o.cfg.ExpectedDurations[run.ModelType]; expected > 0 && run.StartedAt != nil {
			elapsed := o.now().Sub(*run.StartedAt)
			p = max(p, float64(elapsed)/float64(expected)*100)
		}
		return min(p, 95)
	default:
		return min(run.ReportedProgress, 95)
	}
}

// Cancel stops a run. Queued runs are cancelled immediately; running runs
// have their context cancelled and end cancelled when the trainer returns.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	j, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		run, err := o.deps.Runs.GetRun(ctx, id)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return fmt.Errorf("run %s is %s: %w", id, run.Status, recommend.ErrAlreadyTerminal)
		}
		return fmt.Errorf("run %s is not owned by this process: %w", id, recommend.ErrNotFound)
	}

	switch {
	case j.run.Status.IsTerminal():
		status := j.run.Status
		o.mu.Unlock()
		return fmt.Errorf("run %s is %s: %w", id, status, recommend.ErrAlreadyTerminal)
	case j.committed:
		o.mu.Unlock()
		return fmt.Errorf("run %s is publishing its version: %w", id, recommend.ErrAlreadyTerminal)
	case j.run.Status == recommend.RunQueued:
		o.removePendingLocked(j)
		snapshot := o.finishLocked(j, recommend.RunCancelled, "cancelled while queued")
		o.mu.Unlock()
		o.logf(j, zerolog.InfoLevel, "cancelled while queued")
		o.persistFinal(snapshot)
		return nil
	default:
		j.cancelRequested = true
		cancel := j.cancel
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		o.logf(j, zerolog.InfoLevel, "cancellation requested")
		return nil
	}
}

// Logs returns the buffered log lines of a run, oldest first. Runs that
// finished long ago or in another process have no buffered lines.
func (o *Orchestrator) Logs(ctx context.Context, id string) ([]LogEntry, error) {
	o.mu.Lock()
	j, ok := o.jobs[id]
	o.mu.Unlock()
	if ok {
		return j.logs.lines(), nil
	}
	if _, err := o.deps.Runs.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return []LogEntry{}, nil
}

// InFlight returns the queued and running runs, oldest first.
func (o *Orchestrator) InFlight() []*recommend.TrainingRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*recommend.TrainingRun, 0, o.slots)
	for _, j := range o.jobs {
		if j.run.Status.IsActive() {
			out = append(out, j.run.Clone())
		}
	}
	sortRuns(out)
	return out
}

// Serve recovers stale runs and executes queued jobs until ctx is done.
// It implements suture.Service.
func (o *Orchestrator) Serve(ctx context.Context) error {
	if err := o.recoverStale(ctx); err != nil {
		return fmt.Errorf("recover stale runs: %w", err)
	}

	o.logger.Info().Int("workers", o.cfg.MaxConcurrentJobs).Msg("training orchestrator started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.cfg.MaxConcurrentJobs; i++ {
		g.Go(func() error {
			o.worker(gctx)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	o.logger.Info().Msg("training orchestrator stopped")
	return ctx.Err()
}

// recoverStale fails runs that a previous process left queued or running.
func (o *Orchestrator) recoverStale(ctx context.Context) error {
	stale, err := o.deps.Runs.ListRunsByStatus(ctx, recommend.RunQueued, recommend.RunRunning)
	if err != nil {
		return err
	}

	recovered := 0
	for _, run := range stale {
		o.mu.Lock()
		_, owned := o.jobs[run.ID]
		o.mu.Unlock()
		if owned {
			continue
		}

		now := o.now()
		run.Status = recommend.RunFailed
		run.Error = msgInterruptedByRestart
		run.CompletedAt = &now
		if run.StartedAt != nil {
			run.Duration = now.Sub(*run.StartedAt)
		}
		if err := o.deps.Runs.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("mark run %s failed: %w", run.ID, err)
		}
		metrics.RecordTrainingFinished(run.ModelType.String(), string(recommend.RunFailed), 0)
		recovered++
	}
	if recovered > 0 {
		o.logger.Warn().Int("runs", recovered).Msg("marked runs from previous process as failed")
	}
	return nil
}

func (o *Orchestrator) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		j := o.dequeue()
		if j == nil {
			select {
			case <-ctx.Done():
				return
			case <-o.wake:
				continue
			}
		}
		o.execute(ctx, j)
	}
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) dequeue() *job {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return nil
	}
	j := o.pending[0]
	o.pending[0] = nil
	o.pending = o.pending[1:]
	if len(o.pending) > 0 {
		o.signal()
	}
	return j
}

func (o *Orchestrator) removePendingLocked(target *job) {
	for i, j := range o.pending {
		if j == target {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return
		}
	}
}

// execute drives one job from queued to a terminal state.
func (o *Orchestrator) execute(ctx context.Context, j *job) {
	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if o.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, o.cfg.JobTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	o.mu.Lock()
	if j.run.Status != recommend.RunQueued {
		o.mu.Unlock()
		return
	}
	started := o.now()
	j.run.Status = recommend.RunRunning
	j.run.StartedAt = &started
	j.cancel = cancel
	snapshot := j.run.Clone()
	o.mu.Unlock()

	o.persist(snapshot)
	o.logf(j, zerolog.InfoLevel, "started")

	progress := make(chan recommend.Progress, progressBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range progress {
			o.mu.Lock()
			j.run.Stage = p.Stage
			j.run.ReportedProgress = max(j.run.ReportedProgress, min(p.Percent, 95))
			o.mu.Unlock()
			o.logf(j, zerolog.DebugLevel, "%s %.0f%% %s", p.Stage, p.Percent, p.Message)
		}
	}()

	res, err := o.train(jobCtx, j, progress)
	close(progress)
	<-drained

	o.mu.Lock()
	switch {
	case j.cancelRequested:
		snapshot = o.finishLocked(j, recommend.RunCancelled, "cancelled while running")
		o.mu.Unlock()
		if err == nil {
			o.logf(j, zerolog.InfoLevel, "discarded result that arrived after cancellation")
		}
		o.persistFinal(snapshot)
		return
	case err != nil:
		msg := failureMessage(ctx, jobCtx, err)
		snapshot = o.finishLocked(j, recommend.RunFailed, msg)
		o.mu.Unlock()
		o.logf(j, zerolog.WarnLevel, "failed: %s", msg)
		o.persistFinal(snapshot)
		return
	}
	j.committed = true
	j.run.Stage = recommend.StageFinalizing
	o.mu.Unlock()

	// Publishing is not interrupted by shutdown once started.
	pubCtx, pubCancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer pubCancel()

	version, err := o.publish(pubCtx, j, res)
	o.mu.Lock()
	if err != nil {
		snapshot = o.finishLocked(j, recommend.RunFailed, err.Error())
		o.mu.Unlock()
		o.logf(j, zerolog.ErrorLevel, "publish failed: %v", err)
		o.persistFinal(snapshot)
		return
	}
	j.run.Metrics = res.Metrics
	j.run.VersionID = version.ID
	j.run.ReportedProgress = 100
	snapshot = o.finishLocked(j, recommend.RunCompleted, "")
	o.mu.Unlock()
	o.logf(j, zerolog.InfoLevel, "completed as version %d (%s)", version.VersionNumber, version.ID)
	o.persistFinal(snapshot)

	o.afterPublish(pubCtx, j, snapshot, res.Artifact)
}

// train loads the dataset and runs the trainer. A trainer panic fails the
// run with ErrTrainerFailure instead of taking down the worker.
func (o *Orchestrator) train(ctx context.Context, j *job, progress chan<- recommend.Progress) (res *algorithms.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("run_id", j.run.ID).
				Str("model_type", string(j.run.ModelType)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("trainer panicked")
			res, err = nil, fmt.Errorf("%w: panic: %v", recommend.ErrTrainerFailure, r)
		}
	}()

	trainer, err := o.deps.Trainers(j.run.ModelType)
	if err != nil {
		return nil, err
	}
	ds, err := o.deps.Loader.Load(ctx, j.run.ModelType)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	o.logf(j, zerolog.InfoLevel, "loaded %d interactions, %d products, %d rfm rows",
		len(ds.Interactions), len(ds.Products), len(ds.RFM))

	res, err = trainer.Train(ctx, ds, j.run.ParametersSnapshot, progress)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Artifact == nil {
		return nil, fmt.Errorf("%w: trainer returned no artifact", recommend.ErrTrainerFailure)
	}
	return res, nil
}

// failureMessage describes why a run failed.
func failureMessage(parent, jobCtx context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return msgInterruptedByShutdown
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, recommend.ErrInsufficientData), errors.Is(err, recommend.ErrTrainerFailure):
		return err.Error()
	default:
		return fmt.Errorf("%w: %w", recommend.ErrTrainerFailure, err).Error()
	}
}

// publish stores, activates and prunes the new version.
func (o *Orchestrator) publish(ctx context.Context, j *job, res *algorithms.Result) (*recommend.ModelVersion, error) {
	v, err := o.deps.Publisher.Publish(ctx, j.config, j.run.ID, res.Artifact, res.Metrics)
	if err != nil {
		return nil, fmt.Errorf("publish version: %w", err)
	}
	if _, err := o.deps.Publisher.Activate(ctx, v.ID); err != nil {
		return nil, fmt.Errorf("activate version %s: %w", v.ID, err)
	}
	if removed, err := o.deps.Publisher.Cleanup(ctx, j.config.ID); err != nil {
		o.logf(j, zerolog.WarnLevel, "retention cleanup failed: %v", err)
	} else if removed > 0 {
		o.logf(j, zerolog.InfoLevel, "retention cleanup removed %d versions", removed)
	}
	return v, nil
}

func (o *Orchestrator) afterPublish(ctx context.Context, j *job, run *recommend.TrainingRun, art recommend.Artifact) {
	for _, hook := range o.deps.Hooks {
		if err := hook(ctx, run, art); err != nil {
			o.logf(j, zerolog.WarnLevel, "post-publish hook failed: %v", err)
		}
	}
}

// finishLocked moves a job to a terminal state and frees its slot.
// Caller holds o.mu and persists the returned snapshot.
func (o *Orchestrator) finishLocked(j *job, status recommend.RunStatus, errMsg string) *recommend.TrainingRun {
	now := o.now()
	j.run.Status = status
	j.run.Error = errMsg
	j.run.CompletedAt = &now
	if j.run.StartedAt != nil {
		j.run.Duration = now.Sub(*j.run.StartedAt)
	}
	o.releaseLocked(j)

	o.jobs[j.run.ID] = j
	o.finished = append(o.finished, j.run.ID)
	for len(o.finished) > o.cfg.RetainFinished {
		delete(o.jobs, o.finished[0])
		o.finished = o.finished[1:]
	}
	return j.run.Clone()
}

func (o *Orchestrator) releaseLocked(j *job) {
	if !j.holdsSlot {
		return
	}
	j.holdsSlot = false
	if o.byConfig[j.run.ModelConfigID] == j.run.ID {
		delete(o.byConfig, j.run.ModelConfigID)
	}
	o.slots--
	metrics.TrainingJobsActive.Set(float64(o.slots))
}

func (o *Orchestrator) persist(run *recommend.TrainingRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.deps.Runs.UpdateRun(ctx, run); err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to persist training run")
	}
}

func (o *Orchestrator) persistFinal(run *recommend.TrainingRun) {
	o.persist(run)
	metrics.RecordTrainingFinished(run.ModelType.String(), string(run.Status), run.Duration)
}

// logf writes to the run's buffer and the component logger.
func (o *Orchestrator) logf(j *job, level zerolog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	j.logs.add(LogEntry{At: o.now(), Level: level.String(), Message: msg})
	o.logger.WithLevel(level).
		Str("run_id", j.run.ID).
		Str("model_type", j.run.ModelType.String()).
		Msg(msg)
}

func sortRuns(runs []*recommend.TrainingRun) {
	sort.SliceStable(runs, func(i, k int) bool {
		return runs[i].SubmittedAt.Before(runs[k].SubmittedAt)
	})
}
