// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline executes checkpoint verification pipelines.
//
// # Description
//
// A pipeline is a DAG of checkpoints. Each checkpoint runs its
// validators, evaluates its conditions over the context and the
// validator outputs, and yields a scored result.
// Required checkpoints abort the execution on failure; optional ones
// record the failure and let independent branches continue, skipping
// only their own dependents. Execution is cooperative: Pause, Resume,
// and Cancel take effect at checkpoint boundaries, with in-flight
// validators additionally seeing context cancellation.
//
// # Thread Safety
//
// An Executor runs one execution at a time. Pause, Resume, Cancel,
// and Status may be called concurrently with Execute from any
// goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sentinel/services/verifier/events"
	"github.com/AleutianAI/sentinel/services/verifier/scoring"
)

// RollbackHandler is invoked when a checkpoint with RollbackOnFail
// fails, before execution continues or aborts.
type RollbackHandler interface {
	Rollback(ctx context.Context, executionID, checkpointID string) error
}

// SnapshotHook captures a system snapshot before checkpoints that
// request one.
type SnapshotHook interface {
	CreateSnapshot(ctx context.Context, executionID, checkpointID string) error
}

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	// Logger is the structured logger; nil falls back to
	// slog.Default().
	Logger *slog.Logger

	// Emitter receives lifecycle events; nil disables emission.
	Emitter *events.Emitter

	// Rollback handles RollbackOnFail checkpoints; nil makes them
	// log-only.
	Rollback RollbackHandler

	// Snapshots handles CreateSnapshot checkpoints; nil makes them
	// log-only.
	Snapshots SnapshotHook

	// Scorer computes the result's truth score over the execution's
	// claims; nil leaves the field zero.
	Scorer TruthScorer

	// DefaultMaxWorkers bounds parallel dispatch when the config
	// leaves MaxWorkers unset.
	DefaultMaxWorkers int
}

// DefaultExecutorOptions returns the production defaults.
func DefaultExecutorOptions() *ExecutorOptions {
	return &ExecutorOptions{
		Logger:            slog.Default(),
		DefaultMaxWorkers: 4,
	}
}

// Executor runs checkpoint pipelines.
type Executor struct {
	logger            *slog.Logger
	emitter           *events.Emitter
	rollback          RollbackHandler
	snapshots         SnapshotHook
	scorer            TruthScorer
	defaultMaxWorkers int

	mu          sync.Mutex
	cond        *sync.Cond
	running     bool
	paused      bool
	cancelled   bool
	status      ExecutionStatus
	executionID string
	cancelRun   context.CancelFunc
}

// NewExecutor builds an Executor from options; nil opts use defaults.
func NewExecutor(opts *ExecutorOptions) *Executor {
	if opts == nil {
		opts = DefaultExecutorOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.DefaultMaxWorkers
	if workers <= 0 {
		workers = 4
	}
	e := &Executor{
		logger:            logger,
		emitter:           opts.Emitter,
		rollback:          opts.Rollback,
		snapshots:         opts.Snapshots,
		scorer:            opts.Scorer,
		defaultMaxWorkers: workers,
		status:            ExecutionPending,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// ValidateConfig checks structure, dependency references, and
// acyclicity.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Policy != "" && cfg.Policy != PolicyParallel && cfg.Policy != PolicySequential {
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, cfg.Policy)
	}

	byID := make(map[string]*Checkpoint, len(cfg.Checkpoints))
	mandatory := 0
	for _, cp := range cfg.Checkpoints {
		if _, dup := byID[cp.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateCheckpoint, cp.ID)
		}
		byID[cp.ID] = cp
		if cp.Required {
			mandatory++
		}
	}
	if mandatory == 0 {
		return fmt.Errorf("%w: at least one checkpoint must be required", ErrInvalidConfig)
	}
	for _, cp := range cfg.Checkpoints {
		for _, dep := range cp.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("%w: %q depends on %q", ErrUnknownDependency, cp.ID, dep)
			}
		}
	}

	// Kahn's algorithm; leftover nodes mean a cycle.
	indegree := make(map[string]int, len(byID))
	dependents := make(map[string][]string)
	for _, cp := range cfg.Checkpoints {
		indegree[cp.ID] = len(cp.DependsOn)
		for _, dep := range cp.DependsOn {
			dependents[dep] = append(dependents[dep], cp.ID)
		}
	}
	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(byID) {
		return ErrCycle
	}
	return nil
}

// Execute runs the pipeline to completion.
//
// Inputs:
//   - ctx: cancels the whole execution, including in-flight validators.
//   - cfg: the pipeline; validated before anything runs.
//   - execCtx: shared context map visible to conditions and validators.
//   - claims: agent claims available to claim validators.
//
// Outputs:
//   - *Result: always non-nil once execution started, including on
//     failure and cancellation.
//   - error: config validation errors, ErrExecutionInProgress, or the
//     abort cause mirrored in the result.
func (e *Executor) Execute(ctx context.Context, cfg *Config, execCtx map[string]any, claims []scoring.Claim) (*Result, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrExecutionInProgress
	}
	executionID := uuid.NewString()
	e.running = true
	e.paused = false
	e.cancelled = false
	e.status = ExecutionRunning
	e.executionID = executionID
	e.cancelRun = cancel
	e.mu.Unlock()

	// Pause waiters must wake when the context dies.
	go func() {
		<-runCtx.Done()
		e.cond.Broadcast()
	}()

	start := time.Now()
	run := &execution{
		executor:    e,
		cfg:         cfg,
		execCtx:     execCtx,
		claims:      claims,
		executionID: executionID,
		maxWorkers:  e.workersFor(cfg),
		results:     make(map[string]CheckpointResult, len(cfg.Checkpoints)),
	}

	e.logger.Info("pipeline execution started",
		"execution_id", executionID,
		"pipeline_id", cfg.ID,
		"checkpoints", len(cfg.Checkpoints),
		"policy", run.policy())

	runErr := run.run(runCtx)
	result := run.finalize(start, runErr)
	e.scoreTruth(ctx, result, claims)

	e.mu.Lock()
	e.running = false
	e.status = result.Status
	e.cancelRun = nil
	e.mu.Unlock()

	e.emitPipelineEvent(result)
	return result, runErr
}

// Pause requests a cooperative pause at the next checkpoint boundary.
func (e *Executor) Pause() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	if e.paused {
		e.mu.Unlock()
		return nil
	}
	e.paused = true
	e.status = ExecutionPaused
	id := e.executionID
	e.mu.Unlock()

	e.emit(id, events.TypePipelinePaused, map[string]any{"execution_id": id})
	return nil
}

// Resume releases a paused execution.
func (e *Executor) Resume() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	if !e.paused {
		e.mu.Unlock()
		return ErrNotPaused
	}
	e.paused = false
	e.status = ExecutionRunning
	id := e.executionID
	e.cond.Broadcast()
	e.mu.Unlock()

	e.emit(id, events.TypePipelineResumed, map[string]any{"execution_id": id})
	return nil
}

// Cancel aborts the current execution. In-flight validators see
// context cancellation; no new checkpoints start.
func (e *Executor) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	e.cancelled = true
	e.paused = false
	if e.cancelRun != nil {
		e.cancelRun()
	}
	e.cond.Broadcast()
	return nil
}

// Status reports the current execution status.
func (e *Executor) Status() ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Executor) workersFor(cfg *Config) int {
	if cfg.MaxWorkers > 0 {
		return cfg.MaxWorkers
	}
	return e.defaultMaxWorkers
}

// waitIfPaused blocks while paused. Returns the abort cause when the
// execution was cancelled instead of resumed.
func (e *Executor) waitIfPaused(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.paused && !e.cancelled && ctx.Err() == nil {
		e.cond.Wait()
	}
	if e.cancelled {
		return ErrCancelled
	}
	return ctx.Err()
}

func (e *Executor) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// emit publishes an event. Never call while holding e.mu: delivery is
// synchronous and handlers may call back into the executor.
func (e *Executor) emit(executionID string, t events.Type, data any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(t, executionID, data)
}

func (e *Executor) emitPipelineEvent(res *Result) {
	if e.emitter == nil {
		return
	}
	t := events.TypePipelineCompleted
	switch res.Status {
	case ExecutionFailed, ExecutionError:
		t = events.TypePipelineError
	case ExecutionCancelled:
		t = events.TypePipelineCancelled
	}
	e.emitter.Emit(t, res.ExecutionID, res)
}

// scoreTruth runs the truth engine's composite over the execution's
// claims. Scoring problems degrade the field to zero, never the run.
func (e *Executor) scoreTruth(ctx context.Context, res *Result, claims []scoring.Claim) {
	if e.scorer == nil || len(claims) == 0 {
		return
	}
	score, err := e.scorer.CompositeScore(ctx, claims)
	if err != nil {
		e.logger.Warn("truth score unavailable",
			"execution_id", res.ExecutionID,
			"error", err)
		return
	}
	res.TruthScore = score
}

// execution is the per-run state. It is confined to the Execute
// goroutine except for results, which parallel rounds write under
// resultsMu.
type execution struct {
	executor    *Executor
	cfg         *Config
	execCtx     map[string]any
	claims      []scoring.Claim
	executionID string
	maxWorkers  int

	resultsMu sync.Mutex
	results   map[string]CheckpointResult

	// warnings, abortCause, and failedID are only touched from the
	// run loop goroutine.
	warnings     []string
	abortCause   error
	failedID     string
	abortedOnErr bool
}

func (x *execution) policy() Policy {
	if x.cfg.Policy == PolicySequential {
		return PolicySequential
	}
	return PolicyParallel
}

func (x *execution) run(ctx context.Context) error {
	for {
		if err := x.executor.waitIfPaused(ctx); err != nil {
			return err
		}

		ready, blocked := x.nextRound()
		if len(ready) == 0 && len(blocked) == 0 {
			return nil // all checkpoints resolved
		}

		// Dependents of non-passing checkpoints resolve to skipped
		// before anything else runs, so a round always progresses.
		for _, cp := range blocked {
			x.setResult(CheckpointResult{
				CheckpointID: cp.ID,
				Status:       StatusSkipped,
				SkipReason:   "dependency did not pass",
			})
		}
		if len(ready) == 0 {
			continue
		}

		// Sequential dispatch handles failures per checkpoint so a
		// required failure aborts before later steps run.
		if x.policy() == PolicySequential {
			if err := x.runSequential(ctx, ready); err != nil {
				return err
			}
			continue
		}
		if err := x.runParallel(ctx, ready); err != nil {
			return err
		}
		if err := x.handleFailures(ctx, ready); err != nil {
			return err
		}
	}
}

// nextRound partitions unresolved checkpoints into ready (all deps
// passed) and blocked (some dep resolved without passing).
func (x *execution) nextRound() (ready, blocked []*Checkpoint) {
	x.resultsMu.Lock()
	defer x.resultsMu.Unlock()
	for _, cp := range x.cfg.Checkpoints {
		if _, done := x.results[cp.ID]; done {
			continue
		}
		state := "ready"
		for _, dep := range cp.DependsOn {
			res, done := x.results[dep]
			if !done {
				state = "waiting"
				break
			}
			if res.Status != StatusPassed {
				state = "blocked"
				break
			}
		}
		switch state {
		case "ready":
			ready = append(ready, cp)
		case "blocked":
			blocked = append(blocked, cp)
		}
	}
	return ready, blocked
}

func (x *execution) runSequential(ctx context.Context, round []*Checkpoint) error {
	for _, cp := range round {
		if err := x.executor.waitIfPaused(ctx); err != nil {
			return err
		}
		x.setResult(x.runCheckpoint(ctx, cp))
		// Required failures abort before the rest of the round runs.
		if err := x.handleFailures(ctx, []*Checkpoint{cp}); err != nil {
			return err
		}
	}
	return nil
}

func (x *execution) runParallel(ctx context.Context, round []*Checkpoint) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.maxWorkers)
	for _, cp := range round {
		cp := cp
		g.Go(func() error {
			x.setResult(x.runCheckpoint(gctx, cp))
			return nil
		})
	}
	return g.Wait()
}

// handleFailures runs rollback hooks for failed checkpoints and
// aborts on a required failure. Recovered incidents are collected as
// result warnings.
func (x *execution) handleFailures(ctx context.Context, round []*Checkpoint) error {
	for _, cp := range round {
		res, ok := x.result(cp.ID)
		if !ok || res.Status == StatusPassed || res.Status == StatusSkipped {
			continue
		}

		if cp.RollbackOnFail {
			if x.runRollback(ctx, cp.ID) {
				x.warnings = append(x.warnings,
					fmt.Sprintf("checkpoint %s failed; rolled back to the latest snapshot", cp.ID))
			}
		}
		if cp.Required {
			reason := res.Error
			if reason == "" {
				reason = fmt.Sprintf("score %.3f below floor %.3f", res.Score, cp.MinScore)
			}
			x.failedID = cp.ID
			x.abortedOnErr = res.Status == StatusError
			x.abortCause = &MandatoryFailureError{CheckpointID: cp.ID, Reason: reason}
			return x.abortCause
		}
		x.warnings = append(x.warnings,
			fmt.Sprintf("optional checkpoint %s resolved %s, execution continued", cp.ID, res.Status))
		x.executor.logger.Warn("optional checkpoint failed, continuing",
			"execution_id", x.executionID,
			"checkpoint_id", cp.ID,
			"status", res.Status)
	}
	return nil
}

func (x *execution) runRollback(ctx context.Context, checkpointID string) bool {
	if x.executor.rollback == nil {
		x.executor.logger.Warn("rollback requested but no handler configured",
			"execution_id", x.executionID,
			"checkpoint_id", checkpointID)
		return false
	}
	// Rollback still runs when the failure cause was cancellation.
	rbCtx := ctx
	if ctx.Err() != nil {
		rbCtx = context.Background()
	}
	if err := x.executor.rollback.Rollback(rbCtx, x.executionID, checkpointID); err != nil {
		x.executor.logger.Error("rollback failed",
			"execution_id", x.executionID,
			"checkpoint_id", checkpointID,
			"error", err)
		return false
	}
	x.executor.logger.Info("rollback completed",
		"execution_id", x.executionID,
		"checkpoint_id", checkpointID)
	return true
}

func (x *execution) runCheckpoint(ctx context.Context, cp *Checkpoint) CheckpointResult {
	start := time.Now()
	res := CheckpointResult{
		CheckpointID: cp.ID,
		StartedAt:    start,
	}

	if cp.CreateSnapshot {
		if err := x.createSnapshot(ctx, cp.ID); err != nil {
			res.Status = StatusError
			res.Error = fmt.Sprintf("snapshot: %s", err)
			res.Duration = time.Since(start)
			x.emitCheckpoint(res)
			return res
		}
	}

	cpCtx := ctx
	if cp.Timeout > 0 {
		var cancel context.CancelFunc
		cpCtx, cancel = context.WithTimeout(ctx, cp.Timeout)
		defer cancel()
	}

	vresults, err := x.runValidators(cpCtx, cp)
	res.ValidatorResults = vresults
	res.Duration = time.Since(start)

	switch {
	case err != nil:
		res.Status = StatusError
		res.Error = err.Error()
	default:
		allPassed := true
		var sum float64
		for _, vr := range vresults {
			if !vr.Passed {
				allPassed = false
			}
			sum += vr.Score
		}
		res.Score = 1
		if len(vresults) > 0 {
			res.Score = sum / float64(len(vresults))
		}
		unmet, condErr := x.checkConditions(cp, vresults)
		switch {
		case condErr != nil:
			res.Status = StatusError
			res.Error = condErr.Error()
		case unmet != "":
			res.Status = StatusFailed
			res.Error = unmet
		case allPassed && res.Score >= cp.MinScore:
			res.Status = StatusPassed
		default:
			res.Status = StatusFailed
		}
	}

	x.executor.logger.Debug("checkpoint finished",
		"execution_id", x.executionID,
		"checkpoint_id", cp.ID,
		"status", res.Status,
		"score", res.Score,
		"duration", res.Duration)
	x.emitCheckpoint(res)
	return res
}

// checkConditions evaluates the checkpoint's conditions against the
// execution context overlaid with the round's validator outputs. It
// returns the first unmet condition's description, or an evaluation
// error.
func (x *execution) checkConditions(cp *Checkpoint, vresults []ValidationResult) (string, error) {
	if len(cp.Conditions) == 0 {
		return "", nil
	}
	outputs := make(map[string]any, len(vresults))
	for _, vr := range vresults {
		outputs[vr.ValidatorName] = map[string]any{
			"score":  vr.Score,
			"passed": vr.Passed,
		}
	}
	scope := make(map[string]any, len(x.execCtx)+1)
	for k, v := range x.execCtx {
		scope[k] = v
	}
	scope["validators"] = outputs

	for _, cond := range cp.Conditions {
		ok, err := cond.Evaluate(scope)
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("condition %s %s not met", cond.Field, cond.Operator), nil
		}
	}
	return "", nil
}

func (x *execution) createSnapshot(ctx context.Context, checkpointID string) error {
	if x.executor.snapshots == nil {
		x.executor.logger.Warn("snapshot requested but no hook configured",
			"execution_id", x.executionID,
			"checkpoint_id", checkpointID)
		return nil
	}
	return x.executor.snapshots.CreateSnapshot(ctx, x.executionID, checkpointID)
}

// runValidators runs a checkpoint's validators concurrently, bounded
// by the execution worker limit.
func (x *execution) runValidators(ctx context.Context, cp *Checkpoint) ([]ValidationResult, error) {
	out := make([]ValidationResult, len(cp.Validators))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.maxWorkers)
	for i, v := range cp.Validators {
		i, v := i, v
		g.Go(func() error {
			vr, err := v.Validate(gctx, ValidationInput{
				CheckpointID: cp.ID,
				ExecutionID:  x.executionID,
				Context:      x.execCtx,
				Claims:       x.claims,
			})
			if err != nil {
				return fmt.Errorf("validator %s: %w", v.Name(), err)
			}
			out[i] = vr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (x *execution) emitCheckpoint(res CheckpointResult) {
	if x.executor.emitter == nil {
		return
	}
	x.executor.emitter.Emit(events.TypeCheckpointCompleted, x.executionID, res)
}

func (x *execution) setResult(res CheckpointResult) {
	x.resultsMu.Lock()
	x.results[res.CheckpointID] = res
	x.resultsMu.Unlock()
}

func (x *execution) result(id string) (CheckpointResult, bool) {
	x.resultsMu.Lock()
	defer x.resultsMu.Unlock()
	res, ok := x.results[id]
	return res, ok
}

// finalize assembles the Result in declaration order. Checkpoints
// that never started before an abort get no entry.
func (x *execution) finalize(start time.Time, runErr error) *Result {
	res := &Result{
		ExecutionID:      x.executionID,
		PipelineID:       x.cfg.ID,
		StartedAt:        start,
		Duration:         time.Since(start),
		FailedCheckpoint: x.failedID,
		Warnings:         x.warnings,
	}

	var sum float64
	executed := 0
	x.resultsMu.Lock()
	for _, cp := range x.cfg.Checkpoints {
		cr, ok := x.results[cp.ID]
		if !ok {
			continue
		}
		res.CheckpointResults = append(res.CheckpointResults, cr)
		if cr.Status != StatusSkipped {
			sum += cr.Score
			executed++
		}
	}
	x.resultsMu.Unlock()
	if executed > 0 {
		res.Score = sum / float64(executed)
	}

	switch {
	case runErr == nil:
		res.Status = ExecutionCompleted
	case x.executor.isCancelled():
		res.Status = ExecutionCancelled
		res.Error = ErrCancelled.Error()
	default:
		// A required checkpoint that failed verification is a failed
		// run; anything else that killed the loop is an error.
		res.Status = ExecutionFailed
		var mfe *MandatoryFailureError
		if !errors.As(runErr, &mfe) || x.abortedOnErr {
			res.Status = ExecutionError
		}
		res.Error = runErr.Error()
	}
	return res
}
