// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/sentinel/services/verifier/events"
	"github.com/AleutianAI/sentinel/services/verifier/history"
	"github.com/AleutianAI/sentinel/services/verifier/snapshot"
)

// DefaultMaxHistory bounds the rollback attempt history.
const DefaultMaxHistory = 100

// Options configure an Engine.
type Options struct {
	// Logger is the structured logger; nil falls back to
	// slog.Default().
	Logger *slog.Logger

	// Emitter receives lifecycle events; nil disables emission.
	Emitter *events.Emitter

	// Store holds sealed snapshots. Required.
	Store snapshot.Store

	// Controller is the hook into the live system. Required.
	Controller SystemController

	// HistoryDir persists the attempt history; empty keeps it
	// memory-only.
	HistoryDir string

	// MaxHistory bounds the attempt history; zero uses
	// DefaultMaxHistory.
	MaxHistory int
}

// Engine creates snapshots and restores them.
type Engine struct {
	logger     *slog.Logger
	emitter    *events.Emitter
	store      snapshot.Store
	controller SystemController
	hist       *history.BoundedLog[Record]

	// mu serializes rollback attempts. Snapshot creation runs
	// concurrently with reads but never with a restore.
	mu sync.Mutex
}

// NewEngine validates options and returns a ready engine.
func NewEngine(opts *Options) (*Engine, error) {
	if opts == nil || opts.Store == nil {
		return nil, ErrNilStore
	}
	if opts.Controller == nil {
		return nil, ErrNilController
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxHistory := opts.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Engine{
		logger:     logger,
		emitter:    opts.Emitter,
		store:      opts.Store,
		controller: opts.Controller,
		hist:       history.NewBoundedLog[Record](maxHistory, opts.HistoryDir, "rollback_history"),
	}, nil
}

// CreateSnapshot captures the live system, seals it, and stores it.
//
// Inputs:
//   - ctx: cancels the capture.
//   - metadata: caller labels merged into the snapshot (reason,
//     trigger). May be nil.
//
// Outputs:
//   - *snapshot.Snapshot: the sealed, stored snapshot.
//   - error: capture, seal, or store failures.
func (e *Engine) CreateSnapshot(ctx context.Context, metadata map[string]string) (*snapshot.Snapshot, error) {
	snap, err := e.controller.CurrentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("rollback: capturing state: %w", err)
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	if snap.Metadata == nil {
		snap.Metadata = make(map[string]string)
	}
	for k, v := range metadata {
		snap.Metadata[k] = v
	}

	if err := snap.Seal(); err != nil {
		return nil, fmt.Errorf("rollback: sealing snapshot: %w", err)
	}
	if err := e.store.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("rollback: storing snapshot: %w", err)
	}

	e.logger.Info("snapshot created", "snapshot_id", snap.ID, "agents", len(snap.AgentStates), "tasks", len(snap.TaskStates))
	if e.emitter != nil {
		e.emitter.Emit(events.TypeSnapshotCreated, snap.ID, snap.ID)
	}
	return snap, nil
}

// Rollback restores the system from a snapshot according to the
// requested mode.
//
// Outputs:
//   - *Result: non-nil whenever an attempt was made, including failed
//     and aborted attempts.
//   - error: the abort cause, mirrored in the result.
func (e *Engine) Rollback(ctx context.Context, req Request) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode := req.Mode
	if mode == "" {
		mode = ModeStrict
	}
	if mode != ModeStrict && mode != ModePartial && mode != ModeSimulation {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	allowed, err := req.sectionSet()
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}

	res := &Result{
		ID:        uuid.NewString(),
		Mode:      mode,
		Reason:    req.Reason,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}

	snap, err := e.resolveTarget(ctx, req.SnapshotID)
	if err != nil {
		return e.finish(res, err), err
	}
	res.SnapshotID = snap.ID

	res.Status = StatusValidating
	report, err := runSafetyChecks(ctx, snap, e.controller)
	if err != nil {
		return e.finish(res, err), err
	}
	res.Safety = report

	if fatal := report.Fatal(); len(fatal) > 0 {
		err := &SafetyError{SnapshotID: snap.ID, Checks: fatal}
		return e.finish(res, err), err
	}
	if mode == ModeStrict && !report.Passed() {
		err := &SafetyError{SnapshotID: snap.ID, Checks: report.Checks}
		return e.finish(res, err), err
	}

	if mode == ModeSimulation {
		return e.simulate(res, snap, allowed), nil
	}

	return e.restore(ctx, res, snap, req, mode, allowed)
}

// EmergencyRecovery rolls back to the latest sealed snapshot in
// partial mode. It is the path of last resort when the system is
// already degraded, so it tolerates warnings and restores what it
// can.
func (e *Engine) EmergencyRecovery(ctx context.Context, reason string) (*Result, error) {
	e.logger.Warn("emergency recovery triggered", "reason", reason)
	return e.Rollback(ctx, Request{
		Mode:   ModePartial,
		Reason: "emergency: " + reason,
	})
}

// History returns up to limit recent attempts, newest first.
func (e *Engine) History(limit int) []Record {
	return e.hist.Recent(limit)
}

// Close persists and releases the attempt history.
func (e *Engine) Close() error {
	return e.hist.Close()
}

func (e *Engine) resolveTarget(ctx context.Context, snapshotID string) (*snapshot.Snapshot, error) {
	if snapshotID == "" {
		snap, err := e.store.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoSnapshots, err)
		}
		return snap, nil
	}
	return e.store.Get(ctx, snapshotID)
}

// simulate reports what a restore would do without touching the
// controller.
func (e *Engine) simulate(res *Result, snap *snapshot.Snapshot, allowed map[Section]bool) *Result {
	for _, section := range restoreOrder {
		status := SectionSimulated
		if !allowed[section] || !hasPayload(snap, section) {
			status = SectionSkipped
		}
		res.Sections = append(res.Sections, SectionResult{Section: section, Status: status})
	}
	res.Status = StatusSimulated
	res.Duration = time.Since(res.StartedAt)
	e.record(res)
	e.logger.Info("rollback simulated", "rollback_id", res.ID, "snapshot_id", res.SnapshotID)
	return res
}

func (e *Engine) restore(ctx context.Context, res *Result, snap *snapshot.Snapshot, req Request, mode Mode, allowed map[Section]bool) (*Result, error) {
	var backup *snapshot.Snapshot
	if !req.SkipBackup {
		res.Status = StatusBackingUp
		b, err := e.CreateSnapshot(ctx, map[string]string{
			"trigger":     "pre_rollback_backup",
			"rollback_id": res.ID,
		})
		if err != nil {
			err = fmt.Errorf("rollback: capturing backup: %w", err)
			return e.finish(res, err), err
		}
		backup = b
		res.BackupSnapshotID = backup.ID
	}

	return e.execute(ctx, res, snap, mode, backup, allowed, req.SkipVerify)
}

// execute runs the restore lifecycle. A non-nil backup enables
// emergency recovery when a strict restore fails mid-flight; the
// recovery pass runs without a backup of its own.
func (e *Engine) execute(ctx context.Context, res *Result, snap *snapshot.Snapshot, mode Mode, backup *snapshot.Snapshot, allowed map[Section]bool, skipVerify bool) (*Result, error) {
	res.Status = StatusSuspending
	if err := e.controller.SuspendAgents(ctx); err != nil {
		err = fmt.Errorf("rollback: suspending agents: %w", err)
		return e.finish(res, err), err
	}
	// Agents resume even when the restore aborts; a suspended fleet
	// is worse than a partially restored one.
	defer func() {
		if err := e.controller.ResumeAgents(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error("resuming agents after rollback", "rollback_id", res.ID, "error", err)
		}
	}()

	if err := e.controller.StopActiveTasks(ctx); err != nil {
		err = fmt.Errorf("rollback: stopping tasks: %w", err)
		return e.finish(res, err), err
	}

	res.Status = StatusRestoring
	for _, section := range restoreOrder {
		if !allowed[section] || !hasPayload(snap, section) {
			res.Sections = append(res.Sections, SectionResult{Section: section, Status: SectionSkipped})
			continue
		}

		start := time.Now()
		err := e.restoreSection(ctx, snap, section)
		sr := SectionResult{Section: section, Status: SectionRestored, Duration: time.Since(start)}
		if err != nil {
			sr.Status = SectionFailed
			sr.Error = err.Error()
		}
		res.Sections = append(res.Sections, sr)

		if err != nil {
			e.logger.Error("restore section failed",
				"rollback_id", res.ID,
				"section", section,
				"mode", mode,
				"error", err)
			if mode == ModeStrict {
				serr := &SectionError{Section: section, Err: err}
				e.finish(res, serr)
				e.recoverFromBackup(ctx, res, backup)
				return res, serr
			}
		}
	}

	if !skipVerify {
		res.Status = StatusVerifying
		res.FailedChecks = e.verifyRestore(ctx, res, snap)
		res.Verified = len(res.FailedChecks) == 0
		if !res.Verified {
			e.logger.Warn("post-restore verification found problems",
				"rollback_id", res.ID,
				"failed_checks", res.FailedChecks)
		}
	}

	res.Status = StatusCompleted
	res.Duration = time.Since(res.StartedAt)
	e.record(res)
	e.logger.Info("rollback completed",
		"rollback_id", res.ID,
		"snapshot_id", res.SnapshotID,
		"mode", mode,
		"duration", res.Duration)
	if e.emitter != nil {
		e.emitter.Emit(events.TypeRollbackCompleted, res.ID, res)
	}
	return res, nil
}

// verifyRestore re-checks the system after a restore: each restored
// section's live state must match the snapshot, tasks must reference
// known agents, and the fleet must respond. Failures are reported,
// not fatal; the restore already happened and its outcome stands.
func (e *Engine) verifyRestore(ctx context.Context, res *Result, snap *snapshot.Snapshot) []string {
	var failed []string

	current, err := e.controller.CurrentState(ctx)
	if err != nil {
		failed = append(failed, fmt.Sprintf("state capture: %s", err))
		current = nil
	}
	if current != nil {
		for _, sr := range res.Sections {
			if sr.Status != SectionRestored {
				continue
			}
			if !sectionMatches(current, snap, sr.Section) {
				failed = append(failed, fmt.Sprintf("section %s: live state differs from snapshot", sr.Section))
			}
		}
		for id, task := range current.TaskStates {
			if task.AgentID == "" {
				continue
			}
			if _, ok := current.AgentStates[task.AgentID]; !ok {
				failed = append(failed, fmt.Sprintf("consistency: task %s references unknown agent %s", id, task.AgentID))
			}
		}
	}

	if err := e.controller.CheckAgentLiveness(ctx); err != nil {
		failed = append(failed, fmt.Sprintf("liveness: %s", err))
	}
	return failed
}

func sectionMatches(current, snap *snapshot.Snapshot, section Section) bool {
	switch section {
	case SectionDatabase:
		return reflect.DeepEqual(current.Database, snap.Database)
	case SectionFileSystem:
		return reflect.DeepEqual(current.FileSystem, snap.FileSystem)
	case SectionMemory:
		return reflect.DeepEqual(current.Memory, snap.Memory)
	case SectionSystem:
		return reflect.DeepEqual(current.System, snap.System)
	case SectionTasks:
		return reflect.DeepEqual(current.TaskStates, snap.TaskStates)
	case SectionAgents:
		return reflect.DeepEqual(current.AgentStates, snap.AgentStates)
	default:
		return false
	}
}

func (e *Engine) restoreSection(ctx context.Context, snap *snapshot.Snapshot, section Section) error {
	switch section {
	case SectionDatabase:
		return e.controller.RestoreDatabase(ctx, snap.Database)
	case SectionFileSystem:
		return e.controller.RestoreFileSystem(ctx, snap.FileSystem)
	case SectionMemory:
		return e.controller.RestoreMemory(ctx, snap.Memory)
	case SectionSystem:
		return e.controller.RestoreSystem(ctx, snap.System)
	case SectionTasks:
		return e.controller.RestoreTaskStates(ctx, snap.TaskStates)
	case SectionAgents:
		return e.controller.RestoreAgentStates(ctx, snap.AgentStates)
	default:
		return fmt.Errorf("unknown section %q", section)
	}
}

// recoverFromBackup restores the pre-rollback backup in partial mode
// after a strict restore died mid-flight. Without it a failed strict
// rollback would leave the system half old state, half snapshot.
func (e *Engine) recoverFromBackup(ctx context.Context, failed *Result, backup *snapshot.Snapshot) {
	if backup == nil {
		return
	}
	e.logger.Warn("emergency recovery triggered",
		"rollback_id", failed.ID,
		"backup_snapshot_id", backup.ID)

	res := &Result{
		ID:         uuid.NewString(),
		SnapshotID: backup.ID,
		Mode:       ModePartial,
		Reason:     "emergency: strict rollback " + failed.ID + " failed mid-restore",
		Status:     StatusPending,
		StartedAt:  time.Now().UTC(),
	}
	if _, err := e.execute(context.WithoutCancel(ctx), res, backup, ModePartial, nil, allSections(), false); err != nil {
		e.logger.Error("emergency recovery failed",
			"rollback_id", res.ID,
			"backup_snapshot_id", backup.ID,
			"error", err)
	}
}

// finish marks the attempt failed, records it, and returns the result.
func (e *Engine) finish(res *Result, cause error) *Result {
	res.Status = StatusFailed
	res.Error = cause.Error()
	res.Duration = time.Since(res.StartedAt)
	e.record(res)
	e.logger.Error("rollback failed",
		"rollback_id", res.ID,
		"snapshot_id", res.SnapshotID,
		"mode", res.Mode,
		"error", cause)
	return res
}

func (e *Engine) record(res *Result) {
	e.hist.Append(Record{
		ID:         res.ID,
		SnapshotID: res.SnapshotID,
		Mode:       res.Mode,
		Status:     res.Status,
		Reason:     res.Reason,
		Error:      res.Error,
		StartedAt:  res.StartedAt,
		Duration:   res.Duration,
	})
}
