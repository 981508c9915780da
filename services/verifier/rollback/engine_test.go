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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sentinel/services/verifier/snapshot"
)

func newTestEngine(t *testing.T, controller SystemController) *Engine {
	t.Helper()
	e, err := NewEngine(&Options{
		Store:      snapshot.NewMemoryStore(0),
		Controller: controller,
	})
	require.NoError(t, err)
	return e
}

func seedController() *MemoryController {
	c := NewMemoryController()
	c.SetAgent(snapshot.AgentState{ID: "agent-1", Status: "active", CurrentTaskID: "task-1", TrustScore: 0.9})
	c.SetAgent(snapshot.AgentState{ID: "agent-2", Status: "active", TrustScore: 0.8})
	c.SetTask(snapshot.TaskState{ID: "task-1", AgentID: "agent-1", Status: "running", Progress: 0.5})
	c.SetSystem(snapshot.SystemState{Version: "1.0.0"})
	c.SetDatabase(snapshot.DatabaseState{Connected: true, SchemaVersion: "v12"})
	c.SetMemoryValue("plan", "original")
	return c
}

// orderController records the call sequence around a MemoryController.
type orderController struct {
	*MemoryController
	mu    sync.Mutex
	calls []string
}

func (o *orderController) log(name string) {
	o.mu.Lock()
	o.calls = append(o.calls, name)
	o.mu.Unlock()
}

func (o *orderController) SuspendAgents(ctx context.Context) error {
	o.log("suspend")
	return o.MemoryController.SuspendAgents(ctx)
}

func (o *orderController) ResumeAgents(ctx context.Context) error {
	o.log("resume")
	return o.MemoryController.ResumeAgents(ctx)
}

func (o *orderController) StopActiveTasks(ctx context.Context) error {
	o.log("stop_tasks")
	return o.MemoryController.StopActiveTasks(ctx)
}

func (o *orderController) RestoreDatabase(ctx context.Context, s snapshot.DatabaseState) error {
	o.log("database")
	return o.MemoryController.RestoreDatabase(ctx, s)
}

func (o *orderController) RestoreFileSystem(ctx context.Context, s snapshot.FileSystemState) error {
	o.log("filesystem")
	return o.MemoryController.RestoreFileSystem(ctx, s)
}

func (o *orderController) RestoreMemory(ctx context.Context, m map[string]any) error {
	o.log("memory")
	return o.MemoryController.RestoreMemory(ctx, m)
}

func (o *orderController) RestoreSystem(ctx context.Context, s snapshot.SystemState) error {
	o.log("system")
	return o.MemoryController.RestoreSystem(ctx, s)
}

func (o *orderController) RestoreTaskStates(ctx context.Context, ts map[string]snapshot.TaskState) error {
	o.log("tasks")
	return o.MemoryController.RestoreTaskStates(ctx, ts)
}

func (o *orderController) RestoreAgentStates(ctx context.Context, as map[string]snapshot.AgentState) error {
	o.log("agents")
	return o.MemoryController.RestoreAgentStates(ctx, as)
}

func (o *orderController) Calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil)
	require.ErrorIs(t, err, ErrNilStore)

	_, err = NewEngine(&Options{Store: snapshot.NewMemoryStore(0)})
	require.ErrorIs(t, err, ErrNilController)
}

func TestCreateSnapshot(t *testing.T) {
	c := seedController()
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, map[string]string{"reason": "pre-deploy"})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.NoError(t, snap.VerifyIntegrity())
	assert.Equal(t, "pre-deploy", snap.Metadata["reason"])
	assert.Len(t, snap.AgentStates, 2)

	stored, err := e.store.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Checksum, stored.Checksum)
}

func TestRollbackStrictRestoresState(t *testing.T) {
	c := seedController()
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)

	// Drift the live state.
	c.SetAgent(snapshot.AgentState{ID: "agent-3", Status: "active"})
	c.SetMemoryValue("plan", "drifted")
	c.SetDatabase(snapshot.DatabaseState{Connected: false, SchemaVersion: "v12"})

	res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModeStrict, Reason: "drift"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, snap.ID, res.SnapshotID)

	_, ok := c.Agent("agent-3")
	assert.False(t, ok, "agent-3 should be gone after restore")
	plan, _ := c.MemoryValue("plan")
	assert.Equal(t, "original", plan)
	assert.False(t, c.Suspended(), "agents must be resumed after rollback")

	hist := e.History(0)
	require.Len(t, hist, 1)
	assert.Equal(t, StatusCompleted, hist[0].Status)
	assert.Equal(t, "drift", hist[0].Reason)
}

func TestRollbackRestoreOrder(t *testing.T) {
	c := &orderController{MemoryController: seedController()}
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)

	_, err = e.Rollback(ctx, Request{SnapshotID: snap.ID})
	require.NoError(t, err)

	calls := c.Calls()
	want := []string{"suspend", "stop_tasks", "database", "filesystem", "memory", "system", "tasks", "agents", "resume"}
	assert.Equal(t, want, calls)
}

func TestRollbackResourceLocksAlwaysFatal(t *testing.T) {
	c := seedController()
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)

	c.SetSystem(snapshot.SystemState{Version: "1.0.0", ResourceLocks: []string{"db-migration"}})

	for _, mode := range []Mode{ModeStrict, ModePartial} {
		res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: mode})
		var serr *SafetyError
		require.ErrorAs(t, err, &serr, "mode %s", mode)
		assert.Equal(t, StatusFailed, res.Status)
		require.NotEmpty(t, res.Safety.Checks)
		assert.Equal(t, CheckResourceLocks, serr.Checks[0].Code)
		assert.False(t, c.Suspended(), "no suspension should leak from an aborted rollback")
	}
}

func TestRollbackStrictAbortsOnWarnings(t *testing.T) {
	c := seedController()
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)

	c.SetSystem(snapshot.SystemState{Version: "1.0.0", ActiveOperations: []string{"op-1"}})

	_, err = e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModeStrict})
	var serr *SafetyError
	require.ErrorAs(t, err, &serr)

	// Partial tolerates the warning and restores.
	res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModePartial})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.NotNil(t, res.Safety)
	assert.False(t, res.Safety.Passed())
}

func TestRollbackSimulationMutatesNothing(t *testing.T) {
	c := seedController()
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)

	c.SetMemoryValue("plan", "drifted")

	res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModeSimulation})
	require.NoError(t, err)
	assert.Equal(t, StatusSimulated, res.Status)
	require.Len(t, res.Sections, 6)
	for _, sr := range res.Sections {
		assert.Contains(t, []SectionStatus{SectionSimulated, SectionSkipped}, sr.Status)
	}

	plan, _ := c.MemoryValue("plan")
	assert.Equal(t, "drifted", plan, "simulation must not restore anything")
	assert.False(t, c.Suspended())
}

// failingController fails one restore section.
type failingController struct {
	*MemoryController
	failSection Section
}

func (f *failingController) RestoreFileSystem(ctx context.Context, s snapshot.FileSystemState) error {
	if f.failSection == SectionFileSystem {
		return errors.New("disk read-only")
	}
	return f.MemoryController.RestoreFileSystem(ctx, s)
}

func TestRollbackPartialContinuesPastSectionFailure(t *testing.T) {
	c := &failingController{MemoryController: seedController(), failSection: SectionFileSystem}
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)
	c.SetMemoryValue("plan", "drifted")

	res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModePartial})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	var fsStatus, memStatus SectionStatus
	for _, sr := range res.Sections {
		switch sr.Section {
		case SectionFileSystem:
			fsStatus = sr.Status
		case SectionMemory:
			memStatus = sr.Status
		}
	}
	assert.Equal(t, SectionFailed, fsStatus)
	assert.Equal(t, SectionRestored, memStatus)

	plan, _ := c.MemoryValue("plan")
	assert.Equal(t, "original", plan)
}

func TestRollbackStrictAbortsOnSectionFailure(t *testing.T) {
	c := &failingController{MemoryController: seedController(), failSection: SectionFileSystem}
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)
	c.SetMemoryValue("plan", "drifted")

	res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModeStrict})
	var serr *SectionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, SectionFileSystem, serr.Section)
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.BackupSnapshotID)

	// The target's memory section never landed; emergency recovery put
	// the pre-rollback state back instead.
	plan, _ := c.MemoryValue("plan")
	assert.Equal(t, "drifted", plan)
	assert.False(t, c.Suspended())

	// Emergency attempt is in the history alongside the failed one.
	records := e.History(10)
	require.Len(t, records, 2)
	assert.Equal(t, ModePartial, records[0].Mode)
	assert.Equal(t, res.BackupSnapshotID, records[0].SnapshotID)
	assert.Equal(t, StatusFailed, records[1].Status)
}

func TestRollbackSectionFilters(t *testing.T) {
	ctx := context.Background()

	t.Run("include restores only the named sections", func(t *testing.T) {
		c := seedController()
		e := newTestEngine(t, c)

		snap, err := e.CreateSnapshot(ctx, nil)
		require.NoError(t, err)
		c.SetMemoryValue("plan", "drifted")
		c.SetAgent(snapshot.AgentState{ID: "agent-3", Status: "active"})

		res, err := e.Rollback(ctx, Request{
			SnapshotID: snap.ID,
			Mode:       ModePartial,
			Sections:   []Section{SectionMemory},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)

		plan, _ := c.MemoryValue("plan")
		assert.Equal(t, "original", plan)
		_, ok := c.Agent("agent-3")
		assert.True(t, ok, "agents section was not requested")

		for _, sr := range res.Sections {
			if sr.Section == SectionMemory {
				assert.Equal(t, SectionRestored, sr.Status)
			} else {
				assert.Equal(t, SectionSkipped, sr.Status, "section %s", sr.Section)
			}
		}
	})

	t.Run("exclude removes a section from the default set", func(t *testing.T) {
		c := seedController()
		e := newTestEngine(t, c)

		snap, err := e.CreateSnapshot(ctx, nil)
		require.NoError(t, err)
		c.SetMemoryValue("plan", "drifted")
		c.SetAgent(snapshot.AgentState{ID: "agent-3", Status: "active"})

		res, err := e.Rollback(ctx, Request{
			SnapshotID:      snap.ID,
			Mode:            ModePartial,
			ExcludeSections: []Section{SectionMemory},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)

		plan, _ := c.MemoryValue("plan")
		assert.Equal(t, "drifted", plan, "memory was excluded")
		_, ok := c.Agent("agent-3")
		assert.False(t, ok, "agents section restored by default")
	})

	t.Run("unknown section name is rejected", func(t *testing.T) {
		c := seedController()
		e := newTestEngine(t, c)

		_, err := e.Rollback(ctx, Request{
			SnapshotID: "whatever",
			Sections:   []Section{Section("gpu")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown section")
	})

	t.Run("simulation honors the filter", func(t *testing.T) {
		c := seedController()
		e := newTestEngine(t, c)

		snap, err := e.CreateSnapshot(ctx, nil)
		require.NoError(t, err)

		res, err := e.Rollback(ctx, Request{
			SnapshotID: snap.ID,
			Mode:       ModeSimulation,
			Sections:   []Section{SectionDatabase},
		})
		require.NoError(t, err)
		for _, sr := range res.Sections {
			if sr.Section == SectionDatabase {
				assert.Equal(t, SectionSimulated, sr.Status)
			} else {
				assert.Equal(t, SectionSkipped, sr.Status)
			}
		}
	})
}

func TestRollbackSkipBackupDisablesRecovery(t *testing.T) {
	c := &failingController{MemoryController: seedController(), failSection: SectionFileSystem}
	e := newTestEngine(t, c)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)
	c.SetMemoryValue("plan", "drifted")

	res, err := e.Rollback(ctx, Request{
		SnapshotID: snap.ID,
		Mode:       ModeStrict,
		SkipBackup: true,
	})
	var serr *SectionError
	require.ErrorAs(t, err, &serr)
	assert.Empty(t, res.BackupSnapshotID)

	// No backup means no emergency pass: only the failed attempt lands
	// in the history, and the drifted state stays put.
	records := e.History(10)
	require.Len(t, records, 1)
	assert.Equal(t, StatusFailed, records[0].Status)
	plan, _ := c.MemoryValue("plan")
	assert.Equal(t, "drifted", plan)
}

// deadController fails the post-restore liveness check.
type deadController struct {
	*MemoryController
}

func (d *deadController) CheckAgentLiveness(context.Context) error {
	return errors.New("agents unresponsive")
}

// skewController silently drops a memory key while restoring, leaving
// the live state short of the snapshot.
type skewController struct {
	*MemoryController
}

func (s *skewController) RestoreMemory(ctx context.Context, m map[string]any) error {
	trimmed := make(map[string]any, len(m))
	for k, v := range m {
		trimmed[k] = v
	}
	delete(trimmed, "plan")
	return s.MemoryController.RestoreMemory(ctx, trimmed)
}

func TestRollbackPostRestoreVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("clean restore verifies", func(t *testing.T) {
		c := seedController()
		e := newTestEngine(t, c)
		snap, err := e.CreateSnapshot(ctx, nil)
		require.NoError(t, err)
		c.SetMemoryValue("plan", "drifted")

		res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModePartial})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.True(t, res.Verified)
		assert.Empty(t, res.FailedChecks)
	})

	t.Run("unresponsive agents fail a check, not the rollback", func(t *testing.T) {
		c := &deadController{MemoryController: seedController()}
		e := newTestEngine(t, c)
		snap, err := e.CreateSnapshot(ctx, nil)
		require.NoError(t, err)

		res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModePartial})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.False(t, res.Verified)
		require.Len(t, res.FailedChecks, 1)
		assert.Contains(t, res.FailedChecks[0], "liveness")
	})

	t.Run("restored section diverging from the snapshot is reported", func(t *testing.T) {
		c := &skewController{MemoryController: seedController()}
		e := newTestEngine(t, c)
		snap, err := e.CreateSnapshot(ctx, nil)
		require.NoError(t, err)

		res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModePartial})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.False(t, res.Verified)
		require.NotEmpty(t, res.FailedChecks)
		assert.Contains(t, res.FailedChecks[0], "section memory")
	})

	t.Run("task referencing an unknown agent is reported", func(t *testing.T) {
		c := seedController()
		c.SetTask(snapshot.TaskState{ID: "task-9", AgentID: "ghost", Status: "running"})
		e := newTestEngine(t, c)
		snap, err := e.CreateSnapshot(ctx, nil)
		require.NoError(t, err)

		res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModePartial})
		require.NoError(t, err)
		assert.False(t, res.Verified)
		require.NotEmpty(t, res.FailedChecks)
		assert.Contains(t, res.FailedChecks[0], "unknown agent ghost")
	})

	t.Run("skip verify bypasses every check", func(t *testing.T) {
		c := &deadController{MemoryController: seedController()}
		e := newTestEngine(t, c)
		snap, err := e.CreateSnapshot(ctx, nil)
		require.NoError(t, err)

		res, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModePartial, SkipVerify: true})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.False(t, res.Verified)
		assert.Empty(t, res.FailedChecks)
	})
}

func TestRollbackTargets(t *testing.T) {
	c := seedController()
	e := newTestEngine(t, c)
	ctx := context.Background()

	_, err := e.Rollback(ctx, Request{})
	require.ErrorIs(t, err, ErrNoSnapshots)

	_, err = e.Rollback(ctx, Request{SnapshotID: "ghost"})
	require.ErrorIs(t, err, snapshot.ErrNotFound)

	_, err = e.Rollback(ctx, Request{SnapshotID: "x", Mode: Mode("yolo")})
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestEmergencyRecoveryUsesLatest(t *testing.T) {
	c := seedController()
	e := newTestEngine(t, c)
	ctx := context.Background()

	first, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)
	c.SetMemoryValue("plan", "v2")
	second, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	c.SetMemoryValue("plan", "corrupted")

	res, err := e.EmergencyRecovery(ctx, "watchdog detected corruption")
	require.NoError(t, err)
	assert.Equal(t, second.ID, res.SnapshotID)
	assert.Equal(t, ModePartial, res.Mode)

	plan, _ := c.MemoryValue("plan")
	assert.Equal(t, "v2", plan)
}

func TestHistoryBounded(t *testing.T) {
	c := seedController()
	e, err := NewEngine(&Options{
		Store:      snapshot.NewMemoryStore(0),
		Controller: c,
		MaxHistory: 5,
	})
	require.NoError(t, err)
	ctx := context.Background()

	snap, err := e.CreateSnapshot(ctx, nil)
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		_, err := e.Rollback(ctx, Request{SnapshotID: snap.ID, Mode: ModeSimulation})
		require.NoError(t, err)
	}
	assert.Len(t, e.History(0), 5)
}

func TestSafetyIntegrityCheck(t *testing.T) {
	c := seedController()
	snap, err := c.CurrentState(context.Background())
	require.NoError(t, err)
	require.NoError(t, snap.Seal())

	// Tamper after sealing.
	snap.Memory["plan"] = "tampered"

	report, err := runSafetyChecks(context.Background(), snap, c)
	require.NoError(t, err)
	require.NotEmpty(t, report.Checks)
	assert.Equal(t, CheckIntegrityChecksum, report.Checks[0].Code)
	assert.Equal(t, SeverityFatal, report.Checks[0].Severity)
}
