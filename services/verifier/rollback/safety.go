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

	"github.com/AleutianAI/sentinel/services/verifier/snapshot"
)

// Safety check codes.
const (
	CheckIntegrityChecksum    = "INTEGRITY_CHECKSUM"
	CheckIncompleteSnapshot   = "INCOMPLETE_SNAPSHOT"
	CheckCriticalDrift        = "CRITICAL_DRIFT"
	CheckActiveOperations     = "ACTIVE_OPERATIONS"
	CheckResourceLocks        = "RESOURCE_LOCKS"
	CheckDependencyConstraint = "DEPENDENCY_CONSTRAINT"
)

// Severity classifies a safety check failure.
type Severity string

const (
	// SeverityFatal aborts the rollback in every mode.
	SeverityFatal Severity = "fatal"

	// SeverityWarning aborts in strict mode only.
	SeverityWarning Severity = "warning"
)

// SafetyCheck is one failed pre-restore check. Passing checks are not
// recorded; an empty report means all checks held.
type SafetyCheck struct {
	// Code identifies the check.
	Code string `json:"code"`

	// Severity decides whether the check aborts the rollback.
	Severity Severity `json:"severity"`

	// Message explains the failure.
	Message string `json:"message"`

	// Details carries structured context for operators.
	Details map[string]any `json:"details,omitempty"`
}

// SafetyReport is the aggregate pre-restore verdict.
type SafetyReport struct {
	// SnapshotID is the inspected restore target.
	SnapshotID string `json:"snapshot_id"`

	// Checks lists every failed check.
	Checks []SafetyCheck `json:"checks,omitempty"`
}

// Passed reports whether no checks failed at all.
func (r *SafetyReport) Passed() bool { return len(r.Checks) == 0 }

// Fatal returns the fatal subset.
func (r *SafetyReport) Fatal() []SafetyCheck {
	var out []SafetyCheck
	for _, c := range r.Checks {
		if c.Severity == SeverityFatal {
			out = append(out, c)
		}
	}
	return out
}

// runSafetyChecks inspects the snapshot and the live system before
// any restore work. Resource locks are always fatal: releasing a lock
// by overwriting its owner is corruption, not recovery.
func runSafetyChecks(ctx context.Context, snap *snapshot.Snapshot, controller SystemController) (*SafetyReport, error) {
	report := &SafetyReport{SnapshotID: snap.ID}

	if err := snap.VerifyIntegrity(); err != nil {
		report.Checks = append(report.Checks, SafetyCheck{
			Code:     CheckIntegrityChecksum,
			Severity: SeverityFatal,
			Message:  "snapshot integrity verification failed: " + err.Error(),
		})
	}
	if err := snap.ValidateStructure(); err != nil {
		report.Checks = append(report.Checks, SafetyCheck{
			Code:     CheckIncompleteSnapshot,
			Severity: SeverityFatal,
			Message:  "snapshot is structurally incomplete: " + err.Error(),
		})
	}

	current, err := controller.CurrentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("rollback: reading current state: %w", err)
	}

	if len(current.System.ResourceLocks) > 0 {
		report.Checks = append(report.Checks, SafetyCheck{
			Code:     CheckResourceLocks,
			Severity: SeverityFatal,
			Message:  fmt.Sprintf("%d resource lock(s) held", len(current.System.ResourceLocks)),
			Details:  map[string]any{"locks": current.System.ResourceLocks},
		})
	}
	if n := len(current.System.ActiveOperations); n > 0 {
		report.Checks = append(report.Checks, SafetyCheck{
			Code:     CheckActiveOperations,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d operation(s) still active", n),
			Details:  map[string]any{"operations": current.System.ActiveOperations},
		})
	}

	// A schema that moved since the snapshot was taken means the
	// database section would write rows the current code cannot read.
	if snap.Database.SchemaVersion != "" &&
		current.Database.SchemaVersion != "" &&
		snap.Database.SchemaVersion != current.Database.SchemaVersion {
		report.Checks = append(report.Checks, SafetyCheck{
			Code:     CheckCriticalDrift,
			Severity: SeverityFatal,
			Message: fmt.Sprintf("database schema drifted from %s to %s since snapshot",
				snap.Database.SchemaVersion, current.Database.SchemaVersion),
		})
	}

	// Agents referencing tasks the snapshot does not carry would
	// resume against dangling work.
	for id, agent := range snap.AgentStates {
		if agent.CurrentTaskID == "" {
			continue
		}
		if _, ok := snap.TaskStates[agent.CurrentTaskID]; !ok {
			report.Checks = append(report.Checks, SafetyCheck{
				Code:     CheckDependencyConstraint,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("agent %s references task %s missing from snapshot", id, agent.CurrentTaskID),
				Details:  map[string]any{"agent_id": id, "task_id": agent.CurrentTaskID},
			})
		}
	}

	return report, nil
}
