// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rollback restores system state from sealed snapshots.
//
// # Description
//
// The engine drives a fixed restore order: database, filesystem,
// memory, system, tasks, agents. Earlier sections are foundations for
// later ones, so a database restored after agent state would leave
// agents pointing at rows that no longer exist. Three modes are
// supported: strict aborts on the first problem, partial restores
// what it safely can, and simulation mutates nothing and reports what
// would happen.
//
// # Thread Safety
//
// The Engine serializes rollbacks internally; concurrent Rollback
// calls queue rather than interleave.
package rollback

import (
	"fmt"
	"time"

	"github.com/AleutianAI/sentinel/services/verifier/snapshot"
)

// Mode selects rollback semantics.
type Mode string

const (
	// ModeStrict aborts on any safety failure or section error.
	ModeStrict Mode = "strict"

	// ModePartial restores every section that passes, recording
	// failures without aborting. Fatal safety checks still abort.
	ModePartial Mode = "partial"

	// ModeSimulation runs all checks and reports the restore plan
	// without mutating anything.
	ModeSimulation Mode = "simulation"
)

// Status is the lifecycle state of a rollback attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusBackingUp  Status = "backing_up"
	StatusSuspending Status = "suspending"
	StatusRestoring  Status = "restoring"
	StatusVerifying  Status = "verifying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSimulated  Status = "simulated"
)

// Section identifies one restore unit, in restore order.
type Section string

const (
	SectionDatabase   Section = "database"
	SectionFileSystem Section = "filesystem"
	SectionMemory     Section = "memory"
	SectionSystem     Section = "system"
	SectionTasks      Section = "tasks"
	SectionAgents     Section = "agents"
)

// restoreOrder is the fixed section sequence.
var restoreOrder = []Section{
	SectionDatabase,
	SectionFileSystem,
	SectionMemory,
	SectionSystem,
	SectionTasks,
	SectionAgents,
}

// SectionStatus is one section's outcome.
type SectionStatus string

const (
	SectionRestored  SectionStatus = "restored"
	SectionFailed    SectionStatus = "failed"
	SectionSkipped   SectionStatus = "skipped"
	SectionSimulated SectionStatus = "simulated"
)

// SectionResult records what happened to one section.
type SectionResult struct {
	// Section identifies the restore unit.
	Section Section `json:"section"`

	// Status is the outcome.
	Status SectionStatus `json:"status"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`

	// Duration is the section wall time.
	Duration time.Duration `json:"duration,omitempty"`
}

// Request asks for a rollback to a specific snapshot.
type Request struct {
	// SnapshotID is the restore target. Empty selects the latest
	// sealed snapshot.
	SnapshotID string `json:"snapshot_id"`

	// Mode selects the rollback semantics; defaults to strict.
	Mode Mode `json:"mode"`

	// Reason is recorded in history for auditing.
	Reason string `json:"reason"`

	// Sections limits the restore to the named sections, applied in
	// restore order. Empty restores everything.
	Sections []Section `json:"sections,omitempty"`

	// ExcludeSections removes sections from the restore set.
	ExcludeSections []Section `json:"exclude_sections,omitempty"`

	// SkipBackup disables the pre-restore backup snapshot, and with
	// it emergency recovery after a failed strict restore.
	SkipBackup bool `json:"skip_backup,omitempty"`

	// SkipVerify disables the post-restore verification pass (state
	// equivalence, consistency, and liveness checks). Pre-restore
	// safety checks always run; integrity and lock failures block in
	// every mode.
	SkipVerify bool `json:"skip_verify,omitempty"`
}

// allSections returns a set covering every restore section.
func allSections() map[Section]bool {
	all := make(map[Section]bool, len(restoreOrder))
	for _, s := range restoreOrder {
		all[s] = true
	}
	return all
}

// sectionSet resolves the include/exclude lists into the effective
// restore set. Unknown section names are an error.
func (r Request) sectionSet() (map[Section]bool, error) {
	known := allSections()

	var allowed map[Section]bool
	if len(r.Sections) == 0 {
		allowed = allSections()
	} else {
		allowed = make(map[Section]bool, len(r.Sections))
		for _, s := range r.Sections {
			if !known[s] {
				return nil, fmt.Errorf("unknown section %q", s)
			}
			allowed[s] = true
		}
	}
	for _, s := range r.ExcludeSections {
		if !known[s] {
			return nil, fmt.Errorf("unknown section %q", s)
		}
		delete(allowed, s)
	}
	return allowed, nil
}

// Result is the outcome of one rollback attempt.
type Result struct {
	// ID uniquely identifies the attempt.
	ID string `json:"id"`

	// SnapshotID is the restore target.
	SnapshotID string `json:"snapshot_id"`

	// Mode is the requested semantics.
	Mode Mode `json:"mode"`

	// Status is the terminal state.
	Status Status `json:"status"`

	// Safety is the pre-restore safety report.
	Safety *SafetyReport `json:"safety,omitempty"`

	// BackupSnapshotID is the safety backup captured before restoring.
	// Empty for simulations and attempts aborted before backup.
	BackupSnapshotID string `json:"backup_snapshot_id,omitempty"`

	// Sections are the per-section outcomes in restore order.
	Sections []SectionResult `json:"sections,omitempty"`

	// Verified reports whether every post-restore check passed.
	// Always false when verification was skipped.
	Verified bool `json:"verified"`

	// FailedChecks lists post-restore checks that did not pass. The
	// restore itself still completes; callers decide how to react.
	FailedChecks []string `json:"failed_checks,omitempty"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total wall time.
	Duration time.Duration `json:"duration"`

	// Reason mirrors the request reason.
	Reason string `json:"reason,omitempty"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`
}

// Record is the compact history entry kept per attempt.
type Record struct {
	ID         string        `json:"id"`
	SnapshotID string        `json:"snapshot_id"`
	Mode       Mode          `json:"mode"`
	Status     Status        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// hasPayload reports whether the snapshot carries data for a section.
// Database, filesystem, and system state are always captured; the map
// sections restore only when non-empty.
func hasPayload(snap *snapshot.Snapshot, s Section) bool {
	switch s {
	case SectionDatabase, SectionFileSystem, SectionSystem:
		return true
	case SectionMemory:
		return len(snap.Memory) > 0
	case SectionTasks:
		return len(snap.TaskStates) > 0
	case SectionAgents:
		return len(snap.AgentStates) > 0
	default:
		return false
	}
}
