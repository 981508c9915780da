// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot provides immutable, checksummed captures of system
// state used as rollback targets.
//
// # Description
//
// A Snapshot records agent states, task states, system configuration,
// a filesystem manifest, and database status at a point in time. Once
// sealed, the snapshot carries a SHA-256 checksum over every field
// except the checksum itself; any later mismatch marks the snapshot
// untrustworthy.
//
// # Thread Safety
//
// Snapshots are immutable after Seal. Stores in this package are safe
// for concurrent use.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// AgentState captures one agent at snapshot time.
type AgentState struct {
	// ID is the agent identifier.
	ID string `json:"id"`

	// Status is the agent lifecycle status (e.g. "active", "suspended").
	Status string `json:"status"`

	// CurrentTaskID is the task the agent was working on, if any.
	CurrentTaskID string `json:"current_task_id,omitempty"`

	// TrustScore is the agent's composite trust score at capture time.
	TrustScore float64 `json:"trust_score"`

	// Config is the agent's configuration payload.
	Config map[string]any `json:"config,omitempty"`
}

// TaskState captures one task at snapshot time.
type TaskState struct {
	// ID is the task identifier.
	ID string `json:"id"`

	// AgentID is the agent assigned to the task.
	AgentID string `json:"agent_id,omitempty"`

	// Status is the task status (e.g. "pending", "running", "done").
	Status string `json:"status"`

	// Progress is completion in [0,1].
	Progress float64 `json:"progress"`
}

// SystemState captures coordinator-level configuration.
type SystemState struct {
	// Version is the system version string.
	Version string `json:"version"`

	// Config is the system configuration payload.
	Config map[string]any `json:"config,omitempty"`

	// ActiveOperations lists operations in flight at capture time.
	ActiveOperations []string `json:"active_operations,omitempty"`

	// ResourceLocks lists held resource locks at capture time.
	ResourceLocks []string `json:"resource_locks,omitempty"`
}

// FileSystemState is a checksum manifest of tracked files.
type FileSystemState struct {
	// Checksums maps file path to content hash.
	Checksums map[string]string `json:"checksums,omitempty"`
}

// DatabaseState captures database handle status.
type DatabaseState struct {
	// Connected reports whether the database handle was live.
	Connected bool `json:"connected"`

	// SchemaVersion is the schema migration version.
	SchemaVersion string `json:"schema_version,omitempty"`

	// RecordCounts maps table name to row count.
	RecordCounts map[string]int64 `json:"record_counts,omitempty"`
}

// Snapshot is an immutable, checksummed capture of system state.
type Snapshot struct {
	// ID uniquely identifies the snapshot.
	ID string `json:"id"`

	// Timestamp is when the snapshot was captured.
	Timestamp time.Time `json:"timestamp"`

	// AgentStates maps agent id to captured state.
	AgentStates map[string]AgentState `json:"agent_states"`

	// TaskStates maps task id to captured state.
	TaskStates map[string]TaskState `json:"task_states"`

	// System is the coordinator state.
	System SystemState `json:"system"`

	// FileSystem is the tracked-file checksum manifest.
	FileSystem FileSystemState `json:"file_system"`

	// Database is the database handle status.
	Database DatabaseState `json:"database"`

	// Memory is the in-memory working state payload.
	Memory map[string]any `json:"memory,omitempty"`

	// Metadata carries caller-supplied labels (reason, trigger, etc).
	Metadata map[string]string `json:"metadata"`

	// Checksum is the SHA-256 (hex) of every other field. Set by Seal.
	Checksum string `json:"checksum"`
}

// ComputeChecksum returns the SHA-256 hex digest of the snapshot with
// its Checksum field cleared.
//
// Description:
//
//	Serialization uses encoding/json, which emits map keys in sorted
//	order, so the digest is deterministic for equal contents.
func (s *Snapshot) ComputeChecksum() (string, error) {
	if s == nil {
		return "", ErrNilSnapshot
	}

	shadow := *s
	shadow.Checksum = ""

	data, err := json.Marshal(&shadow)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot for checksum: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal computes and stores the snapshot checksum. Must be called once
// after capture and before the snapshot is stored or restored.
func (s *Snapshot) Seal() error {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}
	s.Checksum = sum
	return nil
}

// VerifyIntegrity recomputes the checksum and compares it to the
// stored value.
//
// Outputs:
//
//	error - ErrNotSealed if no checksum is present, ErrChecksumMismatch
//	(wrapped in IntegrityError) if the contents changed, nil otherwise.
func (s *Snapshot) VerifyIntegrity() error {
	if s == nil {
		return ErrNilSnapshot
	}
	if s.Checksum == "" {
		return NewIntegrityError(s.ID, ErrNotSealed)
	}

	sum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}
	if sum != s.Checksum {
		return NewIntegrityError(s.ID, ErrChecksumMismatch)
	}
	return nil
}

// ValidateStructure checks structural completeness: id, timestamp and
// metadata must be present.
func (s *Snapshot) ValidateStructure() error {
	if s == nil {
		return ErrNilSnapshot
	}
	if s.ID == "" || s.Timestamp.IsZero() || s.Metadata == nil {
		return NewIntegrityError(s.ID, ErrIncomplete)
	}
	return nil
}

// Clone returns a deep copy via JSON round-trip. Used by stores so
// callers can never mutate a stored snapshot in place.
func (s *Snapshot) Clone() (*Snapshot, error) {
	if s == nil {
		return nil, ErrNilSnapshot
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &out, nil
}
