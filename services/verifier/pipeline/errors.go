// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when a pipeline config fails
	// structural validation.
	ErrInvalidConfig = errors.New("pipeline: invalid config")

	// ErrCycle is returned when checkpoint dependencies form a cycle.
	ErrCycle = errors.New("pipeline: dependency cycle")

	// ErrUnknownDependency is returned when a checkpoint depends on
	// an undeclared checkpoint ID.
	ErrUnknownDependency = errors.New("pipeline: unknown dependency")

	// ErrDuplicateCheckpoint is returned when two checkpoints share
	// an ID.
	ErrDuplicateCheckpoint = errors.New("pipeline: duplicate checkpoint id")

	// ErrExecutionInProgress is returned when Execute is called while
	// a run is already active.
	ErrExecutionInProgress = errors.New("pipeline: execution already in progress")

	// ErrNotRunning is returned by Pause/Resume/Cancel when no
	// execution is active.
	ErrNotRunning = errors.New("pipeline: no execution in progress")

	// ErrNotPaused is returned by Resume when the execution is not
	// paused.
	ErrNotPaused = errors.New("pipeline: execution not paused")

	// ErrCancelled is returned when execution was cancelled
	// cooperatively.
	ErrCancelled = errors.New("pipeline: execution cancelled")
)

// MandatoryFailureError aborts an execution when a required
// checkpoint fails.
type MandatoryFailureError struct {
	CheckpointID string
	Reason       string
}

func (e *MandatoryFailureError) Error() string {
	return fmt.Sprintf("pipeline: required checkpoint %q failed: %s", e.CheckpointID, e.Reason)
}

// ConditionError reports a condition that could not be evaluated.
type ConditionError struct {
	Field    string
	Operator Operator
	Reason   string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("pipeline: condition %s %s: %s", e.Field, e.Operator, e.Reason)
}
