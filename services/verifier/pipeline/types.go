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
	"context"
	"time"

	"github.com/AleutianAI/sentinel/services/verifier/scoring"
)

// Validator checks one aspect of an agent's claimed work at a
// checkpoint.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Validate may be
//	called concurrently for different checkpoints.
type Validator interface {
	// Name returns the unique validator name within its checkpoint.
	Name() string

	// Validate runs the check.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout.
	//   input - Checkpoint identity plus the execution context map.
	//
	// Outputs:
	//   ValidationResult - Pass/fail with a score in [0,1].
	//   error - Non-nil only for infrastructure failures; a failed
	//           check is a Passed=false result, not an error.
	Validate(ctx context.Context, input ValidationInput) (ValidationResult, error)
}

// ValidationInput is what a validator sees at execution time.
type ValidationInput struct {
	// CheckpointID is the checkpoint being validated.
	CheckpointID string

	// ExecutionID is the pipeline execution.
	ExecutionID string

	// Context is the shared execution context map.
	Context map[string]any

	// Claims are the agent claims attached to the execution.
	Claims []scoring.Claim
}

// ValidationResult is one validator's verdict.
type ValidationResult struct {
	// ValidatorName identifies the validator.
	ValidatorName string `json:"validator_name"`

	// Passed reports whether the check succeeded.
	Passed bool `json:"passed"`

	// Score is the check quality in [0,1].
	Score float64 `json:"score"`

	// Message explains the verdict.
	Message string `json:"message,omitempty"`
}

// TruthScorer scores agent claims. *scoring.Engine satisfies it.
type TruthScorer interface {
	ScoreClaim(ctx context.Context, claim scoring.Claim) (float64, error)
	CompositeScore(ctx context.Context, claims []scoring.Claim) (float64, error)
}

// TestRunner executes a referenced test suite and reports pass counts.
type TestRunner interface {
	RunTests(ctx context.Context, ref string) (passed, total int, err error)
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNe    Operator = "ne"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpIn    Operator = "in"
	OpNin   Operator = "nin"
	OpRegex Operator = "regex"
)

// Condition constrains a checkpoint's outcome. All of a checkpoint's
// conditions must hold or the checkpoint fails. Conditions are
// evaluated after the validators run, against the execution context
// overlaid with the validator outputs (reachable as
// "validators.<name>.score" and "validators.<name>.passed").
type Condition struct {
	// Field is a dotted path into the execution context map
	// (e.g. "task.complexity").
	Field string `json:"field" yaml:"field" validate:"required"`

	// Operator is the comparison to apply.
	Operator Operator `json:"operator" yaml:"operator" validate:"required,oneof=eq ne gt gte lt lte in nin regex"`

	// Value is the right-hand side of the comparison. For in/nin it
	// must be a list; for regex a pattern string.
	Value any `json:"value" yaml:"value"`
}

// Checkpoint is one verification step in a pipeline.
type Checkpoint struct {
	// ID uniquely identifies the checkpoint within the pipeline.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Name is the human-readable label.
	Name string `json:"name" yaml:"name"`

	// DependsOn lists checkpoint IDs that must pass first.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on"`

	// Required marks the checkpoint as mandatory: a failure aborts
	// the whole execution. Non-required failures are recorded and
	// execution continues, with dependents skipped.
	Required bool `json:"required" yaml:"required"`

	// Conditions must all hold for the checkpoint to pass; an unmet
	// condition fails the checkpoint like a failing validator would.
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions"`

	// Validators run when the checkpoint executes. A checkpoint
	// passes only if every validator passes and the mean score
	// reaches MinScore.
	Validators []Validator `json:"-" yaml:"-"`

	// MinScore is the pass floor for the mean validator score.
	MinScore float64 `json:"min_score" yaml:"min_score" validate:"gte=0,lte=1"`

	// CreateSnapshot captures a system snapshot before this
	// checkpoint runs, giving RollbackOnFail a fresh restore target.
	// Ignored when the executor has no snapshot hook.
	CreateSnapshot bool `json:"create_snapshot" yaml:"create_snapshot"`

	// Timeout bounds the checkpoint's validators. Zero means the
	// execution-level deadline applies alone.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`

	// RollbackOnFail requests a rollback before execution continues
	// or aborts after this checkpoint fails.
	RollbackOnFail bool `json:"rollback_on_fail" yaml:"rollback_on_fail"`
}

// Policy selects how ready checkpoints are dispatched.
type Policy string

const (
	// PolicyParallel runs ready checkpoints concurrently, bounded by
	// MaxWorkers.
	PolicyParallel Policy = "parallel"

	// PolicySequential runs one checkpoint at a time in dependency
	// order.
	PolicySequential Policy = "sequential"
)

// Config describes a whole verification pipeline.
type Config struct {
	// ID uniquely identifies the pipeline.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Name is the human-readable label.
	Name string `json:"name" yaml:"name"`

	// Checkpoints are the verification steps.
	Checkpoints []*Checkpoint `json:"checkpoints" yaml:"checkpoints" validate:"required,min=1"`

	// Policy is the dispatch policy; defaults to parallel.
	Policy Policy `json:"policy" yaml:"policy"`

	// MaxWorkers bounds concurrent checkpoints under PolicyParallel.
	MaxWorkers int `json:"max_workers" yaml:"max_workers" validate:"gte=0"`
}

// CheckpointStatus is the terminal state of one checkpoint.
type CheckpointStatus string

const (
	StatusPassed  CheckpointStatus = "passed"
	StatusFailed  CheckpointStatus = "failed"
	StatusSkipped CheckpointStatus = "skipped"
	StatusError   CheckpointStatus = "error"
)

// CheckpointResult is the outcome of one checkpoint.
type CheckpointResult struct {
	// CheckpointID identifies the checkpoint.
	CheckpointID string `json:"checkpoint_id"`

	// Status is the terminal state.
	Status CheckpointStatus `json:"status"`

	// Score is the mean validator score; zero for skipped.
	Score float64 `json:"score"`

	// ValidatorResults holds each validator's verdict.
	ValidatorResults []ValidationResult `json:"validator_results,omitempty"`

	// StartedAt is when the checkpoint began; zero for skipped.
	StartedAt time.Time `json:"started_at,omitempty"`

	// Duration is the checkpoint wall time.
	Duration time.Duration `json:"duration,omitempty"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`

	// SkipReason explains a skip.
	SkipReason string `json:"skip_reason,omitempty"`
}

// ExecutionStatus is the pipeline-level state.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"

	// ExecutionFailed means a required checkpoint's verification did
	// not pass; ExecutionError means the run died on an
	// infrastructure fault rather than a verification verdict.
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionError     ExecutionStatus = "error"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Result is the outcome of a pipeline execution.
type Result struct {
	// ExecutionID uniquely identifies the run.
	ExecutionID string `json:"execution_id"`

	// PipelineID identifies the pipeline configuration.
	PipelineID string `json:"pipeline_id"`

	// Status is the terminal execution state.
	Status ExecutionStatus `json:"status"`

	// CheckpointResults are ordered as the checkpoints were declared.
	// Checkpoints that never started before an abort have no entry.
	CheckpointResults []CheckpointResult `json:"checkpoint_results"`

	// Score is the mean score over executed (non-skipped) checkpoints.
	Score float64 `json:"score"`

	// TruthScore is the scoring engine's composite over the
	// execution's claims; zero when no scorer or claims were supplied.
	TruthScore float64 `json:"truth_score,omitempty"`

	// Warnings lists recovered, non-fatal incidents: optional
	// checkpoint failures and rollback recoveries.
	Warnings []string `json:"warnings,omitempty"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total wall time.
	Duration time.Duration `json:"duration"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`

	// FailedCheckpoint names the checkpoint that aborted execution.
	FailedCheckpoint string `json:"failed_checkpoint,omitempty"`
}
