// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring converts per-agent metric streams into composite
// trust scores with trend detection and risk tiers.
//
// # Description
//
// The engine ingests AgentMetric observations and derives five
// component scores (accuracy, reliability, consistency, efficiency,
// adaptability), a weighted composite, per-metric-type trends from
// linear regression, and a discrete risk assessment. Scores are never
// persisted as a source of truth: they are always recomputed from the
// bounded metric history plus a fixed ScoringConfig.
//
// # Thread Safety
//
// The Engine is safe for concurrent use. Per-agent histories are
// sharded so that ingestion for different agents does not contend on
// a single lock.
package scoring

import (
	"time"
)

// MetricType classifies an agent observation.
type MetricType string

const (
	MetricAccuracy    MetricType = "accuracy"
	MetricReliability MetricType = "reliability"
	MetricConsistency MetricType = "consistency"
	MetricEfficiency  MetricType = "efficiency"
)

// knownMetricTypes is the set of accepted metric types.
var knownMetricTypes = map[MetricType]bool{
	MetricAccuracy:    true,
	MetricReliability: true,
	MetricConsistency: true,
	MetricEfficiency:  true,
}

// MetricContext carries task-level context for a metric observation.
type MetricContext struct {
	// TaskID is the task the observation belongs to.
	TaskID string `json:"task_id,omitempty"`

	// TaskType buckets tasks for adaptability scoring.
	TaskType string `json:"task_type,omitempty"`

	// Complexity buckets tasks for duration expectations
	// ("low", "medium", "high").
	Complexity string `json:"complexity,omitempty"`

	// DurationMs is the actual task duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Intervened reports whether a human had to step in.
	Intervened bool `json:"intervened,omitempty"`
}

// MetricValidation is the validation outcome attached to a metric.
type MetricValidation struct {
	// IsValid reports whether the observation passed validation.
	IsValid bool `json:"is_valid"`

	// Score is the validation score in [0,1].
	Score float64 `json:"score"`

	// Errors lists validation failures.
	Errors []string `json:"errors,omitempty"`

	// Critical marks a validation error severe enough to force an
	// eager score recomputation.
	Critical bool `json:"critical,omitempty"`
}

// AgentMetric is one time-stamped observation about an agent.
// Immutable once recorded; only bounded-history eviction removes it.
type AgentMetric struct {
	// AgentID is the observed agent.
	AgentID string `json:"agent_id"`

	// Type is the metric classification.
	Type MetricType `json:"type"`

	// Value is the observation in [0,1].
	Value float64 `json:"value"`

	// Confidence is the observer's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Timestamp is when the observation was made.
	Timestamp time.Time `json:"timestamp"`

	// Context is optional task-level context.
	Context MetricContext `json:"context,omitempty"`

	// Validation is the validation outcome for the observation.
	Validation MetricValidation `json:"validation,omitempty"`
}

// TrendDirection classifies a metric trend.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// Trend is the linear-regression trend of one metric type.
type Trend struct {
	// MetricType is the metric the trend describes.
	MetricType MetricType `json:"metric_type"`

	// Direction is stable when |Slope| is below the configured epsilon.
	Direction TrendDirection `json:"direction"`

	// Slope is value change per hour.
	Slope float64 `json:"slope"`

	// Confidence is the absolute correlation coefficient in [0,1].
	Confidence float64 `json:"confidence"`

	// SampleCount is the number of observations regressed.
	SampleCount int `json:"sample_count"`
}

// RiskLevel is a discrete severity bucket.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskFactor names one contributor to an agent's risk.
type RiskFactor struct {
	// Name identifies the factor (e.g. "Low Accuracy").
	Name string `json:"name"`

	// Severity is the factor weight in [0,1].
	Severity float64 `json:"severity"`

	// Description explains the factor.
	Description string `json:"description,omitempty"`
}

// RiskAssessment is the aggregate risk picture for one agent.
type RiskAssessment struct {
	// Level is derived from the highest factor severity.
	Level RiskLevel `json:"level"`

	// Factors lists all contributing factors.
	Factors []RiskFactor `json:"factors,omitempty"`
}

// ComponentScores holds the five component trust scores, each in [0,1].
type ComponentScores struct {
	Accuracy     float64 `json:"accuracy"`
	Reliability  float64 `json:"reliability"`
	Consistency  float64 `json:"consistency"`
	Efficiency   float64 `json:"efficiency"`
	Adaptability float64 `json:"adaptability"`
}

// AgentScore is the derived trust picture for one agent. It is a pure
// function of the agent's metric history and the ScoringConfig.
type AgentScore struct {
	// AgentID is the scored agent.
	AgentID string `json:"agent_id"`

	// OverallScore is the weighted composite in [0,1].
	OverallScore float64 `json:"overall_score"`

	// Components are the individual component scores.
	Components ComponentScores `json:"components"`

	// Trends holds per-metric-type trends with enough samples.
	Trends []Trend `json:"trends,omitempty"`

	// Risk is the discrete risk assessment.
	Risk RiskAssessment `json:"risk"`

	// ComputedAt is when the score was derived.
	ComputedAt time.Time `json:"computed_at"`
}

// Evidence supports a claim.
type Evidence struct {
	// Type classifies the evidence (e.g. "artifact", "log", "test").
	Type string `json:"type"`

	// Ref points at the supporting artifact.
	Ref string `json:"ref"`

	// Description explains what the evidence shows.
	Description string `json:"description,omitempty"`
}

// Claim is a statement made by an agent about its own work, submitted
// for verification.
type Claim struct {
	// ID uniquely identifies the claim.
	ID string `json:"id"`

	// AgentID is the claiming agent.
	AgentID string `json:"agent_id"`

	// Statement is the asserted outcome.
	Statement string `json:"statement"`

	// Confidence is the agent's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Evidence lists supporting artifacts.
	Evidence []Evidence `json:"evidence,omitempty"`
}
