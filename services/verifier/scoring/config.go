// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ComponentWeights are the composite weights. They must sum to 1.0
// within a tolerance of 1e-9.
type ComponentWeights struct {
	Accuracy     float64 `yaml:"accuracy" validate:"gte=0,lte=1"`
	Reliability  float64 `yaml:"reliability" validate:"gte=0,lte=1"`
	Consistency  float64 `yaml:"consistency" validate:"gte=0,lte=1"`
	Efficiency   float64 `yaml:"efficiency" validate:"gte=0,lte=1"`
	Adaptability float64 `yaml:"adaptability" validate:"gte=0,lte=1"`
}

// Sum returns the total weight.
func (w ComponentWeights) Sum() float64 {
	return w.Accuracy + w.Reliability + w.Consistency + w.Efficiency + w.Adaptability
}

// RiskThresholds are the composite-score cutoffs for risk escalation.
// A component below High contributes a high-severity factor; below
// Medium a medium-severity factor.
type RiskThresholds struct {
	Medium float64 `yaml:"medium" validate:"gt=0,lte=1"`
	High   float64 `yaml:"high" validate:"gt=0,lte=1"`
}

// ScoringConfig controls the scoring engine. All scores derived from
// the same history and config are identical; the config is therefore
// part of the scoring contract, not a tuning knob per call.
type ScoringConfig struct {
	// Weights are the composite component weights.
	Weights ComponentWeights `yaml:"weights"`

	// MaxMetrics bounds the per-agent metric history.
	MaxMetrics int `yaml:"max_metrics" validate:"gt=0"`

	// MaxErrorRecords bounds the per-agent error history.
	MaxErrorRecords int `yaml:"max_error_records" validate:"gt=0"`

	// DecayHalfWindow is the exponential decay constant for accuracy
	// weighting: weight = exp(-age/DecayHalfWindow) * confidence.
	DecayHalfWindow time.Duration `yaml:"decay_half_window" validate:"gt=0"`

	// RecentWindow bounds "recent" observations for efficiency,
	// adaptability, and error-rate checks.
	RecentWindow time.Duration `yaml:"recent_window" validate:"gt=0"`

	// NeutralScore is returned for components with no supporting data.
	NeutralScore float64 `yaml:"neutral_score" validate:"gte=0,lte=1"`

	// SparseAdaptabilityScore is the adaptability score when fewer
	// than MinAdaptabilityTasks recent tasks exist.
	SparseAdaptabilityScore float64 `yaml:"sparse_adaptability_score" validate:"gte=0,lte=1"`

	// MinAdaptabilityTasks is the recent-task floor below which
	// adaptability falls back to SparseAdaptabilityScore.
	MinAdaptabilityTasks int `yaml:"min_adaptability_tasks" validate:"gt=0"`

	// TrendMinSamples is the sample floor for trend regression.
	TrendMinSamples int `yaml:"trend_min_samples" validate:"gte=2"`

	// StableSlopeEpsilon is the per-hour slope magnitude below which
	// a trend is reported stable.
	StableSlopeEpsilon float64 `yaml:"stable_slope_epsilon" validate:"gt=0"`

	// Risk are the risk-escalation thresholds.
	Risk RiskThresholds `yaml:"risk"`

	// MaxRecentErrors is the 24h error count above which a high
	// error-rate risk factor is always added.
	MaxRecentErrors int `yaml:"max_recent_errors" validate:"gte=0"`

	// ExpectedDurations maps task complexity to expected duration.
	// Unknown complexities fall back to the "medium" entry.
	ExpectedDurations map[string]time.Duration `yaml:"expected_durations"`

	// TargetTasksPerHour is the throughput target for efficiency.
	TargetTasksPerHour float64 `yaml:"target_tasks_per_hour" validate:"gt=0"`
}

// DefaultScoringConfig returns the production configuration.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		Weights: ComponentWeights{
			Accuracy:     0.30,
			Reliability:  0.25,
			Consistency:  0.20,
			Efficiency:   0.15,
			Adaptability: 0.10,
		},
		MaxMetrics:              1000,
		MaxErrorRecords:         500,
		DecayHalfWindow:         24 * time.Hour,
		RecentWindow:            24 * time.Hour,
		NeutralScore:            0.8,
		SparseAdaptabilityScore: 0.7,
		MinAdaptabilityTasks:    5,
		TrendMinSamples:         5,
		StableSlopeEpsilon:      0.001,
		Risk: RiskThresholds{
			Medium: 0.70,
			High:   0.50,
		},
		MaxRecentErrors: 5,
		ExpectedDurations: map[string]time.Duration{
			"low":    2 * time.Minute,
			"medium": 10 * time.Minute,
			"high":   45 * time.Minute,
		},
		TargetTasksPerHour: 4,
	}
}

// scoringConfigYAML mirrors ScoringConfig with durations as strings
// so config files can write "24h" instead of nanosecond counts.
type scoringConfigYAML struct {
	Weights                 ComponentWeights  `yaml:"weights"`
	MaxMetrics              int               `yaml:"max_metrics"`
	MaxErrorRecords         int               `yaml:"max_error_records"`
	DecayHalfWindow         string            `yaml:"decay_half_window"`
	RecentWindow            string            `yaml:"recent_window"`
	NeutralScore            float64           `yaml:"neutral_score"`
	SparseAdaptabilityScore float64           `yaml:"sparse_adaptability_score"`
	MinAdaptabilityTasks    int               `yaml:"min_adaptability_tasks"`
	TrendMinSamples         int               `yaml:"trend_min_samples"`
	StableSlopeEpsilon      float64           `yaml:"stable_slope_epsilon"`
	Risk                    RiskThresholds    `yaml:"risk"`
	MaxRecentErrors         int               `yaml:"max_recent_errors"`
	ExpectedDurations       map[string]string `yaml:"expected_durations"`
	TargetTasksPerHour      float64           `yaml:"target_tasks_per_hour"`
}

// UnmarshalYAML decodes durations from strings ("24h", "10m").
func (c *ScoringConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw scoringConfigYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}

	decay, err := parseDuration(raw.DecayHalfWindow)
	if err != nil {
		return fmt.Errorf("decay_half_window: %w", err)
	}
	recent, err := parseDuration(raw.RecentWindow)
	if err != nil {
		return fmt.Errorf("recent_window: %w", err)
	}
	var expected map[string]time.Duration
	if raw.ExpectedDurations != nil {
		expected = make(map[string]time.Duration, len(raw.ExpectedDurations))
		for k, v := range raw.ExpectedDurations {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("expected_durations[%s]: %w", k, err)
			}
			expected[k] = d
		}
	}

	*c = ScoringConfig{
		Weights:                 raw.Weights,
		MaxMetrics:              raw.MaxMetrics,
		MaxErrorRecords:         raw.MaxErrorRecords,
		DecayHalfWindow:         decay,
		RecentWindow:            recent,
		NeutralScore:            raw.NeutralScore,
		SparseAdaptabilityScore: raw.SparseAdaptabilityScore,
		MinAdaptabilityTasks:    raw.MinAdaptabilityTasks,
		TrendMinSamples:         raw.TrendMinSamples,
		StableSlopeEpsilon:      raw.StableSlopeEpsilon,
		Risk:                    raw.Risk,
		MaxRecentErrors:         raw.MaxRecentErrors,
		ExpectedDurations:       expected,
		TargetTasksPerHour:      raw.TargetTasksPerHour,
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// weightSumTolerance bounds the acceptable drift of the weight sum
// from 1.0.
const weightSumTolerance = 1e-9

// Validate checks structural constraints and the weight-sum invariant.
func (c *ScoringConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if diff := math.Abs(c.Weights.Sum() - 1.0); diff > weightSumTolerance {
		return fmt.Errorf("%w: component weights sum to %.12f, want 1.0", ErrInvalidConfig, c.Weights.Sum())
	}
	if c.Risk.High >= c.Risk.Medium {
		return fmt.Errorf("%w: risk.high (%.2f) must be below risk.medium (%.2f)", ErrInvalidConfig, c.Risk.High, c.Risk.Medium)
	}
	if _, ok := c.ExpectedDurations["medium"]; !ok {
		return fmt.Errorf("%w: expected_durations must carry a \"medium\" fallback", ErrInvalidConfig)
	}
	return nil
}
