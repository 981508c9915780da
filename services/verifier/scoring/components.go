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
	"math"
	"time"
)

// componentCalculator derives the five component scores from a metric
// slice. It carries no state of its own; everything flows from the
// config and the observation window.
type componentCalculator struct {
	cfg *ScoringConfig
}

func newComponentCalculator(cfg *ScoringConfig) *componentCalculator {
	return &componentCalculator{cfg: cfg}
}

// compute derives all five component scores at the given instant.
func (c *componentCalculator) compute(metrics []AgentMetric, now time.Time) ComponentScores {
	return ComponentScores{
		Accuracy:     c.accuracy(metrics, now),
		Reliability:  c.reliability(metrics),
		Consistency:  c.consistency(metrics),
		Efficiency:   c.efficiency(metrics, now),
		Adaptability: c.adaptability(metrics, now),
	}
}

// composite folds component scores with the configured weights.
func (c *componentCalculator) composite(s ComponentScores) float64 {
	w := c.cfg.Weights
	return clamp01(s.Accuracy*w.Accuracy +
		s.Reliability*w.Reliability +
		s.Consistency*w.Consistency +
		s.Efficiency*w.Efficiency +
		s.Adaptability*w.Adaptability)
}

// accuracy is the decay-and-confidence weighted mean of accuracy
// metrics. Older samples count exponentially less: weight is
// exp(-age/DecayHalfWindow) scaled by observer confidence.
func (c *componentCalculator) accuracy(metrics []AgentMetric, now time.Time) float64 {
	var weightedSum, weightTotal float64
	for _, m := range metrics {
		if m.Type != MetricAccuracy {
			continue
		}
		age := now.Sub(m.Timestamp)
		if age < 0 {
			age = 0
		}
		w := math.Exp(-age.Hours()/c.cfg.DecayHalfWindow.Hours()) * m.Confidence
		weightedSum += m.Value * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return c.cfg.NeutralScore
	}
	return clamp01(weightedSum / weightTotal)
}

// reliability blends validation success rate (0.7) with validation
// score stability (0.3) across reliability metrics. A sample counts
// as a success when its validation score reaches 0.8.
func (c *componentCalculator) reliability(metrics []AgentMetric) float64 {
	var validationScores []float64
	succeeded := 0
	for _, m := range metrics {
		if m.Type != MetricReliability {
			continue
		}
		validationScores = append(validationScores, m.Validation.Score)
		if m.Validation.Score >= 0.8 {
			succeeded++
		}
	}
	if len(validationScores) == 0 {
		return c.cfg.NeutralScore
	}
	successRate := float64(succeeded) / float64(len(validationScores))
	stability := 1 - clamp01(variance(validationScores))
	return clamp01(successRate*0.7 + stability*0.3)
}

// consistency blends value spread (0.6, via coefficient of variation)
// with confidence spread (0.4) over consistency metrics. At least
// three samples are needed; with fewer the neutral score holds.
func (c *componentCalculator) consistency(metrics []AgentMetric) float64 {
	var values, confidences []float64
	for _, m := range metrics {
		if m.Type != MetricConsistency {
			continue
		}
		values = append(values, m.Value)
		confidences = append(confidences, m.Confidence)
	}
	if len(values) < 3 {
		return c.cfg.NeutralScore
	}
	valueSpread := 1 - clamp01(coefficientOfVariation(values))
	confidenceSpread := 1 - clamp01(coefficientOfVariation(confidences))
	return clamp01(valueSpread*0.6 + confidenceSpread*0.4)
}

// efficiency blends throughput against target (0.4), actual versus
// expected duration (0.4), and an intervention penalty (0.2, at twice
// the intervention rate, floored at zero), all over the recent
// window. Signals without supporting data drop out
// and the remaining weights renormalize, so an agent is never
// penalized for context its observers did not report.
func (c *componentCalculator) efficiency(metrics []AgentMetric, now time.Time) float64 {
	cutoff := now.Add(-c.cfg.RecentWindow)
	tasks := make(map[string]bool)
	var durationRatios []float64
	recent, intervened := 0, 0
	for _, m := range metrics {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		recent++
		if m.Context.Intervened {
			intervened++
		}
		if m.Context.TaskID != "" {
			tasks[m.Context.TaskID] = true
		}
		if m.Context.DurationMs > 0 {
			expected := c.expectedDuration(m.Context.Complexity)
			actual := time.Duration(m.Context.DurationMs) * time.Millisecond
			durationRatios = append(durationRatios, math.Min(1, expected.Seconds()/actual.Seconds()))
		}
	}
	if recent == 0 {
		return c.cfg.NeutralScore
	}

	var weightedSum, weightTotal float64
	if len(tasks) > 0 {
		tasksPerHour := float64(len(tasks)) / c.cfg.RecentWindow.Hours()
		weightedSum += clamp01(tasksPerHour/c.cfg.TargetTasksPerHour) * 0.4
		weightTotal += 0.4
	}
	if len(durationRatios) > 0 {
		weightedSum += mean(durationRatios) * 0.4
		weightTotal += 0.4
	}
	// Interventions are penalized at double their rate so an agent
	// needing help on half its work scores zero on this signal.
	interventionRate := float64(intervened) / float64(recent)
	weightedSum += math.Max(0, 1-2*interventionRate) * 0.2
	weightTotal += 0.2

	return clamp01(weightedSum / weightTotal)
}

// adaptability is the mean per-task-type accuracy across task types
// with at least two samples, plus a diversity bonus of 0.02 per
// distinct task type capped at 0.1. Agents with fewer than
// MinAdaptabilityTasks recent tasks get the sparse default.
func (c *componentCalculator) adaptability(metrics []AgentMetric, now time.Time) float64 {
	cutoff := now.Add(-c.cfg.RecentWindow)
	byType := make(map[string][]float64)
	recentTasks := make(map[string]bool)
	for _, m := range metrics {
		if m.Type != MetricAccuracy || m.Timestamp.Before(cutoff) {
			continue
		}
		if m.Context.TaskID != "" {
			recentTasks[m.Context.TaskID] = true
		}
		if m.Context.TaskType != "" {
			byType[m.Context.TaskType] = append(byType[m.Context.TaskType], m.Value)
		}
	}
	if len(recentTasks) < c.cfg.MinAdaptabilityTasks {
		return c.cfg.SparseAdaptabilityScore
	}

	var typeMeans []float64
	for _, vals := range byType {
		if len(vals) >= 2 {
			typeMeans = append(typeMeans, mean(vals))
		}
	}
	if len(typeMeans) == 0 {
		return c.cfg.SparseAdaptabilityScore
	}
	bonus := math.Min(0.1, float64(len(byType))*0.02)
	return clamp01(mean(typeMeans) + bonus)
}

func (c *componentCalculator) expectedDuration(complexity string) time.Duration {
	if d, ok := c.cfg.ExpectedDurations[complexity]; ok {
		return d
	}
	return c.cfg.ExpectedDurations["medium"]
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func variance(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	var sum float64
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(vals))
}

// coefficientOfVariation is stddev/mean; zero-mean series report
// maximal spread.
func coefficientOfVariation(vals []float64) float64 {
	m := mean(vals)
	if m == 0 {
		return 1
	}
	return math.Sqrt(variance(vals)) / m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
