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

// computeTrend runs ordinary least squares over one metric type's
// values against time. X is hours since the first sample, so the
// slope reads as value change per hour. Returns nil when fewer than
// cfg.TrendMinSamples observations of the type exist.
func computeTrend(metrics []AgentMetric, mt MetricType, cfg *ScoringConfig) *Trend {
	var xs, ys []float64
	var first time.Time
	for _, m := range metrics {
		if m.Type != mt {
			continue
		}
		if len(xs) == 0 {
			first = m.Timestamp
		}
		xs = append(xs, m.Timestamp.Sub(first).Hours())
		ys = append(ys, m.Value)
	}
	if len(ys) < cfg.TrendMinSamples {
		return nil
	}

	slope, r := linearRegression(xs, ys)

	direction := TrendStable
	if math.Abs(slope) >= cfg.StableSlopeEpsilon {
		if slope > 0 {
			direction = TrendImproving
		} else {
			direction = TrendDeclining
		}
	}
	return &Trend{
		MetricType:  mt,
		Direction:   direction,
		Slope:       slope,
		Confidence:  math.Abs(r),
		SampleCount: len(ys),
	}
}

// linearRegression returns the OLS slope and the Pearson correlation
// coefficient. A degenerate X (all samples at one instant) yields a
// zero slope and zero correlation.
func linearRegression(xs, ys []float64) (slope, r float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
		sumYY += ys[i] * ys[i]
	}
	denomX := n*sumXX - sumX*sumX
	if denomX == 0 {
		return 0, 0
	}
	slope = (n*sumXY - sumX*sumY) / denomX

	denomY := n*sumYY - sumY*sumY
	if denomY <= 0 {
		// Constant Y regresses to a flat line with full confidence.
		return slope, 1
	}
	r = (n*sumXY - sumX*sumY) / math.Sqrt(denomX*denomY)
	return slope, r
}
