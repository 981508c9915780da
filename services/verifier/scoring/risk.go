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
)

// Factor severities. A component under the high threshold starts at
// severityHigh and grows with the shortfall; under the medium
// threshold it contributes severityMedium flat.
const (
	severityHigh      = 0.8
	severityMedium    = 0.5
	severityErrorRate = 0.7
)

// Risk level cutoffs over the maximum factor severity.
const (
	criticalSeverity = 0.8
	highSeverity     = 0.6
	mediumSeverity   = 0.3
)

// assessRisk derives the discrete risk picture from component scores
// and the recent error count. The level tracks the worst factor.
func assessRisk(components ComponentScores, recentErrors int, cfg *ScoringConfig) RiskAssessment {
	var factors []RiskFactor

	for _, c := range []struct {
		name  string
		score float64
	}{
		{"Low Accuracy", components.Accuracy},
		{"Low Reliability", components.Reliability},
		{"Low Consistency", components.Consistency},
		{"Low Efficiency", components.Efficiency},
		{"Low Adaptability", components.Adaptability},
	} {
		if f, ok := componentFactor(c.name, c.score, cfg); ok {
			factors = append(factors, f)
		}
	}

	if recentErrors > cfg.MaxRecentErrors {
		factors = append(factors, RiskFactor{
			Name:        "High Error Rate",
			Severity:    severityErrorRate,
			Description: fmt.Sprintf("%d errors in the last %s (limit %d)", recentErrors, cfg.RecentWindow, cfg.MaxRecentErrors),
		})
	}

	return RiskAssessment{Level: levelFromFactors(factors), Factors: factors}
}

func componentFactor(name string, score float64, cfg *ScoringConfig) (RiskFactor, bool) {
	switch {
	case score < cfg.Risk.High:
		sev := math.Min(1, severityHigh+(cfg.Risk.High-score))
		return RiskFactor{
			Name:        name,
			Severity:    sev,
			Description: fmt.Sprintf("score %.2f below high-risk threshold %.2f", score, cfg.Risk.High),
		}, true
	case score < cfg.Risk.Medium:
		return RiskFactor{
			Name:        name,
			Severity:    severityMedium,
			Description: fmt.Sprintf("score %.2f below medium-risk threshold %.2f", score, cfg.Risk.Medium),
		}, true
	default:
		return RiskFactor{}, false
	}
}

func levelFromFactors(factors []RiskFactor) RiskLevel {
	var worst float64
	for _, f := range factors {
		if f.Severity > worst {
			worst = f.Severity
		}
	}
	switch {
	case worst >= criticalSeverity:
		return RiskCritical
	case worst >= highSeverity:
		return RiskHigh
	case worst >= mediumSeverity:
		return RiskMedium
	default:
		return RiskLow
	}
}
