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
	"errors"
	"fmt"
)

var (
	// ErrUnknownAgent is returned when no metrics exist for an agent.
	ErrUnknownAgent = errors.New("scoring: unknown agent")

	// ErrInvalidConfig is returned when a ScoringConfig fails validation.
	ErrInvalidConfig = errors.New("scoring: invalid config")

	// ErrInsufficientData is returned when an operation needs more
	// samples than the history holds.
	ErrInsufficientData = errors.New("scoring: insufficient data")
)

// MetricError reports a rejected metric observation.
type MetricError struct {
	AgentID string
	Field   string
	Reason  string
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("scoring: invalid metric for agent %q: %s: %s", e.AgentID, e.Field, e.Reason)
}

// ClaimError reports a rejected claim.
type ClaimError struct {
	ClaimID string
	Reason  string
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("scoring: invalid claim %q: %s", e.ClaimID, e.Reason)
}
