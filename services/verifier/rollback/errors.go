// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rollback

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSnapshots is returned when a rollback target cannot be
	// resolved because no sealed snapshots exist.
	ErrNoSnapshots = errors.New("rollback: no snapshots available")

	// ErrInvalidMode is returned for an unrecognized rollback mode.
	ErrInvalidMode = errors.New("rollback: invalid mode")

	// ErrNilController is returned when the engine is built without a
	// system controller.
	ErrNilController = errors.New("rollback: nil system controller")

	// ErrNilStore is returned when the engine is built without a
	// snapshot store.
	ErrNilStore = errors.New("rollback: nil snapshot store")
)

// SafetyError aborts a rollback on fatal safety check failures.
type SafetyError struct {
	SnapshotID string
	Checks     []SafetyCheck
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("rollback: %d fatal safety check(s) failed for snapshot %s", len(e.Checks), e.SnapshotID)
}

// SectionError reports a failed restore section.
type SectionError struct {
	Section Section
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("rollback: section %s: %v", e.Section, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }
