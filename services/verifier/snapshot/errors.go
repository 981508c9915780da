// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"errors"
	"fmt"
)

// Sentinel errors for the snapshot package.
var (
	// ErrNilSnapshot is returned when a nil snapshot is provided.
	ErrNilSnapshot = errors.New("snapshot must not be nil")

	// ErrNotFound is returned when a snapshot id has no stored entry.
	ErrNotFound = errors.New("snapshot not found")

	// ErrNotSealed is returned when an unsealed snapshot is saved.
	ErrNotSealed = errors.New("snapshot has no checksum; call Seal first")

	// ErrChecksumMismatch is returned when a snapshot's stored checksum
	// does not match its recomputed checksum. A snapshot failing this
	// check must never be trusted as a rollback target.
	ErrChecksumMismatch = errors.New("snapshot integrity violation: checksum mismatch")

	// ErrIncomplete is returned when a snapshot is structurally
	// incomplete (missing id, timestamp, or metadata).
	ErrIncomplete = errors.New("snapshot is structurally incomplete")
)

// IntegrityError wraps an integrity failure with the snapshot id.
type IntegrityError struct {
	SnapshotID string
	Err        error
}

// Error returns the error message.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("snapshot %q: %v", e.SnapshotID, e.Err)
}

// Unwrap returns the underlying error.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// NewIntegrityError creates an IntegrityError.
func NewIntegrityError(snapshotID string, err error) *IntegrityError {
	return &IntegrityError{SnapshotID: snapshotID, Err: err}
}
