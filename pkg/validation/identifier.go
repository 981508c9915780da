// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database keys, file paths, or log output. Using these validators prevents
// injection attacks (key collisions, command injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid agent, task, and snapshot identifiers.
// Allows: letters, digits, dots, underscores, hyphens.
// Max length: 64 characters (covers UUIDs and prefixed names).
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,63}$`)

// ValidateID validates an agent, task, or snapshot identifier before it
// is used as a database key or embedded in a file path.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters a-z, A-Z and digits 0-9
//   - Dots (.), underscores (_), and hyphens (-) after the first character
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateID(snapshotID); err != nil {
//	    return nil, fmt.Errorf("invalid snapshot id: %w", err)
//	}
//	// Safe to use as a store key
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier: %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", id)
	}

	return nil
}

// ValidateIDs validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeID normalizes and validates an identifier.
// Returns the trimmed identifier if valid, or an error if invalid.
//
// Use this on operator-supplied input before it reaches a store:
//
//	safeID, err := validation.SanitizeID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is trimmed and validated
func SanitizeID(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	if err := ValidateID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
