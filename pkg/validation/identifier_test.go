// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "agent-1", false},
		{"single char", "a", false},
		{"uuid", "9b2f6b1e-3c4d-4a5e-8f6a-7b8c9d0e1f2a", false},
		{"dotted", "verifier.primary", false},
		{"underscored", "task_42", false},
		{"max length", strings.Repeat("a", 64), false},
		{"all digits", "1234567890", false},

		// Invalid identifiers - injection attempts
		{"empty", "", true},
		{"path traversal", "../../etc/passwd", true},
		{"key separator", "snapshot/../meta", true},
		{"newline injection", "agent\nadmin", true},
		{"null byte", "agent\x00", true},
		{"too long", strings.Repeat("a", 65), true},
		{"special chars", "agent@#$", true},
		{"spaces", "agent 1", true},
		{"starts with dot", ".hidden", true},
		{"starts with hyphen", "-flag", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIDs(t *testing.T) {
	if err := ValidateIDs([]string{"agent-1", "agent-2"}); err != nil {
		t.Errorf("Expected valid list, got %v", err)
	}

	err := ValidateIDs([]string{"agent-1", "../bad", "also bad"})
	if err == nil {
		t.Fatal("Expected error for invalid list")
	}
	if !strings.Contains(err.Error(), "../bad") {
		t.Errorf("Error should name the invalid identifier: %v", err)
	}
}

func TestSanitizeID(t *testing.T) {
	got, err := SanitizeID("  agent-1  ")
	if err != nil {
		t.Fatalf("SanitizeID failed: %v", err)
	}
	if got != "agent-1" {
		t.Errorf("Expected trimmed id, got %q", got)
	}

	if _, err := SanitizeID("not valid!"); err == nil {
		t.Error("Expected error for invalid id")
	}
}
