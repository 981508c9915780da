// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestParseMetadata verifies key=value flag parsing
func TestParseMetadata(t *testing.T) {
	meta, err := parseMetadata([]string{"trigger=manual", "operator=jin"})
	if err != nil {
		t.Fatalf("parseMetadata failed: %v", err)
	}
	if meta["trigger"] != "manual" || meta["operator"] != "jin" {
		t.Errorf("Unexpected metadata: %v", meta)
	}

	if _, err := parseMetadata([]string{"no-separator"}); err == nil {
		t.Error("Expected error for pair without '='")
	}
	if _, err := parseMetadata([]string{"=value"}); err == nil {
		t.Error("Expected error for empty key")
	}

	meta, err = parseMetadata(nil)
	if err != nil || meta != nil {
		t.Errorf("Expected nil map for no pairs, got %v, %v", meta, err)
	}
}

// TestLoadClaims verifies optional claim file loading
func TestLoadClaims(t *testing.T) {
	claims, err := loadClaims("")
	if err != nil || claims != nil {
		t.Errorf("Empty path should yield nil claims, got %v, %v", claims, err)
	}

	path := filepath.Join(t.TempDir(), "claims.json")
	payload := `[{"id":"c1","agent_id":"agent-1","statement":"tests pass","confidence":0.9}]`
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	claims, err = loadClaims(path)
	if err != nil {
		t.Fatalf("loadClaims failed: %v", err)
	}
	if len(claims) != 1 || claims[0].AgentID != "agent-1" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

// TestLoadContext verifies YAML context loading including nested maps
func TestLoadContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.yaml")
	payload := "environment: staging\nbuild:\n  passed: true\n"
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	execCtx, err := loadContext(path)
	if err != nil {
		t.Fatalf("loadContext failed: %v", err)
	}
	if execCtx["environment"] != "staging" {
		t.Errorf("Expected environment=staging, got %v", execCtx["environment"])
	}
	nested, ok := execCtx["build"].(map[string]any)
	if !ok || nested["passed"] != true {
		t.Errorf("Expected nested build map, got %v", execCtx["build"])
	}
}

// testApp builds an app whose data directory lives under t.TempDir so
// persisted history never lands in the working tree.
func testApp(t *testing.T) *app {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	payload := "data_dir: " + filepath.Join(t.TempDir(), "data") + "\nlogging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}
	a, err := newApp(cfgPath)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

// TestNewAppDefaults verifies the full service graph wires up with an
// in-memory snapshot store.
func TestNewAppDefaults(t *testing.T) {
	a := testApp(t)

	if a.scorer == nil || a.rollback == nil || a.store == nil {
		t.Fatal("Expected all engines to be wired")
	}

	// The in-memory store round-trips a snapshot end to end.
	a.controller.SetMemoryValue("plan", "value")
	snap, err := a.rollback.CreateSnapshot(t.Context(), map[string]string{"trigger": "test"})
	if err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}
	if snap.Checksum == "" {
		t.Error("Expected sealed snapshot")
	}
}

// TestLoadMetricsIngestion verifies metrics files flow into the
// scoring engine.
func TestLoadMetricsIngestion(t *testing.T) {
	a := testApp(t)

	path := filepath.Join(t.TempDir(), "metrics.json")
	payload := `[
		{"agent_id":"agent-1","type":"accuracy","value":0.9,"confidence":0.8,
		 "timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `",
		 "validation":{"is_valid":true,"score":0.9}}
	]`
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	count, err := loadMetrics(a, path)
	if err != nil {
		t.Fatalf("loadMetrics failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 metric ingested, got %d", count)
	}
	if _, err := a.scorer.GetAgentScore("agent-1"); err != nil {
		t.Errorf("Expected agent-1 to be scored: %v", err)
	}
}
