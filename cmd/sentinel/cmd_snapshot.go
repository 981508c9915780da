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
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/pkg/validation"
	"github.com/AleutianAI/sentinel/services/verifier/rollback"
)

func runSnapshotCreate(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	seedState(a)
	meta, err := parseMetadata(snapshotMeta)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	snap, err := a.rollback.CreateSnapshot(context.Background(), meta)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if outputJSON {
		printJSON(snap)
		return
	}
	fmt.Printf("Snapshot %s sealed at %s (checksum %s)\n",
		snap.ID, snap.Timestamp.Format(time.RFC3339), snap.Checksum[:12])
}

func runSnapshotList(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	snaps, err := a.store.List(context.Background())
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if outputJSON {
		printJSON(snaps)
		return
	}
	if len(snaps) == 0 {
		fmt.Println("No snapshots stored")
		return
	}
	for _, s := range snaps {
		fmt.Printf("%s  %s  agents=%d tasks=%d\n",
			s.ID, s.Timestamp.Format(time.RFC3339), len(s.AgentStates), len(s.TaskStates))
	}
}

func runRollback(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	seedState(a)
	var snapshotID string
	if len(args) == 1 {
		id, err := validation.SanitizeID(args[0])
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		snapshotID = id
	}

	res, err := a.rollback.Rollback(context.Background(), rollback.Request{
		SnapshotID:      snapshotID,
		Mode:            rollback.Mode(rollbackMode),
		Reason:          rollbackReason,
		Sections:        toSections(rollbackSections),
		ExcludeSections: toSections(rollbackExclude),
		SkipBackup:      rollbackSkipBackup,
		SkipVerify:      rollbackSkipVerify,
	})
	if res != nil {
		if outputJSON {
			printJSON(res)
		} else {
			printRollbackResult(res)
		}
	}
	if err != nil {
		log.Fatalf("Rollback failed: %v", err)
	}
}

func runRollbackHistory(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	records := a.rollback.History(historyLimit)
	if outputJSON {
		printJSON(records)
		return
	}
	if len(records) == 0 {
		fmt.Println("No rollback attempts recorded")
		return
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %-10s %-10s snapshot=%s",
			r.StartedAt.Format(time.RFC3339), r.Mode, r.Status, r.SnapshotID)
		if r.Reason != "" {
			line += " reason=" + r.Reason
		}
		fmt.Println(line)
	}
}

func printRollbackResult(res *rollback.Result) {
	fmt.Printf("Rollback %s: %s (mode %s, snapshot %s)\n",
		res.ID, res.Status, res.Mode, res.SnapshotID)
	if res.Safety != nil {
		for _, c := range res.Safety.Checks {
			fmt.Printf("  safety [%s] %s: %s\n", c.Severity, c.Code, c.Message)
		}
	}
	for _, s := range res.Sections {
		line := fmt.Sprintf("  section %-11s %s", s.Section, s.Status)
		if s.Error != "" {
			line += " error=" + s.Error
		}
		fmt.Println(line)
	}
	for _, check := range res.FailedChecks {
		fmt.Println("  verification failed: " + check)
	}
	if res.Status == rollback.StatusCompleted {
		fmt.Printf("Verified: %t\n", res.Verified)
	}
	if res.Error != "" {
		fmt.Println("Error:", res.Error)
	}
}

func toSections(names []string) []rollback.Section {
	if len(names) == 0 {
		return nil
	}
	sections := make([]rollback.Section, len(names))
	for i, n := range names {
		sections[i] = rollback.Section(n)
	}
	return sections
}

// seedState loads the optional --state YAML into the controller's
// memory section so snapshots and drift checks have real content.
func seedState(a *app) {
	if stateFile == "" {
		return
	}
	state, err := loadContext(stateFile)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	for k, v := range state {
		a.controller.SetMemoryValue(k, v)
	}
}
