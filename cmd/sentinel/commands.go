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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath         string
	outputJSON         bool
	claimsFile         string
	contextFile        string
	rollbackMode       string
	rollbackReason     string
	rollbackSections   []string
	rollbackExclude    []string
	rollbackSkipBackup bool
	rollbackSkipVerify bool
	stateFile          string
	snapshotMeta       []string
	topLimit           int
	historyLimit       int

	rootCmd = &cobra.Command{
		Use:   "sentinel",
		Short: "A cli to verify agent work through checkpoints, truth scores, and rollbacks",
		Long: `Sentinel runs verification pipelines over agent output, maintains
				per-agent truth scores, and can snapshot and restore system
				state when verification fails.`,
	}

	// --- Pipeline Execution ---
	runCmd = &cobra.Command{
		Use:   "run [pipeline.yaml]",
		Short: "Execute a verification pipeline defined in a YAML file",
		Args:  cobra.ExactArgs(1),
		Run:   runPipeline, // Defined in cmd_run.go
	}

	// --- Truth Scoring ---
	scoreCmd = &cobra.Command{
		Use:   "score",
		Short: "Inspect and update agent truth scores",
	}
	scoreIngestCmd = &cobra.Command{
		Use:   "ingest [metrics.json]",
		Short: "Ingest a JSON file of agent metrics into the scoring engine",
		Args:  cobra.ExactArgs(1),
		Run:   runScoreIngest, // Defined in cmd_score.go
	}
	scoreShowCmd = &cobra.Command{
		Use:   "show [metrics.json] [agent-id]",
		Short: "Show the full score breakdown for one agent",
		Args:  cobra.ExactArgs(2),
		Run:   runScoreShow, // Defined in cmd_score.go
	}
	scoreTopCmd = &cobra.Command{
		Use:   "top [metrics.json]",
		Short: "List the highest-scoring agents",
		Args:  cobra.ExactArgs(1),
		Run:   runScoreTop, // Defined in cmd_score.go
	}
	scoreRiskCmd = &cobra.Command{
		Use:   "risk [metrics.json] [level]",
		Short: "List agents at a given risk level (low, medium, high, critical)",
		Args:  cobra.ExactArgs(2),
		Run:   runScoreRisk, // Defined in cmd_score.go
	}

	// --- Snapshots / Rollback ---
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Manage system state snapshots",
	}
	snapshotCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Capture and seal a snapshot of the current system state",
		Run:   runSnapshotCreate, // Defined in cmd_snapshot.go
	}
	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Run:   runSnapshotList, // Defined in cmd_snapshot.go
	}

	rollbackCmd = &cobra.Command{
		Use:   "rollback [snapshot-id]",
		Short: "Restore system state from a snapshot (latest if no ID given)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runRollback, // Defined in cmd_snapshot.go
	}
	rollbackHistoryCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent rollback attempts",
		Run:   runRollbackHistory, // Defined in cmd_snapshot.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the sentinel config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"Emit results as JSON for scripting")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&claimsFile, "claims", "",
		"JSON file of agent claims evaluated by claim validators")
	runCmd.Flags().StringVar(&contextFile, "context", "",
		"YAML file providing the execution context for condition checks")

	rootCmd.AddCommand(scoreCmd)
	scoreCmd.AddCommand(scoreIngestCmd)
	scoreCmd.AddCommand(scoreShowCmd)
	scoreCmd.AddCommand(scoreTopCmd)
	scoreCmd.AddCommand(scoreRiskCmd)
	scoreTopCmd.Flags().IntVar(&topLimit, "limit", 10, "Maximum number of agents to list")

	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCreateCmd.Flags().StringArrayVar(&snapshotMeta, "meta", nil,
		"Snapshot metadata as key=value pairs (repeatable)")
	snapshotCreateCmd.Flags().StringVar(&stateFile, "state", "",
		"YAML file seeding the in-memory working state before capture")

	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.AddCommand(rollbackHistoryCmd)
	rollbackCmd.Flags().StringVar(&rollbackMode, "mode", "strict",
		"Rollback mode: strict, partial, or simulation")
	rollbackCmd.Flags().StringVar(&rollbackReason, "reason", "",
		"Operator-supplied reason recorded with the attempt")
	rollbackCmd.Flags().StringVar(&stateFile, "state", "",
		"YAML file seeding the in-memory working state before restore")
	rollbackCmd.Flags().StringSliceVar(&rollbackSections, "sections", nil,
		"Restore only these sections (database, filesystem, memory, system, tasks, agents)")
	rollbackCmd.Flags().StringSliceVar(&rollbackExclude, "exclude", nil,
		"Sections to leave untouched during the restore")
	rollbackCmd.Flags().BoolVar(&rollbackSkipBackup, "skip-backup", false,
		"Skip the pre-restore backup snapshot (disables emergency recovery)")
	rollbackCmd.Flags().BoolVar(&rollbackSkipVerify, "skip-verify", false,
		"Skip the post-restore agent liveness verification")
	rollbackHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Maximum number of history records to show")
}
