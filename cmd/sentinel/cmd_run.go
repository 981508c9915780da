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
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/cmd/sentinel/config"
	"github.com/AleutianAI/sentinel/services/verifier/pipeline"
	"github.com/AleutianAI/sentinel/services/verifier/rollback"
)

// runPipeline executes a pipeline definition end to end.
//
// # Description
//
// Loads the pipeline YAML, binds claim validators to the scoring
// engine and test validators to a shell test runner, snapshots the
// current state before execution, and runs the pipeline. Checkpoints
// flagged create_snapshot seal a fresh snapshot before running;
// rollback_on_fail restores the newest one in partial mode. The
// process exits non-zero when the pipeline does not complete.
func runPipeline(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	pf, err := config.LoadPipeline(args[0])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	pipelineCfg, err := pf.Build(a.scorer, shellTestRunner{})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	claims, err := loadClaims(claimsFile)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	execCtx, err := loadContext(contextFile)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pre-execution snapshot gives rollback_on_fail a restore target.
	snap, err := a.rollback.CreateSnapshot(ctx, map[string]string{
		"trigger":  "pipeline",
		"pipeline": pipelineCfg.ID,
	})
	if err != nil {
		log.Fatalf("Error creating pre-execution snapshot: %v", err)
	}
	a.logger.Info("pre-execution snapshot sealed", "snapshot_id", snap.ID)

	snapshots := &snapshotRollback{engine: a.rollback, snapshotID: snap.ID}
	executor := pipeline.NewExecutor(&pipeline.ExecutorOptions{
		Logger:            a.logger.Slog(),
		Emitter:           a.emitter,
		Rollback:          snapshots,
		Snapshots:         snapshots,
		Scorer:            a.scorer,
		DefaultMaxWorkers: a.cfg.MaxWorkers,
	})

	res, err := executor.Execute(ctx, pipelineCfg, execCtx, claims)
	if err != nil && res == nil {
		log.Fatalf("Error: %v", err)
	}

	if outputJSON {
		printJSON(res)
	} else {
		printResult(res)
	}
	if res.Status != pipeline.ExecutionCompleted {
		os.Exit(1)
	}
}

func printResult(res *pipeline.Result) {
	fmt.Printf("Pipeline %s finished: %s (score %.2f, %s)\n",
		res.PipelineID, res.Status, res.Score, res.Duration.Round(time.Millisecond))
	for _, cr := range res.CheckpointResults {
		line := fmt.Sprintf("  [%s] %s score=%.2f", cr.Status, cr.CheckpointID, cr.Score)
		if cr.Error != "" {
			line += " error=" + cr.Error
		}
		if cr.SkipReason != "" {
			line += " (" + cr.SkipReason + ")"
		}
		fmt.Println(line)
	}
	if res.TruthScore > 0 {
		fmt.Printf("Truth score: %.2f\n", res.TruthScore)
	}
	for _, w := range res.Warnings {
		fmt.Println("Warning: " + w)
	}
	if res.FailedCheckpoint != "" {
		fmt.Printf("Failed at checkpoint: %s\n", res.FailedCheckpoint)
	}
}

// snapshotRollback tracks the latest sealed snapshot for the running
// execution. Checkpoints flagged create_snapshot seal a fresh one
// through CreateSnapshot; rollback_on_fail restores whichever
// snapshot is newest.
type snapshotRollback struct {
	engine *rollback.Engine

	mu         sync.Mutex
	snapshotID string
}

func (r *snapshotRollback) CreateSnapshot(ctx context.Context, executionID, checkpointID string) error {
	snap, err := r.engine.CreateSnapshot(ctx, map[string]string{
		"trigger":    "checkpoint",
		"execution":  executionID,
		"checkpoint": checkpointID,
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshotID = snap.ID
	r.mu.Unlock()
	return nil
}

func (r *snapshotRollback) Rollback(ctx context.Context, executionID, checkpointID string) error {
	r.mu.Lock()
	id := r.snapshotID
	r.mu.Unlock()
	_, err := r.engine.Rollback(ctx, rollback.Request{
		SnapshotID: id,
		Mode:       rollback.ModePartial,
		Reason:     fmt.Sprintf("checkpoint %s failed in execution %s", checkpointID, executionID),
	})
	return err
}

// shellTestRunner runs a test suite reference as a shell command. A
// zero exit status counts as one passing test; anything else counts
// as one failure. Suites that need finer-grained reporting should
// aggregate their own pass rate and exit accordingly.
type shellTestRunner struct{}

func (shellTestRunner) RunTests(ctx context.Context, ref string) (int, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", ref)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, 1, nil
		}
		return 0, 0, err
	}
	return 1, 1, nil
}
