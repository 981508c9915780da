// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AleutianAI/sentinel/services/verifier/events"
	"github.com/AleutianAI/sentinel/services/verifier/pipeline"
	"github.com/AleutianAI/sentinel/services/verifier/rollback"
)

func TestSinkAttach(t *testing.T) {
	sink := NewSink()
	emitter := events.NewEmitter()
	subs := sink.Attach(emitter)
	if len(subs) != 4 {
		t.Fatalf("Attach() registered %d subscriptions, want 4", len(subs))
	}

	emitter.Emit(events.TypeCheckpointCompleted, "exec-1", pipeline.CheckpointResult{
		CheckpointID: "A",
		Status:       pipeline.StatusPassed,
		Score:        0.9,
		Duration:     50 * time.Millisecond,
	})
	emitter.Emit(events.TypePipelineCompleted, "exec-1", &pipeline.Result{
		ExecutionID: "exec-1",
		Status:      pipeline.ExecutionCompleted,
		Duration:    time.Second,
	})
	emitter.Emit(events.TypeSnapshotCreated, "snap-1", "snap-1")
	emitter.Emit(events.TypeRollbackCompleted, "rb-1", &rollback.Result{
		ID:       "rb-1",
		Mode:     rollback.ModePartial,
		Status:   rollback.StatusCompleted,
		Duration: 2 * time.Second,
	})

	if got := testutil.ToFloat64(sink.CheckpointsTotal.WithLabelValues("passed")); got != 1 {
		t.Errorf("checkpoints_total{status=passed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.PipelineExecutionsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("pipeline_executions_total{status=completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.SnapshotsCreatedTotal); got != 1 {
		t.Errorf("snapshots_created_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.RollbacksTotal.WithLabelValues("partial", "completed")); got != 1 {
		t.Errorf("rollbacks_total{mode=partial,status=completed} = %v, want 1", got)
	}
}

func TestSinkAgentScoreGauge(t *testing.T) {
	sink := NewSink()
	sink.ObserveAgentScore("agent-1", 0.87)
	if got := testutil.ToFloat64(sink.AgentScore.WithLabelValues("agent-1")); got != 0.87 {
		t.Errorf("agent_trust_score{agent_id=agent-1} = %v, want 0.87", got)
	}

	sink.ObserveMetricIngested("accuracy")
	sink.ObserveMetricIngested("accuracy")
	if got := testutil.ToFloat64(sink.MetricsIngestedTotal.WithLabelValues("accuracy")); got != 2 {
		t.Errorf("scoring_metrics_ingested_total{type=accuracy} = %v, want 2", got)
	}
}

func TestSinkHandler(t *testing.T) {
	sink := NewSink()
	if sink.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
	if sink.Registry() == nil {
		t.Fatal("Registry() returned nil")
	}
}
