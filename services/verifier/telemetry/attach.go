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
	"github.com/AleutianAI/sentinel/services/verifier/events"
	"github.com/AleutianAI/sentinel/services/verifier/pipeline"
	"github.com/AleutianAI/sentinel/services/verifier/rollback"
)

// Attach subscribes the sink to the emitter so pipeline, checkpoint,
// snapshot, and rollback events land in the metric families without
// the engines knowing about Prometheus. Returns the subscription IDs
// for later Unsubscribe.
func (s *Sink) Attach(emitter *events.Emitter) []string {
	var subs []string

	subs = append(subs, emitter.Subscribe(func(ev *events.Event) {
		res, ok := ev.Data.(pipeline.CheckpointResult)
		if !ok {
			return
		}
		s.CheckpointsTotal.WithLabelValues(string(res.Status)).Inc()
		s.CheckpointDuration.Observe(res.Duration.Seconds())
		if res.Status != pipeline.StatusSkipped {
			s.CheckpointScore.Observe(res.Score)
		}
	}, events.TypeCheckpointCompleted))

	pipelineHandler := func(ev *events.Event) {
		res, ok := ev.Data.(*pipeline.Result)
		if !ok {
			return
		}
		s.PipelineExecutionsTotal.WithLabelValues(string(res.Status)).Inc()
		s.PipelineDuration.Observe(res.Duration.Seconds())
	}
	subs = append(subs, emitter.Subscribe(pipelineHandler,
		events.TypePipelineCompleted,
		events.TypePipelineError,
		events.TypePipelineCancelled))

	subs = append(subs, emitter.Subscribe(func(*events.Event) {
		s.SnapshotsCreatedTotal.Inc()
	}, events.TypeSnapshotCreated))

	subs = append(subs, emitter.Subscribe(func(ev *events.Event) {
		res, ok := ev.Data.(*rollback.Result)
		if !ok {
			return
		}
		s.RollbacksTotal.WithLabelValues(string(res.Mode), string(res.Status)).Inc()
		s.RollbackDuration.Observe(res.Duration.Seconds())
	}, events.TypeRollbackCompleted))

	return subs
}

// ObserveAgentScore records the latest composite score for an agent.
func (s *Sink) ObserveAgentScore(agentID string, score float64) {
	s.AgentScore.WithLabelValues(agentID).Set(score)
}

// ObserveMetricIngested counts one scoring observation.
func (s *Sink) ObserveMetricIngested(metricType string) {
	s.MetricsIngestedTotal.WithLabelValues(metricType).Inc()
}
