// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exposes Prometheus metrics for pipeline
// executions, checkpoint outcomes, scoring, and rollbacks.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentinel"

// Sink holds the pre-registered metric families.
//
// Thread Safety: Safe for concurrent use after creation.
type Sink struct {
	registry *prometheus.Registry

	// PipelineExecutionsTotal counts pipeline executions by terminal
	// status.
	PipelineExecutionsTotal *prometheus.CounterVec

	// PipelineDuration records pipeline execution duration in seconds.
	PipelineDuration prometheus.Histogram

	// CheckpointsTotal counts checkpoint outcomes by status.
	CheckpointsTotal *prometheus.CounterVec

	// CheckpointDuration records checkpoint duration in seconds.
	CheckpointDuration prometheus.Histogram

	// CheckpointScore records checkpoint mean validator scores.
	CheckpointScore prometheus.Histogram

	// AgentScore tracks the latest composite trust score per agent.
	AgentScore *prometheus.GaugeVec

	// MetricsIngestedTotal counts scoring observations by metric type.
	MetricsIngestedTotal *prometheus.CounterVec

	// SnapshotsCreatedTotal counts sealed snapshots.
	SnapshotsCreatedTotal prometheus.Counter

	// RollbacksTotal counts rollback attempts by mode and status.
	RollbacksTotal *prometheus.CounterVec

	// RollbackDuration records rollback duration in seconds.
	RollbackDuration prometheus.Histogram
}

// NewSink registers all metric families on a fresh registry.
func NewSink() *Sink {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Sink{
		registry: reg,
		PipelineExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_executions_total",
			Help:      "Pipeline executions by terminal status.",
		}, []string{"status"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline execution duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		CheckpointsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoint outcomes by status.",
		}, []string{"status"}),
		CheckpointDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Checkpoint duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		CheckpointScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_score",
			Help:      "Mean validator score per checkpoint.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		AgentScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_trust_score",
			Help:      "Latest composite trust score per agent.",
		}, []string{"agent_id"}),
		MetricsIngestedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_metrics_ingested_total",
			Help:      "Scoring observations ingested by metric type.",
		}, []string{"type"}),
		SnapshotsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_created_total",
			Help:      "Sealed snapshots created.",
		}),
		RollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Rollback attempts by mode and terminal status.",
		}, []string{"mode", "status"}),
		RollbackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollback_duration_seconds",
			Help:      "Rollback duration in seconds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

// Registry exposes the underlying registry for custom collectors.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

// Handler returns the scrape endpoint handler.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
