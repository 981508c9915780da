// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/sentinel/pkg/validation"
	"github.com/AleutianAI/sentinel/services/verifier/history"
)

// shardCount spreads agent histories across independent locks.
const shardCount = 16

// Eager recomputation triggers. Metrics matching any of these refresh
// the cached score immediately instead of waiting for the next read.
const (
	eagerValueFloor      = 0.7
	eagerConfidenceFloor = 0.5
)

// errorRecord is one validation failure batch in the error history.
type errorRecord struct {
	Timestamp time.Time
	Errors    []string
}

// agentHistory is the per-agent bounded state. The embedded mutex
// guards everything in the struct; ring buffers are not self-locking.
type agentHistory struct {
	mu      sync.Mutex
	metrics *history.RingBuffer[AgentMetric]
	errors  *history.RingBuffer[errorRecord]

	// lastScore caches the most recent derivation; dirty marks it
	// stale after a metric lands without an eager trigger.
	lastScore *AgentScore
	dirty     bool
}

type engineShard struct {
	mu     sync.RWMutex
	agents map[string]*agentHistory
}

// Engine ingests agent metrics and serves trust scores.
type Engine struct {
	cfg    *ScoringConfig
	calc   *componentCalculator
	logger *slog.Logger
	shards [shardCount]*engineShard
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates the config and returns a ready engine.
//
// Inputs:
//   - cfg: scoring configuration; nil falls back to defaults.
//   - logger: structured logger; nil falls back to slog.Default().
//
// Outputs:
//   - *Engine on success.
//   - error wrapping ErrInvalidConfig when cfg fails validation.
func NewEngine(cfg *ScoringConfig, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultScoringConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:    cfg,
		calc:   newComponentCalculator(cfg),
		logger: logger,
		now:    time.Now,
	}
	for i := range e.shards {
		e.shards[i] = &engineShard{agents: make(map[string]*agentHistory)}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RecordMetric validates and ingests one observation. Histories are
// bounded: once an agent holds cfg.MaxMetrics metrics the oldest is
// evicted, and error records evict past cfg.MaxErrorRecords.
func (e *Engine) RecordMetric(m AgentMetric) error {
	if err := e.validateMetric(&m); err != nil {
		return err
	}
	h := e.historyFor(m.AgentID, true)

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, wasFull := h.metrics.Push(m); wasFull {
		e.logger.Debug("metric history full, oldest evicted", "agent_id", m.AgentID)
	}
	if !m.Validation.IsValid && len(m.Validation.Errors) > 0 {
		h.errors.Push(errorRecord{Timestamp: m.Timestamp, Errors: m.Validation.Errors})
	}

	if e.eagerTrigger(m) {
		h.lastScore = e.recomputeLocked(h, m.AgentID)
		h.dirty = false
		e.logger.Debug("eager score recompute",
			"agent_id", m.AgentID,
			"overall", h.lastScore.OverallScore,
			"risk", h.lastScore.Risk.Level)
	} else {
		h.dirty = true
	}
	return nil
}

// GetAgentScore returns the current derived score for an agent.
// Returns ErrUnknownAgent when no metrics have been recorded.
func (e *Engine) GetAgentScore(agentID string) (*AgentScore, error) {
	h := e.historyFor(agentID, false)
	if h == nil {
		return nil, ErrUnknownAgent
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return e.freshScoreLocked(h, agentID), nil
}

// GetTopPerformers returns up to limit agents ordered by descending
// overall score. Ties break on agent ID for a stable ordering.
func (e *Engine) GetTopPerformers(limit int) []*AgentScore {
	scores := e.allScores()
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].OverallScore != scores[j].OverallScore {
			return scores[i].OverallScore > scores[j].OverallScore
		}
		return scores[i].AgentID < scores[j].AgentID
	})
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}

// GetAgentsByRiskLevel returns all agents whose current risk level
// matches, ordered by agent ID.
func (e *Engine) GetAgentsByRiskLevel(level RiskLevel) []*AgentScore {
	var out []*AgentScore
	for _, s := range e.allScores() {
		if s.Risk.Level == level {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// ScoreClaim scores one claim against the claiming agent's track
// record: the agent's overall score (0.5), the claim's self-reported
// confidence (0.3), and evidence support (0.2). Unknown agents score
// against the neutral baseline.
func (e *Engine) ScoreClaim(ctx context.Context, claim Claim) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if claim.AgentID == "" {
		return 0, &ClaimError{ClaimID: claim.ID, Reason: "missing agent_id"}
	}
	if claim.Confidence < 0 || claim.Confidence > 1 {
		return 0, &ClaimError{ClaimID: claim.ID, Reason: "confidence outside [0,1]"}
	}

	track := e.cfg.NeutralScore
	if s, err := e.GetAgentScore(claim.AgentID); err == nil {
		track = s.OverallScore
	}
	support := float64(len(claim.Evidence)) * 0.25
	if support > 1 {
		support = 1
	}
	return clamp01(track*0.5 + claim.Confidence*0.3 + support*0.2), nil
}

// CompositeScore folds multiple claims into one confidence-weighted
// score. Zero-confidence claims contribute with a minimal weight so
// they cannot be laundered out of the composite.
func (e *Engine) CompositeScore(ctx context.Context, claims []Claim) (float64, error) {
	if len(claims) == 0 {
		return 0, ErrInsufficientData
	}
	var weightedSum, weightTotal float64
	for _, claim := range claims {
		s, err := e.ScoreClaim(ctx, claim)
		if err != nil {
			return 0, err
		}
		w := claim.Confidence
		if w < 0.05 {
			w = 0.05
		}
		weightedSum += s * w
		weightTotal += w
	}
	return clamp01(weightedSum / weightTotal), nil
}

// AgentIDs returns all agents with recorded metrics, ordered by ID.
func (e *Engine) AgentIDs() []string {
	var ids []string
	for _, sh := range e.shards {
		sh.mu.RLock()
		for id := range sh.agents {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) validateMetric(m *AgentMetric) error {
	if err := validation.ValidateID(m.AgentID); err != nil {
		return &MetricError{AgentID: m.AgentID, Field: "agent_id", Reason: err.Error()}
	}
	if !knownMetricTypes[m.Type] {
		return &MetricError{AgentID: m.AgentID, Field: "type", Reason: "unknown metric type " + string(m.Type)}
	}
	if m.Value < 0 || m.Value > 1 {
		return &MetricError{AgentID: m.AgentID, Field: "value", Reason: "outside [0,1]"}
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return &MetricError{AgentID: m.AgentID, Field: "confidence", Reason: "outside [0,1]"}
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = e.now()
	}
	return nil
}

func (e *Engine) eagerTrigger(m AgentMetric) bool {
	return m.Value < eagerValueFloor ||
		m.Confidence < eagerConfidenceFloor ||
		m.Validation.Critical
}

func (e *Engine) shardFor(agentID string) *engineShard {
	h := fnv.New32a()
	h.Write([]byte(agentID))
	return e.shards[h.Sum32()%shardCount]
}

// historyFor fetches the per-agent state, creating it when create is
// set. Returns nil for unknown agents when create is false.
func (e *Engine) historyFor(agentID string, create bool) *agentHistory {
	sh := e.shardFor(agentID)

	sh.mu.RLock()
	h := sh.agents[agentID]
	sh.mu.RUnlock()
	if h != nil || !create {
		return h
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if h = sh.agents[agentID]; h == nil {
		h = &agentHistory{
			metrics: history.NewRingBuffer[AgentMetric](e.cfg.MaxMetrics),
			errors:  history.NewRingBuffer[errorRecord](e.cfg.MaxErrorRecords),
		}
		sh.agents[agentID] = h
	}
	return h
}

// freshScoreLocked returns the cached score when still valid,
// recomputing otherwise. Caller holds h.mu.
func (e *Engine) freshScoreLocked(h *agentHistory, agentID string) *AgentScore {
	if h.lastScore == nil || h.dirty {
		h.lastScore = e.recomputeLocked(h, agentID)
		h.dirty = false
	}
	out := *h.lastScore
	return &out
}

// recomputeLocked derives the full score from history. Caller holds
// h.mu.
func (e *Engine) recomputeLocked(h *agentHistory, agentID string) *AgentScore {
	now := e.now()
	metrics := h.metrics.Slice()

	components := e.calc.compute(metrics, now)

	var trends []Trend
	for _, mt := range []MetricType{MetricAccuracy, MetricReliability, MetricConsistency, MetricEfficiency} {
		if t := computeTrend(metrics, mt, e.cfg); t != nil {
			trends = append(trends, *t)
		}
	}

	cutoff := now.Add(-e.cfg.RecentWindow)
	recentErrors := 0
	h.errors.ForEach(func(rec errorRecord) bool {
		if !rec.Timestamp.Before(cutoff) {
			recentErrors += len(rec.Errors)
		}
		return true
	})

	return &AgentScore{
		AgentID:      agentID,
		OverallScore: e.calc.composite(components),
		Components:   components,
		Trends:       trends,
		Risk:         assessRisk(components, recentErrors, e.cfg),
		ComputedAt:   now,
	}
}

func (e *Engine) allScores() []*AgentScore {
	var out []*AgentScore
	for _, id := range e.AgentIDs() {
		h := e.historyFor(id, false)
		if h == nil {
			continue
		}
		h.mu.Lock()
		out = append(out, e.freshScoreLocked(h, id))
		h.mu.Unlock()
	}
	return out
}
