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
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/sentinel/cmd/sentinel/config"
	"github.com/AleutianAI/sentinel/pkg/logging"
	"github.com/AleutianAI/sentinel/services/verifier/events"
	"github.com/AleutianAI/sentinel/services/verifier/rollback"
	"github.com/AleutianAI/sentinel/services/verifier/scoring"
	"github.com/AleutianAI/sentinel/services/verifier/snapshot"
	badgerstore "github.com/AleutianAI/sentinel/services/verifier/storage/badger"
	"github.com/AleutianAI/sentinel/services/verifier/telemetry"
)

// app bundles the wired verification services behind one lifecycle.
//
// # Description
//
// Every subcommand builds an app from the loaded config, uses the
// engines it needs, and closes it on the way out. The snapshot store
// is BadgerDB when storage.path is configured and in-memory
// otherwise, so read-only commands work without touching disk.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	emitter    *events.Emitter
	sink       *telemetry.Sink
	scorer     *scoring.Engine
	store      snapshot.Store
	controller *rollback.MemoryController
	rollback   *rollback.Engine
}

// newApp loads configuration and wires the service graph.
func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "sentinel",
		JSON:    cfg.Logging.JSON,
	})

	emitter := events.NewEmitter()
	sink := telemetry.NewSink()
	sink.Attach(emitter)

	scorer, err := scoring.NewEngine(cfg.ScoringConfig(), logger.Slog())
	if err != nil {
		logger.Close()
		return nil, err
	}

	store, err := openSnapshotStore(cfg, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}

	controller := rollback.NewMemoryController()
	rbEngine, err := rollback.NewEngine(&rollback.Options{
		Logger:     logger.Slog(),
		Emitter:    emitter,
		Store:      store,
		Controller: controller,
		HistoryDir: cfg.DataDir,
	})
	if err != nil {
		store.Close()
		logger.Close()
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		emitter:    emitter,
		sink:       sink,
		scorer:     scorer,
		store:      store,
		controller: controller,
		rollback:   rbEngine,
	}
	a.serveMetrics()
	return a, nil
}

func openSnapshotStore(cfg *config.Config, logger *logging.Logger) (snapshot.Store, error) {
	if cfg.Storage.Path == "" {
		return snapshot.NewMemoryStore(0), nil
	}
	db, err := badgerstore.Open(badgerstore.Config{
		Path:       cfg.Storage.Path,
		SyncWrites: cfg.Storage.SyncWrites,
		Logger:     logger.Slog(),
	})
	if err != nil {
		return nil, err
	}
	return badgerstore.NewSnapshotStore(db, 0)
}

// serveMetrics exposes the Prometheus endpoint when metrics.listen is
// set. CLI invocations are short-lived, so this is mostly useful for
// long-running `sentinel run` pipelines watched by a scraper.
func (a *app) serveMetrics() {
	if a.cfg.Metrics.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.sink.Handler())
	go func() {
		if err := http.ListenAndServe(a.cfg.Metrics.Listen, mux); err != nil {
			a.logger.Warn("metrics listener stopped", "error", err)
		}
	}()
}

func (a *app) close() {
	a.rollback.Close()
	a.store.Close()
	a.logger.Close()
}

// mustApp builds the app or aborts the command.
func mustApp() *app {
	a, err := newApp(configPath)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	return a
}

// loadMetrics ingests a JSON array of agent metrics into the scoring
// engine and returns how many were accepted.
func loadMetrics(a *app, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading metrics file: %w", err)
	}
	var metrics []scoring.AgentMetric
	if err := json.Unmarshal(data, &metrics); err != nil {
		return 0, fmt.Errorf("parsing metrics file: %w", err)
	}
	for i, m := range metrics {
		if err := a.scorer.RecordMetric(m); err != nil {
			return i, fmt.Errorf("metric %d: %w", i, err)
		}
		a.sink.ObserveMetricIngested(string(m.Type))
	}
	return len(metrics), nil
}

// loadClaims reads an optional JSON array of claims. An empty path
// yields nil claims.
func loadClaims(path string) ([]scoring.Claim, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading claims file: %w", err)
	}
	var claims []scoring.Claim
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("parsing claims file: %w", err)
	}
	return claims, nil
}

// loadContext reads an optional YAML mapping used as the execution
// context for condition evaluation.
func loadContext(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}
	execCtx := map[string]any{}
	if err := yaml.Unmarshal(data, &execCtx); err != nil {
		return nil, fmt.Errorf("parsing context file: %w", err)
	}
	return execCtx, nil
}

// parseMetadata converts repeated key=value flags into a map.
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", p)
		}
		meta[key] = val
	}
	return meta, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Error encoding output: %v", err)
	}
}
