// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the sentinel service configuration and
// pipeline definition files.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/sentinel/services/verifier/scoring"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// JSON switches output to JSON lines.
	JSON bool `yaml:"json"`

	// Dir additionally writes logs under this directory when set.
	Dir string `yaml:"dir"`
}

// StorageConfig controls snapshot persistence.
type StorageConfig struct {
	// Path is the Badger database directory. Empty selects the
	// in-memory store.
	Path string `yaml:"path"`

	// SyncWrites forces fsync on every write.
	SyncWrites bool `yaml:"sync_writes"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the scrape endpoint address (e.g. ":9464"). Empty
	// disables the endpoint.
	Listen string `yaml:"listen"`
}

// Config is the top-level service configuration.
type Config struct {
	// DataDir holds rollback history and other local state.
	DataDir string `yaml:"data_dir"`

	// Logging controls log output.
	Logging LoggingConfig `yaml:"logging"`

	// Storage controls snapshot persistence.
	Storage StorageConfig `yaml:"storage"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Scoring overrides the default scoring configuration. Nil keeps
	// the defaults.
	Scoring *scoring.ScoringConfig `yaml:"scoring"`

	// MaxWorkers bounds parallel checkpoint dispatch when a pipeline
	// leaves it unset.
	MaxWorkers int `yaml:"max_workers" validate:"gte=0"`
}

// Default returns the zero-configuration defaults.
func Default() *Config {
	return &Config{
		DataDir:    "data",
		Logging:    LoggingConfig{Level: "info"},
		MaxWorkers: 4,
	}
}

// Load reads and validates a YAML config file. A missing path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}
	if cfg.Scoring != nil {
		if err := cfg.Scoring.Validate(); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return cfg, nil
}

// ScoringConfig returns the effective scoring configuration.
func (c *Config) ScoringConfig() *scoring.ScoringConfig {
	if c.Scoring != nil {
		return c.Scoring
	}
	return scoring.DefaultScoringConfig()
}
