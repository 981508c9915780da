// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/sentinel/services/verifier/pipeline"
)

// ValidatorSpec declares a validator inside a pipeline file.
type ValidatorSpec struct {
	// Type selects the validator: claim, evidence, test, or context.
	Type string `yaml:"type" validate:"required,oneof=claim evidence test context"`

	// Name overrides the validator's default name.
	Name string `yaml:"name"`

	// Threshold is the claim composite floor (claim validators).
	Threshold float64 `yaml:"threshold"`

	// MinPassRate is the test pass-rate floor (test validators).
	MinPassRate float64 `yaml:"min_pass_rate"`

	// MinSuccessRate is the substantiated-claim floor (evidence
	// validators).
	MinSuccessRate float64 `yaml:"min_success_rate"`

	// ContextKey locates the test suite reference (test validators).
	ContextKey string `yaml:"context_key"`

	// Conditions are the checks of a context validator.
	Conditions []pipeline.Condition `yaml:"conditions"`

	// Optional downgrades the validator's errors to a failed result
	// instead of erroring the whole checkpoint.
	Optional bool `yaml:"optional"`
}

// CheckpointSpec declares one checkpoint inside a pipeline file.
type CheckpointSpec struct {
	ID             string               `yaml:"id"`
	Name           string               `yaml:"name"`
	DependsOn      []string             `yaml:"depends_on"`
	Required       bool                 `yaml:"required"`
	Conditions     []pipeline.Condition `yaml:"conditions"`
	Validators     []ValidatorSpec      `yaml:"validators"`
	MinScore       float64              `yaml:"min_score"`
	Timeout        string               `yaml:"timeout"`
	RollbackOnFail bool                 `yaml:"rollback_on_fail"`
	CreateSnapshot bool                 `yaml:"create_snapshot"`
}

// PipelineFile is the on-disk shape of a pipeline definition.
type PipelineFile struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Policy      pipeline.Policy  `yaml:"policy"`
	MaxWorkers  int              `yaml:"max_workers"`
	Checkpoints []CheckpointSpec `yaml:"checkpoints"`
}

// LoadPipeline reads a pipeline definition file.
func LoadPipeline(path string) (*PipelineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading pipeline %s: %w", path, err)
	}
	var pf PipelineFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("config: parsing pipeline %s: %w", path, err)
	}
	return &pf, nil
}

// Build materializes the declaration into an executable pipeline,
// binding validator specs to the given scorer and test runner. The
// result is validated structurally before being returned.
func (pf *PipelineFile) Build(scorer pipeline.TruthScorer, runner pipeline.TestRunner) (*pipeline.Config, error) {
	cfg := &pipeline.Config{
		ID:         pf.ID,
		Name:       pf.Name,
		Policy:     pf.Policy,
		MaxWorkers: pf.MaxWorkers,
	}
	for _, cs := range pf.Checkpoints {
		var timeout time.Duration
		if cs.Timeout != "" {
			var err error
			timeout, err = time.ParseDuration(cs.Timeout)
			if err != nil {
				return nil, fmt.Errorf("config: checkpoint %s: timeout: %w", cs.ID, err)
			}
		}
		cp := &pipeline.Checkpoint{
			ID:             cs.ID,
			Name:           cs.Name,
			DependsOn:      cs.DependsOn,
			Required:       cs.Required,
			Conditions:     cs.Conditions,
			MinScore:       cs.MinScore,
			Timeout:        timeout,
			RollbackOnFail: cs.RollbackOnFail,
			CreateSnapshot: cs.CreateSnapshot,
		}
		for _, vs := range cs.Validators {
			v, err := buildValidator(vs, scorer, runner)
			if err != nil {
				return nil, fmt.Errorf("config: checkpoint %s: %w", cs.ID, err)
			}
			cp.Validators = append(cp.Validators, v)
		}
		cfg.Checkpoints = append(cfg.Checkpoints, cp)
	}
	if err := pipeline.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildValidator(vs ValidatorSpec, scorer pipeline.TruthScorer, runner pipeline.TestRunner) (pipeline.Validator, error) {
	var v pipeline.Validator
	switch vs.Type {
	case "claim":
		if scorer == nil {
			return nil, fmt.Errorf("claim validator needs a scoring engine")
		}
		v = &pipeline.ClaimValidator{Scorer: scorer, Threshold: vs.Threshold}
	case "test":
		if runner == nil {
			return nil, fmt.Errorf("test validator needs a test runner")
		}
		v = &pipeline.TestValidator{Runner: runner, ContextKey: vs.ContextKey, MinPassRate: vs.MinPassRate}
	case "evidence":
		v = &pipeline.EvidenceValidator{MinSuccessRate: vs.MinSuccessRate}
	case "context":
		v = &pipeline.ContextValidator{ValidatorName: vs.Name, Conditions: vs.Conditions}
	default:
		return nil, fmt.Errorf("unknown validator type %q", vs.Type)
	}
	if vs.Optional {
		v = pipeline.Optional(v)
	}
	return v, nil
}
