// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
)

// FuncValidator adapts a plain function into a Validator.
type FuncValidator struct {
	ValidatorName string
	Fn            func(ctx context.Context, input ValidationInput) (ValidationResult, error)
}

func (v *FuncValidator) Name() string { return v.ValidatorName }

func (v *FuncValidator) Validate(ctx context.Context, input ValidationInput) (ValidationResult, error) {
	res, err := v.Fn(ctx, input)
	if res.ValidatorName == "" {
		res.ValidatorName = v.ValidatorName
	}
	return res, err
}

// Optional wraps a validator so its errors degrade into a failed
// result instead of erroring the whole checkpoint. The wrapped
// validator still counts against the checkpoint's pass and score
// calculation.
func Optional(v Validator) Validator {
	return &optionalValidator{inner: v}
}

type optionalValidator struct {
	inner Validator
}

func (v *optionalValidator) Name() string { return v.inner.Name() }

func (v *optionalValidator) Validate(ctx context.Context, input ValidationInput) (ValidationResult, error) {
	res, err := v.inner.Validate(ctx, input)
	if err != nil {
		return ValidationResult{
			ValidatorName: v.inner.Name(),
			Passed:        false,
			Message:       err.Error(),
		}, nil
	}
	return res, nil
}

// ClaimValidator scores the execution's claims against the truth
// engine and passes when the composite reaches Threshold (defaults to
// 0.8).
type ClaimValidator struct {
	Scorer    TruthScorer
	Threshold float64
}

func (v *ClaimValidator) Name() string { return "claim-composite" }

func (v *ClaimValidator) Validate(ctx context.Context, input ValidationInput) (ValidationResult, error) {
	if v.Scorer == nil {
		return ValidationResult{}, fmt.Errorf("claim validator: nil scorer")
	}
	if len(input.Claims) == 0 {
		return ValidationResult{
			ValidatorName: v.Name(),
			Passed:        false,
			Message:       "no claims to verify",
		}, nil
	}
	score, err := v.Scorer.CompositeScore(ctx, input.Claims)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("claim validator: %w", err)
	}
	floor := v.Threshold
	if floor == 0 {
		floor = 0.8
	}
	return ValidationResult{
		ValidatorName: v.Name(),
		Passed:        score >= floor,
		Score:         score,
		Message:       fmt.Sprintf("composite claim score %.3f (threshold %.3f)", score, floor),
	}, nil
}

// TestValidator runs a referenced test suite and scores by pass rate.
// The suite reference comes from the execution context under
// ContextKey (defaults to "test_suite").
type TestValidator struct {
	Runner     TestRunner
	ContextKey string

	// MinPassRate is the passing floor; zero means all tests must
	// pass.
	MinPassRate float64
}

func (v *TestValidator) Name() string { return "test-suite" }

func (v *TestValidator) Validate(ctx context.Context, input ValidationInput) (ValidationResult, error) {
	if v.Runner == nil {
		return ValidationResult{}, fmt.Errorf("test validator: nil runner")
	}
	key := v.ContextKey
	if key == "" {
		key = "test_suite"
	}
	refVal, found := resolvePath(input.Context, key)
	ref, ok := refVal.(string)
	if !found || !ok || ref == "" {
		return ValidationResult{
			ValidatorName: v.Name(),
			Passed:        false,
			Message:       fmt.Sprintf("no test suite reference at %q", key),
		}, nil
	}

	passed, total, err := v.Runner.RunTests(ctx, ref)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("test validator: %w", err)
	}
	if total == 0 {
		return ValidationResult{
			ValidatorName: v.Name(),
			Passed:        false,
			Message:       "test suite " + ref + " ran zero tests",
		}, nil
	}

	rate := float64(passed) / float64(total)
	floor := v.MinPassRate
	if floor == 0 {
		floor = 1
	}
	return ValidationResult{
		ValidatorName: v.Name(),
		Passed:        rate >= floor,
		Score:         rate,
		Message:       fmt.Sprintf("%d/%d tests passed in %s", passed, total, ref),
	}, nil
}

// EvidenceValidator checks each claim against its declared evidence
// and passes when the fraction of substantiated claims reaches
// MinSuccessRate (defaults to 0.8). A claim is substantiated when it
// carries at least one evidence item with a non-empty reference.
type EvidenceValidator struct {
	MinSuccessRate float64
}

func (v *EvidenceValidator) Name() string { return "claim-evidence" }

func (v *EvidenceValidator) Validate(_ context.Context, input ValidationInput) (ValidationResult, error) {
	if len(input.Claims) == 0 {
		return ValidationResult{
			ValidatorName: v.Name(),
			Passed:        false,
			Message:       "no claims to verify",
		}, nil
	}

	substantiated := 0
	for _, claim := range input.Claims {
		for _, ev := range claim.Evidence {
			if ev.Ref != "" {
				substantiated++
				break
			}
		}
	}

	rate := float64(substantiated) / float64(len(input.Claims))
	floor := v.MinSuccessRate
	if floor == 0 {
		floor = 0.8
	}
	return ValidationResult{
		ValidatorName: v.Name(),
		Passed:        rate >= floor,
		Score:         rate,
		Message:       fmt.Sprintf("%d/%d claims substantiated by evidence", substantiated, len(input.Claims)),
	}, nil
}

// ContextValidator passes when all of its conditions hold against the
// execution context. It lets condition checks participate as first
// class validators rather than only as checkpoint gates.
type ContextValidator struct {
	ValidatorName string
	Conditions    []Condition
}

func (v *ContextValidator) Name() string {
	if v.ValidatorName == "" {
		return "context"
	}
	return v.ValidatorName
}

func (v *ContextValidator) Validate(_ context.Context, input ValidationInput) (ValidationResult, error) {
	for _, cond := range v.Conditions {
		ok, err := cond.Evaluate(input.Context)
		if err != nil {
			return ValidationResult{}, err
		}
		if !ok {
			return ValidationResult{
				ValidatorName: v.Name(),
				Passed:        false,
				Message:       fmt.Sprintf("condition %s %s not met", cond.Field, cond.Operator),
			}, nil
		}
	}
	return ValidationResult{
		ValidatorName: v.Name(),
		Passed:        true,
		Score:         1,
		Message:       "all conditions met",
	}, nil
}
