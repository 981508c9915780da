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
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Evaluate resolves the condition against the execution context.
//
// Description:
//
//	Field is a dotted path into nested map[string]any values. A field
//	that does not resolve makes eq, ordering, in, and regex conditions
//	false, while ne and nin hold vacuously. Errors are reserved for
//	malformed conditions (bad regex, non-list in/nin value, ordering
//	against non-numeric operands).
func (c Condition) Evaluate(execCtx map[string]any) (bool, error) {
	val, found := resolvePath(execCtx, c.Field)

	switch c.Operator {
	case OpEq:
		return found && looseEqual(val, c.Value), nil
	case OpNe:
		return !found || !looseEqual(val, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		if !found {
			return false, nil
		}
		return c.compareOrdered(val)
	case OpIn, OpNin:
		list, err := toList(c.Value)
		if err != nil {
			return false, &ConditionError{Field: c.Field, Operator: c.Operator, Reason: err.Error()}
		}
		contains := false
		if found {
			for _, item := range list {
				if looseEqual(val, item) {
					contains = true
					break
				}
			}
		}
		if c.Operator == OpIn {
			return contains, nil
		}
		return !contains, nil
	case OpRegex:
		pattern, ok := c.Value.(string)
		if !ok {
			return false, &ConditionError{Field: c.Field, Operator: c.Operator, Reason: "pattern must be a string"}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, &ConditionError{Field: c.Field, Operator: c.Operator, Reason: "invalid pattern: " + err.Error()}
		}
		s, ok := val.(string)
		if !found || !ok {
			return false, nil
		}
		return re.MatchString(s), nil
	default:
		return false, &ConditionError{Field: c.Field, Operator: c.Operator, Reason: "unknown operator"}
	}
}

func (c Condition) compareOrdered(val any) (bool, error) {
	left, ok := toFloat(val)
	if !ok {
		return false, &ConditionError{Field: c.Field, Operator: c.Operator, Reason: fmt.Sprintf("field value %T is not numeric", val)}
	}
	right, ok := toFloat(c.Value)
	if !ok {
		return false, &ConditionError{Field: c.Field, Operator: c.Operator, Reason: fmt.Sprintf("comparison value %T is not numeric", c.Value)}
	}
	switch c.Operator {
	case OpGt:
		return left > right, nil
	case OpGte:
		return left >= right, nil
	case OpLt:
		return left < right, nil
	default:
		return left <= right, nil
	}
}

// resolvePath walks a dotted path through nested map[string]any.
func resolvePath(m map[string]any, path string) (any, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = m
	for _, part := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// looseEqual compares with numeric coercion so 3 equals 3.0
// regardless of how the context was populated.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toList(v any) ([]any, error) {
	switch list := v.(type) {
	case []any:
		return list, nil
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("value must be a list, got nil")
	default:
		return nil, fmt.Errorf("value must be a list, got %T", v)
	}
}
