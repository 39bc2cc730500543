// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evolve

import (
	"log/slog"
)

// Field names a metric a comparison can read. The set is closed: rules
// are data, never executable expressions, so they stay JSON-serializable
// and safe to load from disk.
type Field string

const (
	FieldTotalUses            Field = "total_uses"
	FieldSuccessRate          Field = "success_rate"
	FieldAverageConfidence    Field = "average_confidence"
	FieldAverageExecutionTime Field = "average_execution_time"
	FieldAverageRating        Field = "average_rating"
)

// Op is a comparison operator.
type Op string

const (
	OpGT Op = "gt"
	OpGE Op = "ge"
	OpLT Op = "lt"
	OpLE Op = "le"
	OpEQ Op = "eq"
)

// Comparison is one field-operator-value check.
type Comparison struct {
	Field Field   `json:"field"`
	Op    Op      `json:"op"`
	Value float64 `json:"value"`
}

// Condition is a conjunction of comparisons. An empty condition never
// holds: a rule must say what it wants.
type Condition struct {
	All []Comparison `json:"all"`
}

// Eval evaluates the condition against a pattern's metrics.
//
// Unknown fields or operators fail closed: the comparison is treated as
// false and a warning is logged, so a malformed persisted rule can never
// fire an action.
func (c Condition) Eval(m *EvolutionMetrics, logger *slog.Logger) bool {
	if len(c.All) == 0 {
		return false
	}
	for _, cmp := range c.All {
		value, ok := fieldValue(m, cmp.Field)
		if !ok {
			logger.Warn("evolution rule references unknown field",
				slog.String("field", string(cmp.Field)))
			return false
		}
		holds, ok := compare(value, cmp.Op, cmp.Value)
		if !ok {
			logger.Warn("evolution rule uses unknown operator",
				slog.String("op", string(cmp.Op)))
			return false
		}
		if !holds {
			return false
		}
	}
	return true
}

func fieldValue(m *EvolutionMetrics, field Field) (float64, bool) {
	switch field {
	case FieldTotalUses:
		return float64(m.TotalUses), true
	case FieldSuccessRate:
		return m.SuccessRate, true
	case FieldAverageConfidence:
		return m.AverageConfidence, true
	case FieldAverageExecutionTime:
		return m.AverageExecutionTime, true
	case FieldAverageRating:
		return m.AverageRating, true
	default:
		return 0, false
	}
}

func compare(value float64, op Op, target float64) (holds, known bool) {
	switch op {
	case OpGT:
		return value > target, true
	case OpGE:
		return value >= target, true
	case OpLT:
		return value < target, true
	case OpLE:
		return value <= target, true
	case OpEQ:
		return value == target, true
	default:
		return false, false
	}
}
