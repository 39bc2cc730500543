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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/patternforge/services/pattern_engine/store"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	return e
}

func recordN(t *testing.T, e *Engine, patternID string, n int, success bool, confidence float64) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, e.RecordUsage(ctx, UsageRecord{
			PatternID:  patternID,
			Success:    success,
			Confidence: confidence,
		}))
	}
}

func TestRecordUsage_RunningAverages(t *testing.T) {
	e := newTestEngine(t)

	recordN(t, e, "p1", 8, true, 0.8)
	recordN(t, e, "p1", 2, false, 0.4)

	m, ok := e.Metrics("p1")
	require.True(t, ok)
	assert.Equal(t, 10, m.TotalUses)
	assert.Equal(t, 8, m.Successes)
	assert.InDelta(t, 0.8, m.SuccessRate, 1e-9)
	assert.InDelta(t, 0.72, m.AverageConfidence, 1e-9)
	assert.Len(t, m.ImprovementTrend, 10)
}

func TestRecordUsage_TrendCapped(t *testing.T) {
	e := newTestEngine(t)
	recordN(t, e, "p1", 30, true, 0.5)

	m, ok := e.Metrics("p1")
	require.True(t, ok)
	assert.Len(t, m.ImprovementTrend, 20)
}

func TestRecordUsage_TrendHoldsConfidences(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, conf := range []float64{0.9, 0.8, 0.7} {
		require.NoError(t, e.RecordUsage(ctx, UsageRecord{
			PatternID:  "p1",
			Success:    true,
			Confidence: conf,
		}))
	}

	m, ok := e.Metrics("p1")
	require.True(t, ok)
	assert.Equal(t, []float64{0.9, 0.8, 0.7}, m.ImprovementTrend)
}

func TestSuggestImprovements_DecliningTrendSurvivesRebound(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// A rebound on the middle point must not hide the overall drop.
	for _, conf := range []float64{0.9, 0.5, 0.6} {
		require.NoError(t, e.RecordUsage(ctx, UsageRecord{
			PatternID:  "p1",
			Success:    true,
			Confidence: conf,
		}))
	}

	improvements, err := e.SuggestImprovements("p1")
	require.NoError(t, err)

	found := false
	for _, imp := range improvements {
		if imp.Type == "declining_trend" {
			found = true
			assert.Equal(t, PriorityMedium, imp.Priority)
		}
	}
	assert.True(t, found, "expected a declining_trend improvement")
}

func TestRecordUsage_FeedbackThemes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RecordUsage(ctx, UsageRecord{
		PatternID: "p1",
		Success:   true,
		Feedback:  "this was a false positive, way too broad",
	}))
	require.NoError(t, e.RecordUsage(ctx, UsageRecord{
		PatternID: "p1",
		Success:   true,
		Feedback:  "really helpful suggestion",
	}))

	m, ok := e.Metrics("p1")
	require.True(t, ok)
	assert.Equal(t, 1, m.FeedbackThemes["too_broad"])
	assert.Equal(t, 1, m.FeedbackThemes["helpful"])
}

func TestRecordUsage_HistoryCapped(t *testing.T) {
	e := newTestEngine(t, WithUsageHistoryLimit(5))
	recordN(t, e, "p1", 8, true, 0.5)

	export, err := e.Export("p1")
	require.NoError(t, err)
	assert.Len(t, export.Usage, 5)
}

func TestRecordUsage_RejectsEmptyPatternID(t *testing.T) {
	e := newTestEngine(t)
	err := e.RecordUsage(context.Background(), UsageRecord{})
	assert.Error(t, err)
}

func TestEvolve_UnknownPattern(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Evolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

func TestEvolve_NotEligibleBelowMinUses(t *testing.T) {
	e := newTestEngine(t)
	recordN(t, e, "p1", 9, true, 0.9)

	result, err := e.Evolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Empty(t, result.AppliedRules)
	assert.Equal(t, PatternData{}, result.Data)
}

func TestEvolve_SuccessRateBoost(t *testing.T) {
	e := newTestEngine(t)
	recordN(t, e, "p1", 24, true, 0.8)
	recordN(t, e, "p1", 1, false, 0.8)

	result, err := e.Evolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, result.Eligible)
	assert.Equal(t, []string{"success_rate_boost"}, result.AppliedRules)
	// Unset threshold treated as 0.5, raised by 0.1.
	assert.InDelta(t, 0.6, result.Data.ConfidenceThreshold, 1e-9)
}

func TestEvolve_ThresholdClampedLow(t *testing.T) {
	e := newTestEngine(t)
	recordN(t, e, "p1", 4, true, 0.5)
	recordN(t, e, "p1", 8, false, 0.5)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		result, err := e.Evolve(ctx, "p1")
		require.NoError(t, err)
		assert.Contains(t, result.AppliedRules, "success_rate_reduction")
	}

	m, _ := e.Metrics("p1")
	assert.InDelta(t, 0.1, m.Data.ConfidenceThreshold, 1e-9)
}

func TestEvolve_Promotion(t *testing.T) {
	e := newTestEngine(t)
	recordN(t, e, "p1", 50, true, 0.7)
	recordN(t, e, "p1", 10, false, 0.7)

	result, err := e.Evolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Contains(t, result.AppliedRules, "usage_promotion")
	assert.True(t, result.Data.Promoted)
	assert.Equal(t, "High usage and success rate", result.Data.PromotionReason)
}

func TestEvolve_OptimizationAddedOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, e.RecordUsage(ctx, UsageRecord{
			PatternID:     "p1",
			Success:       true,
			ExecutionTime: 4.0,
		}))
	}

	for i := 0; i < 3; i++ {
		_, err := e.Evolve(ctx, "p1")
		require.NoError(t, err)
	}

	m, _ := e.Metrics("p1")
	assert.Equal(t, []string{"caching"}, m.Data.Optimizations)
}

func TestEvolve_MalformedRuleFailsClosed(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddRule(EvolutionRule{
		ID:          "bad_field",
		Condition:   Condition{All: []Comparison{{Field: "nonexistent", Op: OpGT, Value: 0}}},
		Action:      ActionPromotePattern,
		Enabled:     true,
		Description: "references a field that does not exist",
	}))
	recordN(t, e, "p1", 15, true, 0.5)

	result, err := e.Evolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.NotContains(t, result.AppliedRules, "bad_field")
	assert.False(t, result.Data.Promoted)
}

func TestAddRule_RejectsUnknownAction(t *testing.T) {
	e := newTestEngine(t)
	err := e.AddRule(EvolutionRule{ID: "x", Action: "reticulate_splines", Enabled: true})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestEvolutionScore_Bounds(t *testing.T) {
	e := newTestEngine(t)
	recordN(t, e, "p1", 200, true, 1.0)
	require.NoError(t, e.AddRating("p1", 5))

	m, _ := e.Metrics("p1")
	score := m.EvolutionScore()
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestAddRating(t *testing.T) {
	e := newTestEngine(t)
	recordN(t, e, "p1", 1, true, 0.5)

	require.NoError(t, e.AddRating("p1", 4))
	require.NoError(t, e.AddRating("p1", 5))

	m, _ := e.Metrics("p1")
	assert.InDelta(t, 4.5, m.AverageRating, 1e-9)

	assert.ErrorIs(t, e.AddRating("p1", 0), ErrInvalidRating)
	assert.ErrorIs(t, e.AddRating("p1", 6), ErrInvalidRating)
	assert.ErrorIs(t, e.AddRating("ghost", 3), ErrPatternNotFound)
}

func TestSuggestImprovements(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	old := fixed.Add(-10 * 24 * time.Hour).UnixMilli()
	for i := 0; i < 6; i++ {
		require.NoError(t, e.RecordUsage(ctx, UsageRecord{
			PatternID:     "p1",
			Success:       i < 2,
			ExecutionTime: 6.0,
			Feedback:      "too broad, wrong match",
			Timestamp:     old,
		}))
	}

	improvements, err := e.SuggestImprovements("p1")
	require.NoError(t, err)

	types := make(map[string]string)
	for _, imp := range improvements {
		types[imp.Type] = imp.Priority
	}
	assert.Equal(t, PriorityHigh, types["success_rate"])
	assert.Equal(t, PriorityMedium, types["performance"])
	assert.Equal(t, PriorityMedium, types["feedback_too_broad"])
	assert.Equal(t, PriorityLow, types["low_visibility"])
}

func TestLifecycle_Stages(t *testing.T) {
	e := newTestEngine(t)

	recordN(t, e, "fresh", 2, true, 0.5)
	report, err := e.Lifecycle("fresh")
	require.NoError(t, err)
	assert.Equal(t, StageExperimental, report.Stage)

	recordN(t, e, "solid", 9, true, 0.8)
	recordN(t, e, "solid", 1, false, 0.8)
	require.NoError(t, e.AddRating("solid", 5))
	require.NoError(t, e.AddRating("solid", 4))
	report, err = e.Lifecycle("solid")
	require.NoError(t, err)
	assert.Equal(t, StageMature, report.Stage)

	recordN(t, e, "shaky", 3, true, 0.5)
	recordN(t, e, "shaky", 7, false, 0.5)
	report, err = e.Lifecycle("shaky")
	require.NoError(t, err)
	assert.Equal(t, StageProblematic, report.Stage)

	recordN(t, e, "middling", 7, true, 0.5)
	recordN(t, e, "middling", 3, false, 0.5)
	report, err = e.Lifecycle("middling")
	require.NoError(t, err)
	assert.Equal(t, StageEvolving, report.Stage)
}

func TestEngine_PersistsAcrossRestarts(t *testing.T) {
	dir, err := store.Open(t.TempDir())
	require.NoError(t, err)

	e1 := newTestEngine(t, WithStore(dir))
	recordN(t, e1, "p1", 25, true, 0.9)
	_, err = e1.Evolve(context.Background(), "p1")
	require.NoError(t, err)

	e2 := newTestEngine(t, WithStore(dir))
	m, ok := e2.Metrics("p1")
	require.True(t, ok)
	assert.Equal(t, 25, m.TotalUses)
	assert.InDelta(t, 0.6, m.Data.ConfidenceThreshold, 1e-9)

	export, err := e2.Export("p1")
	require.NoError(t, err)
	assert.Len(t, export.Usage, 25)
}
