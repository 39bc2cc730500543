// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evolve tracks pattern usage and evolves patterns over time.
//
// The engine keeps per-pattern evolution metrics (running averages over
// usage outcomes), evaluates data-driven evolution rules against them,
// manages pattern variants, and suggests improvements. A background
// maintenance loop prunes aged data.
package evolve

// Persisted document names.
const (
	usageDocumentName    = "usage_history.json"
	metricsDocumentName  = "evolution_metrics.json"
	rulesDocumentName    = "evolution_rules.json"
	variantsDocumentName = "pattern_variants.json"
)

// Engine defaults.
const (
	// DefaultMinUsesForEvolution is the usage floor below which Evolve
	// returns the pattern unchanged.
	DefaultMinUsesForEvolution = 10

	// DefaultUsageHistoryLimit caps the persisted usage log.
	DefaultUsageHistoryLimit = 1000

	// DefaultRetentionDays is how long usage records and inactive
	// variants are kept.
	DefaultRetentionDays = 365

	// DefaultMaxActiveVariants caps active variants per parent pattern.
	DefaultMaxActiveVariants = 5

	// trendCapacity bounds the improvement trend FIFO.
	trendCapacity = 20
)

// UsageRecord is one observed application of a pattern.
type UsageRecord struct {
	// PatternID identifies the pattern (or variant) that was used.
	PatternID string `json:"pattern_id"`

	// Success reports whether the application helped.
	Success bool `json:"success"`

	// Confidence is the applier's confidence for this use, in [0, 1].
	Confidence float64 `json:"confidence"`

	// ExecutionTime is the wall time of the application in seconds.
	ExecutionTime float64 `json:"execution_time"`

	// Feedback is optional free-text user feedback.
	Feedback string `json:"feedback,omitempty"`

	// FilePath optionally records where the pattern was applied.
	FilePath string `json:"file_path,omitempty"`

	// Timestamp is the UnixMilli time of use. Zero means "now".
	Timestamp int64 `json:"timestamp"`
}

// PatternData carries the evolvable knobs of one pattern. Actions mutate
// this structure and nothing else.
type PatternData struct {
	// ConfidenceThreshold gates pattern application. Zero means unset;
	// actions treat unset as 0.5.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`

	// Optimizations lists enabled performance optimizations.
	Optimizations []string `json:"optimizations,omitempty"`

	// Promoted marks patterns lifted to preferred status.
	Promoted bool `json:"promoted,omitempty"`

	// PromotionReason records why the pattern was promoted.
	PromotionReason string `json:"promotion_reason,omitempty"`
}

// EvolutionMetrics is the per-pattern rollup the rules evaluate.
type EvolutionMetrics struct {
	// PatternID identifies the pattern.
	PatternID string `json:"pattern_id"`

	// TotalUses and Successes count recorded usages.
	TotalUses int `json:"total_uses"`
	Successes int `json:"successes"`

	// SuccessRate is Successes / TotalUses.
	SuccessRate float64 `json:"success_rate"`

	// AverageConfidence and AverageExecutionTime are running averages
	// over all recorded usages.
	AverageConfidence    float64 `json:"average_confidence"`
	AverageExecutionTime float64 `json:"average_execution_time"`

	// ImprovementTrend is a FIFO of recent usage confidences, capped at
	// 20 points.
	ImprovementTrend []float64 `json:"improvement_trend,omitempty"`

	// FeedbackThemes counts keyword-matched feedback themes.
	FeedbackThemes map[string]int `json:"feedback_themes,omitempty"`

	// UserRatings are 1-5 ratings; AverageRating is their mean, 0 when
	// no ratings exist.
	UserRatings   []int   `json:"user_ratings,omitempty"`
	AverageRating float64 `json:"average_rating"`

	// Data holds the pattern's evolvable knobs.
	Data PatternData `json:"data"`

	// FirstUsed and LastUsed are UnixMilli timestamps.
	FirstUsed int64 `json:"first_used"`
	LastUsed  int64 `json:"last_used"`
}

// EvolutionScore combines success, confidence, adoption, and ratings
// into one score in [0, 1]:
// 0.4*success_rate + 0.3*min(avg_confidence/10, 1) +
// 0.2*min(total_uses/100, 1) + 0.1*(avg_rating/5, or 0.5 unrated).
func (m *EvolutionMetrics) EvolutionScore() float64 {
	ratingComponent := 0.5
	if len(m.UserRatings) > 0 {
		ratingComponent = m.AverageRating / 5.0
	}
	confComponent := m.AverageConfidence / 10.0
	if confComponent > 1 {
		confComponent = 1
	}
	usageComponent := float64(m.TotalUses) / 100.0
	if usageComponent > 1 {
		usageComponent = 1
	}
	return 0.4*m.SuccessRate + 0.3*confComponent + 0.2*usageComponent + 0.1*ratingComponent
}

// Action is the closed set of rule effects.
type Action string

const (
	// ActionIncreaseThreshold raises the confidence threshold by 0.1,
	// clamped to 0.9.
	ActionIncreaseThreshold Action = "increase_confidence_threshold"

	// ActionDecreaseThreshold lowers the confidence threshold by 0.1,
	// clamped to 0.1.
	ActionDecreaseThreshold Action = "decrease_confidence_threshold"

	// ActionAddOptimizations enables caching for slow patterns.
	ActionAddOptimizations Action = "add_performance_optimizations"

	// ActionPromotePattern lifts the pattern to preferred status.
	ActionPromotePattern Action = "promote_pattern"
)

// EvolutionRule ties a data condition to an action.
type EvolutionRule struct {
	// ID identifies the rule.
	ID string `json:"id"`

	// Description explains when and why the rule fires.
	Description string `json:"description"`

	// Condition gates the rule.
	Condition Condition `json:"condition"`

	// Action is applied when the condition holds.
	Action Action `json:"action"`

	// Enabled allows rules to be switched off without deletion.
	Enabled bool `json:"enabled"`
}

// DefaultRules returns the built-in evolution rule set.
func DefaultRules() []EvolutionRule {
	return []EvolutionRule{
		{
			ID:          "success_rate_boost",
			Description: "Proven patterns earn a stricter confidence threshold",
			Condition: Condition{All: []Comparison{
				{Field: FieldSuccessRate, Op: OpGT, Value: 0.85},
				{Field: FieldTotalUses, Op: OpGT, Value: 20},
			}},
			Action:  ActionIncreaseThreshold,
			Enabled: true,
		},
		{
			ID:          "success_rate_reduction",
			Description: "Struggling patterns get a looser confidence threshold",
			Condition: Condition{All: []Comparison{
				{Field: FieldSuccessRate, Op: OpLT, Value: 0.6},
				{Field: FieldTotalUses, Op: OpGT, Value: 10},
			}},
			Action:  ActionDecreaseThreshold,
			Enabled: true,
		},
		{
			ID:          "performance_optimization",
			Description: "Slow patterns get caching enabled",
			Condition: Condition{All: []Comparison{
				{Field: FieldAverageExecutionTime, Op: OpGT, Value: 3.0},
				{Field: FieldTotalUses, Op: OpGT, Value: 15},
			}},
			Action:  ActionAddOptimizations,
			Enabled: true,
		},
		{
			ID:          "usage_promotion",
			Description: "Heavily used, reliable patterns get promoted",
			Condition: Condition{All: []Comparison{
				{Field: FieldTotalUses, Op: OpGT, Value: 50},
				{Field: FieldSuccessRate, Op: OpGT, Value: 0.75},
			}},
			Action:  ActionPromotePattern,
			Enabled: true,
		},
	}
}

// EvolutionResult reports one Evolve call.
type EvolutionResult struct {
	// PatternID identifies the evolved pattern.
	PatternID string `json:"pattern_id"`

	// Eligible is false when the pattern has too few uses; Data is
	// returned unchanged in that case.
	Eligible bool `json:"eligible"`

	// AppliedRules lists the ids of rules whose actions ran.
	AppliedRules []string `json:"applied_rules"`

	// Data is the pattern data after evolution.
	Data PatternData `json:"data"`

	// EvolutionScore is the score after this evolution pass.
	EvolutionScore float64 `json:"evolution_score"`
}

// Variant is an experimental derivative of a parent pattern.
type Variant struct {
	// ID is the variant's unique id, also usable as a pattern id for
	// usage recording.
	ID string `json:"id"`

	// ParentID is the pattern this variant derives from.
	ParentID string `json:"parent_id"`

	// Version is 1-based among the parent's active variants at creation
	// time.
	Version int `json:"version"`

	// Description explains what the variant changes.
	Description string `json:"description"`

	// Active variants count against the per-parent cap and compete for
	// BestVariant.
	Active bool `json:"active"`

	// CreatedAt is the UnixMilli creation timestamp.
	CreatedAt int64 `json:"created_at"`
}

// Improvement priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Improvement is one suggested change to a pattern's handling.
type Improvement struct {
	// Type identifies the improvement kind.
	Type string `json:"type"`

	// Priority is high, medium, or low.
	Priority string `json:"priority"`

	// Description explains the improvement.
	Description string `json:"description"`
}

// Lifecycle stages.
const (
	StageExperimental = "experimental"
	StageMature       = "mature"
	StageProblematic  = "problematic"
	StageEvolving     = "evolving"
)

// LifecycleReport summarizes where a pattern is in its life.
type LifecycleReport struct {
	// PatternID identifies the pattern.
	PatternID string `json:"pattern_id"`

	// Stage is experimental, mature, problematic, or evolving.
	Stage string `json:"stage"`

	// TotalUses, SuccessRate, and EvolutionScore snapshot the metrics.
	TotalUses      int     `json:"total_uses"`
	SuccessRate    float64 `json:"success_rate"`
	EvolutionScore float64 `json:"evolution_score"`

	// TrendDirection is "improving", "declining", or "stable" based on
	// the improvement trend.
	TrendDirection string `json:"trend_direction"`
}

// EvolutionExport bundles everything known about one pattern's evolution.
type EvolutionExport struct {
	Metrics  EvolutionMetrics `json:"metrics"`
	Usage    []UsageRecord    `json:"usage"`
	Variants []Variant        `json:"variants"`
}

// feedbackThemes maps theme names to the keywords that signal them.
var feedbackThemes = map[string][]string{
	"too_broad":  {"too broad", "false positive", "wrong match"},
	"too_narrow": {"too narrow", "missed", "not found"},
	"slow":       {"slow", "performance", "takes too long"},
	"confusing":  {"confusing", "unclear", "hard to understand"},
	"helpful":    {"helpful", "good", "useful", "great"},
}
