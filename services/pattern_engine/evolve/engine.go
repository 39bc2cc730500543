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
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/patternforge/services/pattern_engine/store"
)

// Engine tracks pattern usage and evolves patterns from the evidence.
//
// # Description
//
// Every recorded usage updates the pattern's running metrics (Welford
// averages, success rate, feedback themes, improvement trend). Evolve
// evaluates the rule set against those metrics and applies the matching
// actions to the pattern's data. Variants, ratings, improvement
// suggestions, and lifecycle staging all read the same metrics.
//
// # Thread Safety
//
// Safe for concurrent use; all state is guarded by an RWMutex. The
// maintenance loop runs on the caller's goroutine via Run.
type Engine struct {
	mu          sync.RWMutex
	metrics     map[string]*EvolutionMetrics
	usage       []UsageRecord
	rules       []EvolutionRule
	variants    []*Variant
	variantByID map[string]*Variant

	minUses             int
	historyLimit        int
	retention           time.Duration
	maintenanceInterval time.Duration
	maxActiveVariants   int

	dir    *store.Directory
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore enables persistence through the given document store.
func WithStore(dir *store.Directory) Option {
	return func(e *Engine) { e.dir = dir }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMinUsesForEvolution overrides the evolution eligibility floor.
func WithMinUsesForEvolution(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minUses = n
		}
	}
}

// WithUsageHistoryLimit overrides the usage log cap.
func WithUsageHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithRetention overrides how long aged data is kept.
func WithRetention(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retention = d
		}
	}
}

// WithMaintenanceInterval overrides the maintenance loop period.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.maintenanceInterval = d
		}
	}
}

// WithMaxActiveVariants overrides the per-parent variant cap.
func WithMaxActiveVariants(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxActiveVariants = n
		}
	}
}

// NewEngine creates an evolution engine, loading persisted state when a
// store is configured. The default rule set is installed when no rules
// were persisted.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		metrics:             make(map[string]*EvolutionMetrics),
		variantByID:         make(map[string]*Variant),
		minUses:             DefaultMinUsesForEvolution,
		historyLimit:        DefaultUsageHistoryLimit,
		retention:           DefaultRetentionDays * 24 * time.Hour,
		maintenanceInterval: 24 * time.Hour,
		maxActiveVariants:   DefaultMaxActiveVariants,
		logger:              slog.Default(),
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.dir != nil {
		if err := e.load(); err != nil {
			return nil, err
		}
	}
	if len(e.rules) == 0 {
		e.rules = DefaultRules()
	}
	return e, nil
}

func (e *Engine) load() error {
	var metrics map[string]*EvolutionMetrics
	if err := e.dir.Load(metricsDocumentName, &metrics); err != nil {
		return fmt.Errorf("load evolution metrics: %w", err)
	}
	if metrics != nil {
		e.metrics = metrics
	}
	if err := e.dir.Load(usageDocumentName, &e.usage); err != nil {
		return fmt.Errorf("load usage history: %w", err)
	}
	if err := e.dir.Load(rulesDocumentName, &e.rules); err != nil {
		return fmt.Errorf("load evolution rules: %w", err)
	}
	if err := e.dir.Load(variantsDocumentName, &e.variants); err != nil {
		return fmt.Errorf("load pattern variants: %w", err)
	}
	for _, v := range e.variants {
		e.variantByID[v.ID] = v
	}
	return nil
}

// RecordUsage folds one usage observation into the pattern's metrics.
//
// # Inputs
//
//   - ctx: Metric context.
//   - rec: The observation. PatternID is required; a zero Timestamp is
//     stamped with the current time.
//
// # Outputs
//
//   - error: Non-nil only for a missing pattern id or canceled context.
func (e *Engine) RecordUsage(ctx context.Context, rec UsageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.PatternID == "" {
		return fmt.Errorf("%w: empty pattern id", ErrPatternNotFound)
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = e.now().UnixMilli()
	}

	e.mu.Lock()
	m, ok := e.metrics[rec.PatternID]
	if !ok {
		m = &EvolutionMetrics{
			PatternID:      rec.PatternID,
			FeedbackThemes: make(map[string]int),
			FirstUsed:      rec.Timestamp,
		}
		e.metrics[rec.PatternID] = m
	}

	m.TotalUses++
	if rec.Success {
		m.Successes++
	}
	m.SuccessRate = float64(m.Successes) / float64(m.TotalUses)
	// Welford running averages.
	n := float64(m.TotalUses)
	m.AverageConfidence += (rec.Confidence - m.AverageConfidence) / n
	m.AverageExecutionTime += (rec.ExecutionTime - m.AverageExecutionTime) / n
	m.LastUsed = rec.Timestamp

	if rec.Feedback != "" {
		if m.FeedbackThemes == nil {
			m.FeedbackThemes = make(map[string]int)
		}
		for _, theme := range classifyFeedback(rec.Feedback) {
			m.FeedbackThemes[theme]++
		}
	}

	m.ImprovementTrend = append(m.ImprovementTrend, rec.Confidence)
	if len(m.ImprovementTrend) > trendCapacity {
		m.ImprovementTrend = m.ImprovementTrend[len(m.ImprovementTrend)-trendCapacity:]
	}

	e.usage = append(e.usage, rec)
	if len(e.usage) > e.historyLimit {
		e.usage = e.usage[len(e.usage)-e.historyLimit:]
	}

	e.saveUsageLocked()
	e.saveMetricsLocked()
	e.mu.Unlock()

	recordUsageMetrics(ctx, rec.Success)
	return nil
}

// AddRating attaches a 1-5 user rating to a pattern.
func (e *Engine) AddRating(patternID string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: %d", ErrInvalidRating, rating)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.metrics[patternID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, patternID)
	}
	m.UserRatings = append(m.UserRatings, rating)
	sum := 0
	for _, r := range m.UserRatings {
		sum += r
	}
	m.AverageRating = float64(sum) / float64(len(m.UserRatings))
	e.saveMetricsLocked()
	return nil
}

// Evolve evaluates the rule set against a pattern's metrics and applies
// matching actions.
//
// # Description
//
// Patterns with fewer uses than the eligibility floor are returned
// unchanged with Eligible=false. Rules with malformed conditions fail
// closed; rules with unknown actions are logged and skipped.
//
// # Outputs
//
//   - *EvolutionResult: The applied rules and resulting pattern data.
//   - error: ErrPatternNotFound when the pattern has no metrics.
func (e *Engine) Evolve(ctx context.Context, patternID string) (*EvolutionResult, error) {
	ctx, span := startEvolveSpan(ctx, patternID)
	defer span.End()
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.metrics[patternID]
	if !ok {
		setEvolveSpanResult(span, 0, false)
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, patternID)
	}

	result := &EvolutionResult{
		PatternID:    patternID,
		AppliedRules: []string{},
		Data:         m.Data,
	}
	if m.TotalUses < e.minUses {
		result.Eligible = false
		result.EvolutionScore = m.EvolutionScore()
		setEvolveSpanResult(span, 0, true)
		return result, nil
	}
	result.Eligible = true

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		if !rule.Condition.Eval(m, e.logger) {
			continue
		}
		if err := applyAction(&m.Data, rule.Action); err != nil {
			e.logger.Warn("skipping evolution rule",
				slog.String("rule", rule.ID),
				slog.Any("error", err))
			continue
		}
		result.AppliedRules = append(result.AppliedRules, rule.ID)
		e.logger.Info("evolution rule applied",
			slog.String("pattern", patternID),
			slog.String("rule", rule.ID),
			slog.String("action", string(rule.Action)))
	}

	result.Data = m.Data
	result.EvolutionScore = m.EvolutionScore()
	e.saveMetricsLocked()

	setEvolveSpanResult(span, len(result.AppliedRules), true)
	recordEvolveMetrics(ctx, time.Since(start), len(result.AppliedRules))
	return result, nil
}

// applyAction mutates pattern data for one action from the closed set.
func applyAction(data *PatternData, action Action) error {
	switch action {
	case ActionIncreaseThreshold:
		data.ConfidenceThreshold = clampThreshold(baseThreshold(data.ConfidenceThreshold) + 0.1)
	case ActionDecreaseThreshold:
		data.ConfidenceThreshold = clampThreshold(baseThreshold(data.ConfidenceThreshold) - 0.1)
	case ActionAddOptimizations:
		for _, opt := range data.Optimizations {
			if opt == "caching" {
				return nil
			}
		}
		data.Optimizations = append(data.Optimizations, "caching")
	case ActionPromotePattern:
		data.Promoted = true
		data.PromotionReason = "High usage and success rate"
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return nil
}

func baseThreshold(v float64) float64 {
	if v == 0 {
		return 0.5
	}
	return v
}

func clampThreshold(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 0.9 {
		return 0.9
	}
	return v
}

// SuggestImprovements derives prioritized improvement suggestions from a
// pattern's metrics and recent usage.
func (e *Engine) SuggestImprovements(patternID string) ([]Improvement, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m, ok := e.metrics[patternID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, patternID)
	}

	improvements := make([]Improvement, 0)
	if m.SuccessRate < 0.7 {
		improvements = append(improvements, Improvement{
			Type:        "success_rate",
			Priority:    PriorityHigh,
			Description: fmt.Sprintf("success rate is %.0f%%, review where the pattern misfires", m.SuccessRate*100),
		})
	}
	if isDeclining(m.ImprovementTrend) {
		improvements = append(improvements, Improvement{
			Type:        "declining_trend",
			Priority:    PriorityMedium,
			Description: "usage confidence has declined over the last three uses",
		})
	}
	if m.AverageExecutionTime > 5.0 {
		improvements = append(improvements, Improvement{
			Type:        "performance",
			Priority:    PriorityMedium,
			Description: fmt.Sprintf("average execution time is %.1fs, consider optimizing", m.AverageExecutionTime),
		})
	}

	themes := make([]string, 0, len(m.FeedbackThemes))
	for theme, count := range m.FeedbackThemes {
		if count >= 3 && theme != "helpful" {
			themes = append(themes, theme)
		}
	}
	sort.Strings(themes)
	for _, theme := range themes {
		improvements = append(improvements, Improvement{
			Type:        "feedback_" + theme,
			Priority:    PriorityMedium,
			Description: fmt.Sprintf("recurring %q feedback (%d reports)", theme, m.FeedbackThemes[theme]),
		})
	}

	if e.recentUsesLocked(patternID, 7*24*time.Hour) < 2 {
		improvements = append(improvements, Improvement{
			Type:        "low_visibility",
			Priority:    PriorityLow,
			Description: "pattern was used fewer than twice in the last week",
		})
	}
	return improvements, nil
}

// Lifecycle reports where a pattern is in its life.
func (e *Engine) Lifecycle(patternID string) (*LifecycleReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m, ok := e.metrics[patternID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, patternID)
	}

	stage := StageEvolving
	switch {
	case m.TotalUses < 5:
		stage = StageExperimental
	case m.SuccessRate >= 0.8 && m.AverageRating >= 4:
		stage = StageMature
	case m.SuccessRate < 0.6:
		stage = StageProblematic
	}

	return &LifecycleReport{
		PatternID:      patternID,
		Stage:          stage,
		TotalUses:      m.TotalUses,
		SuccessRate:    m.SuccessRate,
		EvolutionScore: m.EvolutionScore(),
		TrendDirection: trendDirection(m.ImprovementTrend),
	}, nil
}

// Export bundles one pattern's metrics, usage, and variants.
func (e *Engine) Export(patternID string) (*EvolutionExport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m, ok := e.metrics[patternID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, patternID)
	}

	export := &EvolutionExport{Metrics: *m}
	for _, rec := range e.usage {
		if rec.PatternID == patternID {
			export.Usage = append(export.Usage, rec)
		}
	}
	for _, v := range e.variants {
		if v.ParentID == patternID {
			export.Variants = append(export.Variants, *v)
		}
	}
	return export, nil
}

// Metrics returns a copy of one pattern's metrics.
func (e *Engine) Metrics(patternID string) (EvolutionMetrics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.metrics[patternID]
	if !ok {
		return EvolutionMetrics{}, false
	}
	return *m, true
}

// Rules returns the current rule set.
func (e *Engine) Rules() []EvolutionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]EvolutionRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// AddRule installs a custom evolution rule.
func (e *Engine) AddRule(rule EvolutionRule) error {
	if err := applyAction(&PatternData{}, rule.Action); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	e.saveRulesLocked()
	return nil
}

// recentUsesLocked counts usages of a pattern within the window. Caller
// holds at least a read lock.
func (e *Engine) recentUsesLocked(patternID string, window time.Duration) int {
	cutoff := e.now().Add(-window).UnixMilli()
	count := 0
	for _, rec := range e.usage {
		if rec.PatternID == patternID && rec.Timestamp >= cutoff {
			count++
		}
	}
	return count
}

func classifyFeedback(feedback string) []string {
	lower := strings.ToLower(feedback)
	matched := make([]string, 0, 1)
	names := make([]string, 0, len(feedbackThemes))
	for name := range feedbackThemes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, keyword := range feedbackThemes[name] {
			if strings.Contains(lower, keyword) {
				matched = append(matched, name)
				break
			}
		}
	}
	return matched
}

// isDeclining reports whether the trend has dropped over its last three
// points. The comparison is last against first, so an intermediate
// rebound does not mask the decline.
func isDeclining(trend []float64) bool {
	if len(trend) < 3 {
		return false
	}
	tail := trend[len(trend)-3:]
	return tail[2] < tail[0]
}

func trendDirection(trend []float64) string {
	if len(trend) < 2 {
		return "stable"
	}
	first, last := trend[0], trend[len(trend)-1]
	const epsilon = 1e-9
	switch {
	case last > first+epsilon:
		return "improving"
	case last < first-epsilon:
		return "declining"
	default:
		return "stable"
	}
}

func (e *Engine) saveUsageLocked() {
	if e.dir == nil {
		return
	}
	if err := e.dir.Save(usageDocumentName, e.usage); err != nil {
		e.logger.Warn("failed to persist usage history", slog.Any("error", err))
	}
}

func (e *Engine) saveMetricsLocked() {
	if e.dir == nil {
		return
	}
	if err := e.dir.Save(metricsDocumentName, e.metrics); err != nil {
		e.logger.Warn("failed to persist evolution metrics", slog.Any("error", err))
	}
}

func (e *Engine) saveRulesLocked() {
	if e.dir == nil {
		return
	}
	if err := e.dir.Save(rulesDocumentName, e.rules); err != nil {
		e.logger.Warn("failed to persist evolution rules", slog.Any("error", err))
	}
}

func (e *Engine) saveVariantsLocked() {
	if e.dir == nil {
		return
	}
	if err := e.dir.Save(variantsDocumentName, e.variants); err != nil {
		e.logger.Warn("failed to persist pattern variants", slog.Any("error", err))
	}
}
