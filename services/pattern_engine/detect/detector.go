// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
)

// Detector runs anti-pattern rules against definition facts.
//
// # Thread Safety
//
// Safe for concurrent use. Rule registration and analysis are guarded by
// an RWMutex; rules themselves must be stateless.
type Detector struct {
	mu     sync.RWMutex
	rules  []Rule
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the detector's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the detector's time source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithoutBuiltinRules starts the detector with an empty rule set.
func WithoutBuiltinRules() Option {
	return func(d *Detector) {
		d.rules = nil
	}
}

// NewDetector creates a detector with the built-in rules registered.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		rules:  BuiltinRules(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterRule adds a rule to the detector.
func (d *Detector) RegisterRule(rule Rule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, rule)
}

// RuleIDs returns the registered rule identifiers.
func (d *Detector) RuleIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.rules))
	for _, r := range d.rules {
		ids = append(ids, r.ID())
	}
	return ids
}

// Analyze runs every registered rule against the fact set and builds a
// quality report.
//
// # Description
//
// Each rule sees every fact of its kind. A panicking rule is recovered,
// logged, and skipped; one bad rule never poisons the report. Detections
// are deduplicated on (rule id, line, matched code prefix) and sorted by
// line for stable output.
//
// # Inputs
//
//   - ctx: Trace context for the analysis span.
//   - set: Facts extracted from one file. A set with SyntaxErr produces
//     a report with a single critical syntax_error detection and the
//     syntax error attached.
//
// # Outputs
//
//   - *QualityReport: Never nil.
func (d *Detector) Analyze(ctx context.Context, set *ast.FactSet) *QualityReport {
	ctx, span := startAnalyzeSpan(ctx, set.FilePath)
	defer span.End()
	start := time.Now()

	report := &QualityReport{
		FilePath:    set.FilePath,
		Language:    set.Language,
		AnalyzedAt:  d.now().UnixMilli(),
		TotalLines:  set.TotalLines,
		Detections:  []Detection{},
		BySeverity:  make(map[Severity]int),
		ByCategory:  make(map[Category]int),
		SyntaxError: set.SyntaxErr,
	}

	d.mu.RLock()
	rules := make([]Rule, len(d.rules))
	copy(rules, d.rules)
	d.mu.RUnlock()

	if set.SyntaxErr != nil {
		det := Detection{
			RuleID:     "syntax_error",
			Severity:   SeverityCritical,
			Category:   CategorySyntax,
			Message:    fmt.Sprintf("Syntax error in file: %s", set.SyntaxErr.Message),
			Line:       set.SyntaxErr.Line,
			Suggestion: "Fix the syntax error before analysis",
			Confidence: 1.0,
		}
		report.Detections = append(report.Detections, det)
		recordDetectionByRule(ctx, det.RuleID)
	}

	seen := make(map[detectionKey]struct{})
	set.Walk(func(fact *ast.DefinitionFact) {
		for _, rule := range rules {
			if rule.Kind() != fact.Kind {
				continue
			}
			for _, det := range d.runRule(rule, fact, set) {
				key := keyFor(det)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				report.Detections = append(report.Detections, det)
				recordDetectionByRule(ctx, det.RuleID)
			}
		}
		if fact.Kind == ast.FactKindFunction {
			report.ComplexityScore += fact.DecisionPoints
		}
	})

	sort.SliceStable(report.Detections, func(i, j int) bool {
		return report.Detections[i].Line < report.Detections[j].Line
	})

	for _, det := range report.Detections {
		report.BySeverity[det.Severity]++
		report.ByCategory[det.Category]++
		if det.AutoFixable {
			report.AutoFixableCount++
		}
	}
	report.QualityScore = qualityScore(report.Detections, set.TotalLines)
	report.MaintainabilityScore = maintainabilityScore(report.Detections)

	setAnalyzeSpanResult(span, len(report.Detections), report.QualityScore)
	recordAnalyzeMetrics(ctx, time.Since(start), len(report.Detections))
	return report
}

// runRule executes one rule against one fact, recovering panics so a
// faulty rule cannot take down analysis.
func (d *Detector) runRule(rule Rule, fact *ast.DefinitionFact, set *ast.FactSet) (out []Detection) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("rule check panicked",
				slog.String("rule", rule.ID()),
				slog.String("file", set.FilePath),
				slog.Any("panic", r))
			out = nil
		}
	}()
	return rule.Check(fact, set)
}

type detectionKey struct {
	ruleID  string
	line    int
	matched string
}

func keyFor(det Detection) detectionKey {
	matched := det.MatchedCode
	if len(matched) > 50 {
		matched = matched[:50]
	}
	return detectionKey{ruleID: det.RuleID, line: det.Line, matched: matched}
}

// qualityScore computes the file quality score.
//
// A clean file scores exactly 100. Otherwise severity penalties are
// subtracted from 100 and the result is scaled down by up to 10% for
// files approaching 1000 lines, clamped to >= 0.
func qualityScore(detections []Detection, totalLines int) float64 {
	if len(detections) == 0 {
		return 100.0
	}
	score := 100.0
	for _, det := range detections {
		score -= det.Severity.Penalty()
	}
	sizeRatio := float64(totalLines) / 1000.0
	if sizeRatio > 1 {
		sizeRatio = 1
	}
	score *= 1 - sizeRatio*0.1
	if score < 0 {
		score = 0
	}
	return score
}

// maintainabilityScore deducts 5 points per detection tied to size,
// complexity, documentation, or structure.
func maintainabilityScore(detections []Detection) float64 {
	score := 100.0
	for _, det := range detections {
		if isMaintainabilityRule(det.RuleID) {
			score -= 5
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func isMaintainabilityRule(ruleID string) bool {
	id := strings.ToLower(ruleID)
	for _, marker := range []string{"long", "complex", "docstring", "structure"} {
		if strings.Contains(id, marker) {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer for quick report summaries in logs.
func (r *QualityReport) String() string {
	return fmt.Sprintf("%s: %d detections, quality %.1f, maintainability %.1f, complexity %d",
		r.FilePath, len(r.Detections), r.QualityScore, r.MaintainabilityScore, r.ComplexityScore)
}
