// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
	"github.com/AleutianAI/patternforge/services/pattern_engine/store"
)

// patternsDocumentName is the persisted learner state document.
const patternsDocumentName = "learned_patterns.json"

// DefaultMinConfidence is the learning threshold: definitions scoring
// below it are observed but not turned into patterns.
const DefaultMinConfidence = 0.7

// learnerDocument is the persisted shape of the learner's state.
type learnerDocument struct {
	Patterns     []*Pattern          `json:"patterns"`
	AntiPatterns []AntiPatternRecord `json:"anti_patterns"`
}

// Learner extracts reusable patterns and anti-pattern observations from
// definition facts.
//
// # Thread Safety
//
// Safe for concurrent use; all state is guarded by an RWMutex.
type Learner struct {
	mu            sync.RWMutex
	patterns      map[string]*Pattern
	antiPatterns  []AntiPatternRecord
	antiSeen      map[string]struct{}
	minConfidence float64
	dir           *store.Directory
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Learner.
type Option func(*Learner)

// WithStore enables persistence through the given document store.
func WithStore(dir *store.Directory) Option {
	return func(l *Learner) { l.dir = dir }
}

// WithLogger sets the learner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Learner) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the learner's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMinConfidence overrides the learning threshold.
func WithMinConfidence(min float64) Option {
	return func(l *Learner) {
		if min > 0 && min <= 1 {
			l.minConfidence = min
		}
	}
}

// NewLearner creates a learner, loading persisted state when a store is
// configured.
func NewLearner(opts ...Option) (*Learner, error) {
	l := &Learner{
		patterns:      make(map[string]*Pattern),
		antiSeen:      make(map[string]struct{}),
		minConfidence: DefaultMinConfidence,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.dir != nil {
		var doc learnerDocument
		if err := l.dir.Load(patternsDocumentName, &doc); err != nil {
			return nil, fmt.Errorf("load learned patterns: %w", err)
		}
		for _, p := range doc.Patterns {
			l.patterns[p.ID] = p
		}
		l.antiPatterns = doc.AntiPatterns
		for _, ap := range doc.AntiPatterns {
			l.antiSeen[antiKey(ap)] = struct{}{}
		}
	}
	return l, nil
}

// Learn observes one file's facts, learning patterns and recording
// anti-pattern observations.
//
// # Description
//
// Functions and classes whose confidence reaches the threshold become
// patterns; re-observing a known pattern increments its usage count and
// extends its source file list. Anti-pattern observations are recorded
// once per (file, line, reason). State persists after each call when a
// store is configured; persistence failures are logged, never fatal.
//
// # Inputs
//
//   - ctx: Cancellation context.
//   - set: Facts extracted from one file.
//
// # Outputs
//
//   - *FileAnalysis: Per-file learning summary with score.
//   - error: Context cancellation only; learning itself cannot fail.
func (l *Learner) Learn(ctx context.Context, set *ast.FactSet) (*FileAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analysis := &FileAnalysis{FilePath: set.FilePath}

	l.mu.Lock()
	set.Walk(func(fact *ast.DefinitionFact) {
		switch fact.Kind {
		case ast.FactKindFunction:
			if l.learnFunction(fact, set) {
				analysis.PatternsLearned++
			}
			l.checkFunctionAntiPatterns(fact, set, analysis)
		case ast.FactKindClass:
			if l.learnClass(fact, set) {
				analysis.PatternsLearned++
			}
			l.checkClassAntiPatterns(fact, set, analysis)
		case ast.FactKindLoop:
			l.checkLoopAntiPatterns(fact, set, analysis)
		}
	})
	l.saveLocked()
	l.mu.Unlock()

	analysis.Score = fileScore(analysis.PatternsLearned, analysis.AntiPatternsFound)
	l.logger.Debug("learned from file",
		slog.String("file", set.FilePath),
		slog.Int("patterns", analysis.PatternsLearned),
		slog.Int("anti_patterns", analysis.AntiPatternsFound))
	return analysis, nil
}

// learnFunction scores one function fact and records it as a pattern if
// it clears the threshold. Returns true when a pattern was learned or
// re-observed. Caller holds the lock.
func (l *Learner) learnFunction(fact *ast.DefinitionFact, set *ast.FactSet) bool {
	confidence := capUnit(float64(fact.ParamCount+boolInt(fact.HasDoc)+boolInt(fact.HasTypeAnnotations)) / 5.0)
	if confidence < l.minConfidence || fact.Source == "" {
		return false
	}

	patternType := classifyFunction(fact)
	template, variables := buildTemplate(fact.Source, fact.Name, VariableFunctionName, fact.ParamNames)
	fp := fingerprint(template)
	id := patternID(CategoryFunction, patternType, fp)

	l.upsertPattern(&Pattern{
		ID:          id,
		Name:        fmt.Sprintf("%s: %s", patternType, fact.Name),
		Category:    CategoryFunction,
		PatternType: patternType,
		Language:    set.Language,
		Description: fmt.Sprintf("Function pattern learned from %q", fact.Name),
		Template:    template,
		Variables:   variables,
		Confidence:  confidence,
		Fingerprint: fp,
	}, set.FilePath)
	return true
}

// learnClass scores one class fact and records it as a pattern if it
// clears the threshold. Caller holds the lock.
func (l *Learner) learnClass(fact *ast.DefinitionFact, set *ast.FactSet) bool {
	confidence := capUnit(float64(fact.MethodCount+boolInt(fact.HasInit)+boolInt(fact.HasDoc)) / 5.0)
	if confidence < l.minConfidence || fact.Source == "" {
		return false
	}

	patternType := classifyClass(fact)
	template, variables := buildTemplate(fact.Source, fact.Name, VariableClassName, nil)
	fp := fingerprint(template)
	id := patternID(CategoryClass, patternType, fp)

	l.upsertPattern(&Pattern{
		ID:          id,
		Name:        fmt.Sprintf("%s: %s", patternType, fact.Name),
		Category:    CategoryClass,
		PatternType: patternType,
		Language:    set.Language,
		Description: fmt.Sprintf("Class pattern learned from %q", fact.Name),
		Template:    template,
		Variables:   variables,
		Confidence:  confidence,
		Fingerprint: fp,
	}, set.FilePath)
	return true
}

// upsertPattern inserts a new pattern or bumps an existing one. Caller
// holds the lock.
func (l *Learner) upsertPattern(p *Pattern, filePath string) {
	nowMs := l.now().UnixMilli()
	if existing, ok := l.patterns[p.ID]; ok {
		existing.UsageCount++
		existing.UpdatedAt = nowMs
		if !containsString(existing.SourceFiles, filePath) {
			existing.SourceFiles = append(existing.SourceFiles, filePath)
		}
		return
	}
	p.UsageCount = 1
	p.SourceFiles = []string{filePath}
	p.CreatedAt = nowMs
	p.UpdatedAt = nowMs
	l.patterns[p.ID] = p
}

func classifyFunction(fact *ast.DefinitionFact) string {
	switch {
	case fact.ParamCount == 0 && fact.LineCount < 5:
		return TypeSimpleGetter
	case fact.ParamCount > 4:
		return TypeComplexFunction
	case fact.HasDoc && fact.HasTypeAnnotations:
		return TypeWellDocumentedFunction
	case fact.DecisionPoints > 10:
		return TypeComplexLogic
	default:
		return TypeStandardFunction
	}
}

func classifyClass(fact *ast.DefinitionFact) string {
	switch {
	case fact.MethodCount == 0:
		return TypeDataClass
	case fact.HasInit && fact.MethodCount < 5:
		return TypeSimpleClass
	case fact.BaseCount > 0:
		return TypeInheritanceClass
	case fact.MethodCount > 10:
		return TypeComplexClass
	default:
		return TypeStandardClass
	}
}

func (l *Learner) checkFunctionAntiPatterns(fact *ast.DefinitionFact, set *ast.FactSet, analysis *FileAnalysis) {
	if fact.ParamCount > 7 {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    CategoryFunction,
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      fmt.Sprintf("function has %d parameters", fact.ParamCount),
			Alternative: "group related parameters into a configuration object",
		})
	}
	if fact.LineCount > 50 {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    CategoryFunction,
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      fmt.Sprintf("function is %d lines long", fact.LineCount),
			Alternative: "split into smaller, focused functions",
		})
	}
	if !fact.HasDoc {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    CategoryFunction,
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      "function has no documentation",
			Alternative: "add a docstring describing purpose, inputs, and outputs",
		})
	}
	if fact.DecisionPoints > 15 && !fact.HasTypeAnnotations {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    CategoryFunction,
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      fmt.Sprintf("complex function (complexity %d) without type annotations", fact.DecisionPoints),
			Alternative: "annotate types to make complex control flow checkable",
		})
	}
	if fact.HasBareExcept {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    "error_handling",
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      "bare except clause swallows all errors",
			Alternative: "catch the specific exception types you can handle",
		})
	}
	if fact.CatchesBroadException {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    "error_handling",
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      "handler catches the base Exception type",
			Alternative: "catch narrower exception types",
		})
	}
}

func (l *Learner) checkClassAntiPatterns(fact *ast.DefinitionFact, set *ast.FactSet, analysis *FileAnalysis) {
	if fact.MethodCount > 20 {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    CategoryClass,
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      fmt.Sprintf("class has %d methods", fact.MethodCount),
			Alternative: "split responsibilities into smaller collaborating classes",
		})
	}
	if !fact.HasDoc {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    CategoryClass,
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      "class has no documentation",
			Alternative: "add a class docstring",
		})
	}
	if fact.MethodCount == 0 && fact.FieldCount > 5 {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    CategoryClass,
			Name:        fact.Name,
			Line:        fact.StartLine,
			Reason:      fmt.Sprintf("data-only class with %d attributes", fact.FieldCount),
			Alternative: "use a dataclass or a plain data structure",
		})
	}
}

func (l *Learner) checkLoopAntiPatterns(fact *ast.DefinitionFact, set *ast.FactSet, analysis *FileAnalysis) {
	if fact.NestingDepth > 3 {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    "loop",
			Line:        fact.StartLine,
			Reason:      fmt.Sprintf("loop nesting depth %d", fact.NestingDepth),
			Alternative: "extract inner loops into helper functions",
		})
	}
	if fact.LineCount > 20 {
		l.recordAntiPattern(set, analysis, AntiPatternRecord{
			Category:    "loop",
			Line:        fact.StartLine,
			Reason:      fmt.Sprintf("loop body spans %d lines", fact.LineCount),
			Alternative: "move the loop body into a named function",
		})
	}
}

// antiKey is the dedup key for an anti-pattern observation.
func antiKey(rec AntiPatternRecord) string {
	return fmt.Sprintf("%s:%d:%s", rec.FilePath, rec.Line, rec.Reason)
}

// recordAntiPattern stores one observation, deduplicated on
// (file, line, reason). Caller holds the lock.
func (l *Learner) recordAntiPattern(set *ast.FactSet, analysis *FileAnalysis, rec AntiPatternRecord) {
	rec.FilePath = set.FilePath
	rec.ObservedAt = l.now().UnixMilli()

	key := antiKey(rec)
	if _, seen := l.antiSeen[key]; seen {
		return
	}
	l.antiSeen[key] = struct{}{}
	l.antiPatterns = append(l.antiPatterns, rec)
	analysis.AntiPatternsFound++
}

// GetPatterns returns learned patterns filtered by category and language
// (empty string matches all), sorted by usage then confidence descending.
func (l *Learner) GetPatterns(category, language string) []Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Pattern, 0, len(l.patterns))
	for _, p := range l.patterns {
		if category != "" && p.Category != category {
			continue
		}
		if language != "" && p.Language != language {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetPattern returns one pattern by id.
func (l *Learner) GetPattern(id string) (Pattern, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.patterns[id]
	if !ok {
		return Pattern{}, false
	}
	return *p, true
}

// GetAntiPatterns returns all recorded anti-pattern observations.
func (l *Learner) GetAntiPatterns() []AntiPatternRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AntiPatternRecord, len(l.antiPatterns))
	copy(out, l.antiPatterns)
	return out
}

// PatternCount returns the number of distinct learned patterns.
func (l *Learner) PatternCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.patterns)
}

// ExportTo writes the learner's patterns to a standalone JSON file.
func (l *Learner) ExportTo(path string) error {
	l.mu.RLock()
	doc := l.documentLocked()
	l.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode patterns export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write patterns export: %w", err)
	}
	return nil
}

// ImportFrom merges patterns from a previously exported JSON file.
// Existing pattern ids are kept untouched; new ones are added.
func (l *Learner) ImportFrom(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read patterns import: %w", err)
	}
	var doc learnerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("decode patterns import: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, p := range doc.Patterns {
		if p == nil || p.ID == "" {
			continue
		}
		if _, exists := l.patterns[p.ID]; exists {
			continue
		}
		l.patterns[p.ID] = p
		added++
	}
	if added > 0 {
		l.saveLocked()
	}
	return added, nil
}

// documentLocked snapshots state in a stable order. Caller holds at least
// a read lock.
func (l *Learner) documentLocked() learnerDocument {
	ids := make([]string, 0, len(l.patterns))
	for id := range l.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doc := learnerDocument{
		Patterns:     make([]*Pattern, 0, len(ids)),
		AntiPatterns: l.antiPatterns,
	}
	for _, id := range ids {
		doc.Patterns = append(doc.Patterns, l.patterns[id])
	}
	return doc
}

// saveLocked persists state when a store is configured. Caller holds the
// lock.
func (l *Learner) saveLocked() {
	if l.dir == nil {
		return
	}
	if err := l.dir.Save(patternsDocumentName, l.documentLocked()); err != nil {
		l.logger.Warn("failed to persist learned patterns", slog.Any("error", err))
	}
}

// fileScore maps learning results to a 0-100 file score.
func fileScore(patterns, antiPatterns int) float64 {
	score := 50.0 + 10.0*float64(patterns) - 20.0*float64(antiPatterns)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func capUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
