// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pattern_engine ties the extraction, detection, learning,
// application, evolution, and sharing subsystems together behind one
// service facade.
package pattern_engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/patternforge/services/pattern_engine/apply"
	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
	"github.com/AleutianAI/patternforge/services/pattern_engine/detect"
	"github.com/AleutianAI/patternforge/services/pattern_engine/evolve"
	"github.com/AleutianAI/patternforge/services/pattern_engine/learn"
	"github.com/AleutianAI/patternforge/services/pattern_engine/store"
	"github.com/AleutianAI/patternforge/services/pattern_engine/team"
)

// languageByExtension maps file extensions to canonical language tags.
// Tags without a registered extractor fail at extraction time with
// ast.ErrUnsupportedLanguage.
var languageByExtension = map[string]string{
	".py":   "python",
	".go":   "go",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".c":    "c",
	".cpp":  "cpp",
	".rs":   "rust",
	".php":  "php",
}

// SourceProvider supplies file content and its language tag.
type SourceProvider interface {
	Read(path string) (content []byte, language string, err error)
}

// FSProvider reads sources from the local filesystem, inferring the
// language from the file extension.
type FSProvider struct{}

// Read loads one file from disk.
func (FSProvider) Read(path string) ([]byte, string, error) {
	lang, ok := languageByExtension[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownExtension, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return content, lang, nil
}

// MetadataSink receives finished pipeline outputs for downstream
// consumers (dashboards, IDE plugins). Implementations must be safe for
// concurrent use; a nil sink drops everything.
type MetadataSink interface {
	QualityReport(report *detect.QualityReport)
	PatternsLearned(path string, analysis *learn.FileAnalysis)
	Suggestions(path string, suggestions []apply.Suggestion)
}

// FileReport bundles the outputs of a full single-file analysis.
type FileReport struct {
	Quality     *detect.QualityReport `json:"quality"`
	Learning    *learn.FileAnalysis   `json:"learning"`
	Suggestions []apply.Suggestion    `json:"suggestions"`
}

// LearnResult is the per-file outcome of a learning batch.
type LearnResult struct {
	Analysis    *learn.FileAnalysis `json:"analysis"`
	Suggestions []apply.Suggestion  `json:"suggestions"`
}

// Service is the pattern engine facade.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying subsystems carry their own
// locks; the facade holds no mutable state of its own beyond the
// maintenance goroutine handle.
type Service struct {
	cfg      ServiceConfig
	registry *ast.Registry
	detector *detect.Detector
	learner  *learn.Learner
	applier  *apply.Applier
	evolver  *evolve.Engine
	teams    *team.Manager
	source   SourceProvider
	sink     MetadataSink
	logger   *slog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger *slog.Logger
	source SourceProvider
	sink   MetadataSink
	now    func() time.Time
}

// WithMetadataSink forwards pipeline outputs to the given sink.
func WithMetadataSink(sink MetadataSink) ServiceOption {
	return func(o *serviceOptions) { o.sink = sink }
}

// WithServiceLogger sets the service logger, shared with all subsystems.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSourceProvider overrides how file content is loaded.
func WithSourceProvider(source SourceProvider) ServiceOption {
	return func(o *serviceOptions) {
		if source != nil {
			o.source = source
		}
	}
}

// WithServiceClock overrides the time source for all subsystems.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewService wires the full pipeline from one config. When cfg.DataDir
// is set, state persists there and a background maintenance loop prunes
// stale evolution data until Close is called.
func NewService(cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	o := serviceOptions{
		logger: slog.Default(),
		source: FSProvider{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	maxFileSize := int64(cfg.MaxFileSizeBytes)
	if maxFileSize <= 0 {
		maxFileSize = ast.DefaultMaxFileSize
	}
	registry := ast.NewRegistry(
		ast.NewPythonExtractor(
			ast.WithPythonMaxFileSize(maxFileSize),
			ast.WithPythonLogger(o.logger)),
		ast.NewGoExtractor(
			ast.WithGoMaxFileSize(maxFileSize),
			ast.WithGoLogger(o.logger)),
	)

	var dir *store.Directory
	if cfg.DataDir != "" {
		var err error
		dir, err = store.Open(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open data directory: %w", err)
		}
	}

	learnOpts := []learn.Option{learn.WithLogger(o.logger), learn.WithClock(o.now)}
	if cfg.MinConfidence > 0 {
		learnOpts = append(learnOpts, learn.WithMinConfidence(cfg.MinConfidence))
	}
	if dir != nil {
		learnOpts = append(learnOpts, learn.WithStore(dir))
	}
	learner, err := learn.NewLearner(learnOpts...)
	if err != nil {
		return nil, fmt.Errorf("init learner: %w", err)
	}

	evolveOpts := []evolve.Option{evolve.WithLogger(o.logger), evolve.WithClock(o.now)}
	if cfg.MinUsesForEvolution > 0 {
		evolveOpts = append(evolveOpts, evolve.WithMinUsesForEvolution(cfg.MinUsesForEvolution))
	}
	if cfg.UsageHistoryLimit > 0 {
		evolveOpts = append(evolveOpts, evolve.WithUsageHistoryLimit(cfg.UsageHistoryLimit))
	}
	if cfg.RetentionDays > 0 {
		evolveOpts = append(evolveOpts, evolve.WithRetention(cfg.Retention()))
	}
	if cfg.MaintenanceIntervalMinutes > 0 {
		evolveOpts = append(evolveOpts, evolve.WithMaintenanceInterval(cfg.MaintenanceInterval()))
	}
	if cfg.MaxActiveVariants > 0 {
		evolveOpts = append(evolveOpts, evolve.WithMaxActiveVariants(cfg.MaxActiveVariants))
	}
	if dir != nil {
		evolveOpts = append(evolveOpts, evolve.WithStore(dir))
	}
	evolver, err := evolve.NewEngine(evolveOpts...)
	if err != nil {
		return nil, fmt.Errorf("init evolution engine: %w", err)
	}

	teamOpts := []team.Option{team.WithLogger(o.logger), team.WithClock(o.now)}
	if cfg.RetentionDays > 0 {
		teamOpts = append(teamOpts, team.WithStaleAfter(cfg.Retention()))
	}
	if dir != nil {
		teamOpts = append(teamOpts, team.WithStore(dir))
	}
	teams, err := team.NewManager(teamOpts...)
	if err != nil {
		return nil, fmt.Errorf("init repository manager: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		registry: registry,
		detector: detect.NewDetector(detect.WithLogger(o.logger), detect.WithClock(o.now)),
		learner:  learner,
		applier:  apply.NewApplier(learner),
		evolver:  evolver,
		teams:    teams,
		source:   o.source,
		sink:     o.sink,
		logger:   o.logger,
		done:     make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		if err := evolver.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("maintenance loop exited", slog.Any("error", err))
		}
	}()

	return s, nil
}

// Close stops the background maintenance loop and waits for it to exit.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

// extract loads one file and parses it into facts.
func (s *Service) extract(ctx context.Context, path string) (*ast.FactSet, error) {
	content, language, err := s.source.Read(path)
	if err != nil {
		return nil, err
	}
	extractor, err := s.registry.ForLanguage(language)
	if err != nil {
		return nil, err
	}
	return extractor.Extract(ctx, content, path)
}

// AnalyzeFile runs anti-pattern detection on one file.
func (s *Service) AnalyzeFile(ctx context.Context, path string) (*detect.QualityReport, error) {
	set, err := s.extract(ctx, path)
	if err != nil {
		return nil, err
	}
	report := s.detector.Analyze(ctx, set)
	if s.sink != nil {
		s.sink.QualityReport(report)
	}
	return report, nil
}

// InspectFile runs the full pipeline on one file: detection, learning,
// and suggestions.
func (s *Service) InspectFile(ctx context.Context, path string, minConfidence float64) (*FileReport, error) {
	set, err := s.extract(ctx, path)
	if err != nil {
		return nil, err
	}
	report := &FileReport{Quality: s.detector.Analyze(ctx, set)}
	if report.Learning, err = s.learner.Learn(ctx, set); err != nil {
		return nil, err
	}
	if report.Suggestions, err = s.applier.Suggest(ctx, set, minConfidence); err != nil {
		return nil, err
	}
	if s.sink != nil {
		s.sink.QualityReport(report.Quality)
		s.sink.PatternsLearned(path, report.Learning)
		s.sink.Suggestions(path, report.Suggestions)
	}
	return report, nil
}

// LearnFromFiles learns patterns from a batch of files concurrently.
// Each result carries the file's learning analysis plus suggestions
// derived from the patterns known after that file was learned. Results
// are keyed by path. Unreadable or unsupported files are skipped with a
// warning rather than failing the batch; a canceled context fails it.
func (s *Service) LearnFromFiles(ctx context.Context, paths []string) (map[string]*LearnResult, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}

	var mu sync.Mutex
	results := make(map[string]*LearnResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, path := range paths {
		path := path
		g.Go(func() error {
			set, err := s.extract(ctx, path)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("skipping file",
					slog.String("path", path),
					slog.Any("error", err))
				return nil
			}
			analysis, err := s.learner.Learn(ctx, set)
			if err != nil {
				return err
			}
			suggestions, err := s.applier.Suggest(ctx, set, 0)
			if err != nil {
				return err
			}
			if s.sink != nil {
				s.sink.PatternsLearned(path, analysis)
			}
			mu.Lock()
			results[path] = &LearnResult{Analysis: analysis, Suggestions: suggestions}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Suggest returns improvement suggestions for one file at or above the
// given confidence.
func (s *Service) Suggest(ctx context.Context, path string, minConfidence float64) ([]apply.Suggestion, error) {
	set, err := s.extract(ctx, path)
	if err != nil {
		return nil, err
	}
	suggestions, err := s.applier.Suggest(ctx, set, minConfidence)
	if err != nil {
		return nil, err
	}
	if s.sink != nil {
		s.sink.Suggestions(path, suggestions)
	}
	return suggestions, nil
}

// SyncRepositories pushes shared repositories to a remote when a sync
// transport is configured. No transport ships today.
func (s *Service) SyncRepositories(ctx context.Context) error {
	return ErrSyncNotConfigured
}

// RecordUsage feeds one pattern application outcome to the evolution
// engine.
func (s *Service) RecordUsage(ctx context.Context, rec evolve.UsageRecord) error {
	return s.evolver.RecordUsage(ctx, rec)
}

// Evolve applies the evolution rules to one pattern.
func (s *Service) Evolve(ctx context.Context, patternID string) (*evolve.EvolutionResult, error) {
	return s.evolver.Evolve(ctx, patternID)
}

// Patterns returns learned patterns filtered by category and language.
func (s *Service) Patterns(category, language string) []learn.Pattern {
	return s.learner.GetPatterns(category, language)
}

// Pattern returns one learned pattern by id.
func (s *Service) Pattern(id string) (learn.Pattern, bool) {
	return s.learner.GetPattern(id)
}

// AntiPatterns returns every anti-pattern observed during learning.
func (s *Service) AntiPatterns() []learn.AntiPatternRecord {
	return s.learner.GetAntiPatterns()
}

// Evolution exposes the evolution engine for rule, variant, and
// lifecycle operations.
func (s *Service) Evolution() *evolve.Engine {
	return s.evolver
}

// Repositories exposes the shared repository manager.
func (s *Service) Repositories() *team.Manager {
	return s.teams
}

// Languages returns the language tags with a registered extractor.
func (s *Service) Languages() []string {
	return s.registry.Languages()
}
