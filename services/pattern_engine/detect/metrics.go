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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for analysis operations.
var (
	tracer = otel.Tracer("patternforge.detect")
	meter  = otel.Meter("patternforge.detect")
)

// Metrics for analysis operations.
var (
	analyzeLatency   metric.Float64Histogram
	analyzeTotal     metric.Int64Counter
	detectionsFound  metric.Int64Histogram
	detectionsByRule metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"detect_analyze_duration_seconds",
			metric.WithDescription("Duration of file analysis operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = meter.Int64Counter(
			"detect_analyze_total",
			metric.WithDescription("Total number of file analysis operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		detectionsFound, err = meter.Int64Histogram(
			"detect_detections_found",
			metric.WithDescription("Number of detections per analyzed file"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		detectionsByRule, err = meter.Int64Counter(
			"detect_detections_by_rule_total",
			metric.WithDescription("Total detections by rule id"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startAnalyzeSpan creates a span for a file analysis operation.
func startAnalyzeSpan(ctx context.Context, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Detector.Analyze",
		trace.WithAttributes(
			attribute.String("detect.file", filePath),
		),
	)
}

// setAnalyzeSpanResult sets the result attributes on an analysis span.
func setAnalyzeSpanResult(span trace.Span, detectionCount int, qualityScore float64) {
	span.SetAttributes(
		attribute.Int("detect.detections", detectionCount),
		attribute.Float64("detect.quality_score", qualityScore),
	)
}

// recordAnalyzeMetrics records metrics for a file analysis operation.
func recordAnalyzeMetrics(ctx context.Context, duration time.Duration, detectionCount int) {
	if err := initMetrics(); err != nil {
		return
	}

	analyzeLatency.Record(ctx, duration.Seconds())
	analyzeTotal.Add(ctx, 1)
	detectionsFound.Record(ctx, int64(detectionCount))
}

// recordDetectionByRule records one detection by rule id.
func recordDetectionByRule(ctx context.Context, ruleID string) {
	if err := initMetrics(); err != nil {
		return
	}
	detectionsByRule.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule_id", ruleID),
	))
}
