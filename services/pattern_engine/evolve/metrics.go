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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for evolution operations.
var (
	tracer = otel.Tracer("patternforge.evolve")
	meter  = otel.Meter("patternforge.evolve")
)

// Metrics for evolution operations.
var (
	usageTotal    metric.Int64Counter
	evolveLatency metric.Float64Histogram
	evolveTotal   metric.Int64Counter
	rulesApplied  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		usageTotal, err = meter.Int64Counter(
			"evolve_usage_total",
			metric.WithDescription("Total pattern usage records"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evolveLatency, err = meter.Float64Histogram(
			"evolve_duration_seconds",
			metric.WithDescription("Duration of pattern evolution passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evolveTotal, err = meter.Int64Counter(
			"evolve_total",
			metric.WithDescription("Total pattern evolution passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rulesApplied, err = meter.Int64Histogram(
			"evolve_rules_applied",
			metric.WithDescription("Rules applied per evolution pass"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startEvolveSpan creates a span for an evolution pass.
func startEvolveSpan(ctx context.Context, patternID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Evolve",
		trace.WithAttributes(
			attribute.String("evolve.pattern_id", patternID),
		),
	)
}

// setEvolveSpanResult sets the result attributes on an evolution span.
func setEvolveSpanResult(span trace.Span, rulesCount int, success bool) {
	span.SetAttributes(
		attribute.Int("evolve.rules_applied", rulesCount),
		attribute.Bool("evolve.success", success),
	)
}

// recordEvolveMetrics records metrics for an evolution pass.
func recordEvolveMetrics(ctx context.Context, duration time.Duration, rulesCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	evolveLatency.Record(ctx, duration.Seconds())
	evolveTotal.Add(ctx, 1)
	rulesApplied.Record(ctx, int64(rulesCount))
}

// recordUsageMetrics records one usage observation.
func recordUsageMetrics(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	usageTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}
