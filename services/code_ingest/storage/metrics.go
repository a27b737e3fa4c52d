// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for tiered storage operations.
var (
	tracer = otel.Tracer("aleutian.snapshot_storage")
	meter  = otel.Meter("aleutian.snapshot_storage")
)

// Metrics for the tiered storage manager.
var (
	tierHits        metric.Int64Counter
	tierMisses      metric.Int64Counter
	tierFallbacks   metric.Int64Counter
	durableReads    metric.Int64Counter
	durableWrites   metric.Int64Counter
	durableLatency  metric.Float64Histogram
	cacheErrorTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		tierHits, err = meter.Int64Counter(
			"snapshot_cache_hits_total",
			metric.WithDescription("Cache-tier hits by entity kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tierMisses, err = meter.Int64Counter(
			"snapshot_cache_misses_total",
			metric.WithDescription("Cache-tier misses by entity kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tierFallbacks, err = meter.Int64Counter(
			"snapshot_tier_fallbacks_total",
			metric.WithDescription("Per-file reads that fell back from cache to the durable store"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		durableReads, err = meter.Int64Counter(
			"snapshot_durable_reads_total",
			metric.WithDescription("Objects read from the durable store"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		durableWrites, err = meter.Int64Counter(
			"snapshot_durable_writes_total",
			metric.WithDescription("Objects written to the durable store"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		durableLatency, err = meter.Float64Histogram(
			"snapshot_durable_duration_seconds",
			metric.WithDescription("Duration of durable store operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheErrorTotal, err = meter.Int64Counter(
			"snapshot_cache_errors_total",
			metric.WithDescription("Cache operations that failed and were degraded to the durable path"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordTierHit records a cache-tier hit for an entity kind.
func recordTierHit(ctx context.Context, entity string) {
	if err := initMetrics(); err != nil {
		return
	}
	tierHits.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// recordTierMiss records a cache-tier miss for an entity kind.
func recordTierMiss(ctx context.Context, entity string) {
	if err := initMetrics(); err != nil {
		return
	}
	tierMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// recordTierFallback records a per-file fall-through to the durable copy.
func recordTierFallback(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	tierFallbacks.Add(ctx, 1)
}

// recordDurableRead records one durable-store read and its duration.
func recordDurableRead(ctx context.Context, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	durableReads.Add(ctx, 1)
	durableLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("op", "read")),
	)
}

// recordDurableWrite records one durable-store write and its duration.
func recordDurableWrite(ctx context.Context, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	durableWrites.Add(ctx, 1)
	durableLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("op", "write")),
	)
}

// recordCacheError records a swallowed cache failure.
func recordCacheError(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheErrorTotal.Add(ctx, 1)
}

// startStorageSpan creates a span for a manager operation.
func startStorageSpan(ctx context.Context, operation, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "SnapshotStorage."+operation,
		trace.WithAttributes(
			attribute.String("storage.operation", operation),
			attribute.String("storage.id", id),
		),
	)
}
