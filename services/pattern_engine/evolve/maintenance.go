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
	"log/slog"
	"time"
)

// Run executes the maintenance loop until the context is canceled.
//
// # Description
//
// Each tick prunes usage records and inactive variants older than the
// retention threshold. Cleanup problems are logged, never propagated:
// maintenance keeps running as long as the context lives.
//
// # Inputs
//
//   - ctx: Cancel to stop the loop.
//
// # Outputs
//
//   - error: The context's error after cancellation.
//
// # Thread Safety
//
// Run blocks; start it on its own goroutine. Multiple concurrent Run
// calls are safe but pointless.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.maintenanceInterval)
	defer ticker.Stop()

	e.logger.Info("evolution maintenance started",
		slog.Duration("interval", e.maintenanceInterval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("evolution maintenance stopped")
			return ctx.Err()
		case <-ticker.C:
			removedUsage, removedVariants := e.CleanupOldData()
			if removedUsage > 0 || removedVariants > 0 {
				e.logger.Info("evolution maintenance pass",
					slog.Int("removed_usage", removedUsage),
					slog.Int("removed_variants", removedVariants))
			}
		}
	}
}

// CleanupOldData prunes usage records and inactive variants older than
// the retention threshold. Returns the number of records and variants
// removed.
func (e *Engine) CleanupOldData() (removedUsage, removedVariants int) {
	cutoff := e.now().Add(-e.retention).UnixMilli()

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.usage[:0]
	for _, rec := range e.usage {
		if rec.Timestamp >= cutoff {
			kept = append(kept, rec)
		} else {
			removedUsage++
		}
	}
	e.usage = kept

	keptVariants := e.variants[:0]
	for _, v := range e.variants {
		if !v.Active && v.CreatedAt < cutoff {
			delete(e.variantByID, v.ID)
			removedVariants++
			continue
		}
		keptVariants = append(keptVariants, v)
	}
	e.variants = keptVariants

	if removedUsage > 0 {
		e.saveUsageLocked()
	}
	if removedVariants > 0 {
		e.saveVariantsLocked()
	}
	return removedUsage, removedVariants
}
