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
	"fmt"

	"github.com/google/uuid"
)

// CreateVariant registers an experimental derivative of a pattern.
//
// # Description
//
// The parent must have recorded usage. Each parent keeps at most
// MaxActiveVariants stored variants: at the cap, the oldest inactive
// variant is evicted to make room; when every stored variant is still
// active the call refuses with ErrVariantLimit. The new variant's version
// is the active count plus one.
//
// # Outputs
//
//   - *Variant: The created variant (a copy).
//   - error: ErrPatternNotFound or ErrVariantLimit.
func (e *Engine) CreateVariant(parentID, description string) (*Variant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.metrics[parentID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, parentID)
	}

	stored := 0
	active := 0
	var oldestInactive *Variant
	for _, v := range e.variants {
		if v.ParentID != parentID {
			continue
		}
		stored++
		if v.Active {
			active++
			continue
		}
		if oldestInactive == nil || v.CreatedAt < oldestInactive.CreatedAt {
			oldestInactive = v
		}
	}

	if stored >= e.maxActiveVariants {
		if oldestInactive == nil {
			return nil, fmt.Errorf("%w: pattern %s has %d active variants",
				ErrVariantLimit, parentID, active)
		}
		e.removeVariantLocked(oldestInactive.ID)
	}

	variant := &Variant{
		ID:          uuid.NewString(),
		ParentID:    parentID,
		Version:     active + 1,
		Description: description,
		Active:      true,
		CreatedAt:   e.now().UnixMilli(),
	}
	e.variants = append(e.variants, variant)
	e.variantByID[variant.ID] = variant
	e.saveVariantsLocked()

	out := *variant
	return &out, nil
}

// DeactivateVariant retires a variant from competition without deleting
// its history.
func (e *Engine) DeactivateVariant(variantID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.variantByID[variantID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
	}
	v.Active = false
	e.saveVariantsLocked()
	return nil
}

// Variants returns all stored variants of a parent pattern.
func (e *Engine) Variants(parentID string) []Variant {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Variant, 0)
	for _, v := range e.variants {
		if v.ParentID == parentID {
			out = append(out, *v)
		}
	}
	return out
}

// BestVariant returns the active variant with the highest evolution
// score. Variants accrue their own metrics through RecordUsage with the
// variant id; an unused variant scores zero.
func (e *Engine) BestVariant(parentID string) (*Variant, float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var best *Variant
	bestScore := -1.0
	for _, v := range e.variants {
		if v.ParentID != parentID || !v.Active {
			continue
		}
		score := 0.0
		if m, ok := e.metrics[v.ID]; ok {
			score = m.EvolutionScore()
		}
		if score > bestScore {
			best = v
			bestScore = score
		}
	}
	if best == nil {
		return nil, 0, fmt.Errorf("%w: no active variants for %s", ErrVariantNotFound, parentID)
	}
	out := *best
	return &out, bestScore, nil
}

// removeVariantLocked deletes a variant from storage. Caller holds the
// lock.
func (e *Engine) removeVariantLocked(variantID string) {
	delete(e.variantByID, variantID)
	for i, v := range e.variants {
		if v.ID == variantID {
			e.variants = append(e.variants[:i], e.variants[i+1:]...)
			return
		}
	}
}
