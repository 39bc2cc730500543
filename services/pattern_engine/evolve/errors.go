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

import "errors"

var (
	// ErrPatternNotFound is returned when no metrics exist for the
	// requested pattern id.
	ErrPatternNotFound = errors.New("pattern has no recorded usage")

	// ErrVariantNotFound is returned when no variant exists with the
	// requested id.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrVariantLimit is returned when a parent pattern is at its
	// active-variant cap and no inactive variant can be evicted.
	ErrVariantLimit = errors.New("active variant limit reached")

	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrUnknownAction is returned when a persisted rule carries an
	// action outside the closed set.
	ErrUnknownAction = errors.New("unknown evolution action")
)
