// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package team

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPolicy is returned for merge policies outside the known
	// set.
	ErrInvalidPolicy = errors.New("invalid merge policy")

	// ErrInvalidRepository is returned when an imported repository
	// document fails validation.
	ErrInvalidRepository = errors.New("invalid repository document")

	// ErrMissingUser is returned when an operation requires a user.
	ErrMissingUser = errors.New("user is required")
)

// RepositoryNotFoundError reports a lookup for an unknown repository.
type RepositoryNotFoundError struct {
	ID string
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("repository not found: %s", e.ID)
}

// PatternNotFoundError reports a lookup for an unknown pattern within a
// repository.
type PatternNotFoundError struct {
	RepositoryID string
	PatternID    string
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("pattern %s not found in repository %s", e.PatternID, e.RepositoryID)
}
