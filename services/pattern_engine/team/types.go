// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package team implements shared pattern repositories: named collections
// of learned patterns that users create, contribute to, fork, merge, and
// search.
package team

import (
	"github.com/AleutianAI/patternforge/services/pattern_engine/learn"
)

// Contribution actions.
const (
	ActionAdd        = "add"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionMerge      = "merge"
	ActionFork       = "fork"
	ActionImport     = "import"
	ActionCreateRepo = "create_repo"
)

// MergePolicy decides how pattern id conflicts resolve during a merge.
type MergePolicy string

const (
	// MergeSourceWins replaces the target's pattern with the source's.
	MergeSourceWins MergePolicy = "source_wins"

	// MergeTargetWins keeps the target's pattern.
	MergeTargetWins MergePolicy = "target_wins"

	// MergeNewerWins keeps whichever pattern was updated most recently.
	MergeNewerWins MergePolicy = "newer_wins"
)

// Valid reports whether the policy is one of the known values.
func (p MergePolicy) Valid() bool {
	switch p {
	case MergeSourceWins, MergeTargetWins, MergeNewerWins:
		return true
	}
	return false
}

// SharedPattern is a learned pattern plus its sharing metadata.
type SharedPattern struct {
	learn.Pattern

	// RepositoryID is the repository holding this copy.
	RepositoryID string `json:"repository_id"`

	// AddedBy and AddedAt record the original contribution.
	AddedBy string `json:"added_by"`
	AddedAt int64  `json:"added_at"`

	// UpdatedBy and SharedUpdatedAt record the latest contribution.
	UpdatedBy       string `json:"updated_by,omitempty"`
	SharedUpdatedAt int64  `json:"shared_updated_at"`

	// ForkedFrom is the source repository id when this copy arrived
	// through a fork; OriginalPatternID preserves the pattern's id in
	// that repository.
	ForkedFrom        string `json:"forked_from,omitempty"`
	OriginalPatternID string `json:"original_pattern_id,omitempty"`
}

// Repository is a shared collection of patterns.
type Repository struct {
	// ID is the repository's unique id.
	ID string `json:"id" validate:"required"`

	// Name and Description identify the repository to humans.
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`

	// Owner created the repository.
	Owner string `json:"owner" validate:"required"`

	// CreatedAt and UpdatedAt are UnixMilli timestamps.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	// Patterns maps pattern id to its shared copy.
	Patterns map[string]*SharedPattern `json:"patterns"`

	// Contributors lists users who have contributed, owner included.
	Contributors []string `json:"contributors"`

	// Tags support search.
	Tags []string `json:"tags,omitempty"`

	// Version is the repository format version.
	Version string `json:"version"`

	// IsPublic marks repositories visible outside the owning team.
	IsPublic bool `json:"is_public"`

	// ForkedFrom is the source repository id for forks.
	ForkedFrom string `json:"forked_from,omitempty"`
}

// repositoryVersion is stamped on new repositories.
const repositoryVersion = "1.0.0"

// Contribution is one audit log entry for repository activity.
type Contribution struct {
	// ID is the contribution's unique id.
	ID string `json:"id"`

	// RepositoryID and PatternID locate what was touched. PatternID is
	// empty for repository-level actions.
	RepositoryID string `json:"repository_id"`
	PatternID    string `json:"pattern_id,omitempty"`

	// User performed the action.
	User string `json:"user"`

	// Action is one of the contribution action constants.
	Action string `json:"action"`

	// Details carries an action-specific summary.
	Details string `json:"details,omitempty"`

	// Timestamp is UnixMilli.
	Timestamp int64 `json:"timestamp"`
}

// MergeResult summarizes one repository merge.
type MergeResult struct {
	// SourceID and TargetID identify the merged repositories.
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`

	// Merged counts patterns copied into the target; Conflicts counts
	// id collisions encountered (resolved per policy).
	Merged    int `json:"merged"`
	Conflicts int `json:"conflicts"`

	// Policy is the conflict policy that was applied.
	Policy MergePolicy `json:"policy"`
}

// RepositoryStats aggregates one repository's contents.
type RepositoryStats struct {
	// RepositoryID identifies the repository.
	RepositoryID string `json:"repository_id"`

	// PatternCount and ContributorCount are totals.
	PatternCount     int `json:"pattern_count"`
	ContributorCount int `json:"contributor_count"`

	// ByCategory and ByLanguage count patterns per bucket.
	ByCategory map[string]int `json:"by_category"`
	ByLanguage map[string]int `json:"by_language"`

	// TotalUsage sums the patterns' usage counts.
	TotalUsage int `json:"total_usage"`
}
