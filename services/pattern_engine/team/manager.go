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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/patternforge/services/pattern_engine/learn"
	"github.com/AleutianAI/patternforge/services/pattern_engine/store"
)

// Persisted document names.
const (
	repositoriesDocumentName  = "repositories.json"
	contributionsDocumentName = "contributions.json"
)

// DefaultStaleAfter is how long an untouched single-contributor
// repository survives cleanup.
const DefaultStaleAfter = 365 * 24 * time.Hour

// Manager owns shared pattern repositories and their contribution log.
//
// # Thread Safety
//
// Safe for concurrent use; all state is guarded by an RWMutex. Accessors
// return copies, never internal pointers.
type Manager struct {
	mu            sync.RWMutex
	repos         map[string]*Repository
	contributions []Contribution

	staleAfter time.Duration
	dir        *store.Directory
	logger     *slog.Logger
	now        func() time.Time
	validate   *validator.Validate
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore enables persistence through the given document store.
func WithStore(dir *store.Directory) Option {
	return func(m *Manager) { m.dir = dir }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStaleAfter overrides the stale-repository threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// NewManager creates a repository manager, loading persisted state when a
// store is configured.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		repos:      make(map[string]*Repository),
		staleAfter: DefaultStaleAfter,
		logger:     slog.Default(),
		now:        time.Now,
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.dir != nil {
		var repos map[string]*Repository
		if err := m.dir.Load(repositoriesDocumentName, &repos); err != nil {
			return nil, fmt.Errorf("load repositories: %w", err)
		}
		if repos != nil {
			m.repos = repos
		}
		if err := m.dir.Load(contributionsDocumentName, &m.contributions); err != nil {
			return nil, fmt.Errorf("load contributions: %w", err)
		}
	}
	return m, nil
}

// CreateRepository creates a new shared repository owned by owner.
func (m *Manager) CreateRepository(name, description, owner string, tags []string, isPublic bool) (*Repository, error) {
	if owner == "" {
		return nil, ErrMissingUser
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRepository)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	nowMs := m.now().UnixMilli()
	repo := &Repository{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		Owner:        owner,
		CreatedAt:    nowMs,
		UpdatedAt:    nowMs,
		Patterns:     make(map[string]*SharedPattern),
		Contributors: []string{owner},
		Tags:         tags,
		Version:      repositoryVersion,
		IsPublic:     isPublic,
	}
	m.repos[repo.ID] = repo
	m.logContributionLocked(repo.ID, "", owner, ActionCreateRepo, fmt.Sprintf("created repository %q", name))
	m.saveLocked()

	return copyRepository(repo), nil
}

// GetRepository returns a copy of one repository.
func (m *Manager) GetRepository(id string) (*Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repo, ok := m.repos[id]
	if !ok {
		return nil, &RepositoryNotFoundError{ID: id}
	}
	return copyRepository(repo), nil
}

// ListRepositories returns copies of all repositories sorted by name.
func (m *Manager) ListRepositories() []Repository {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Repository, 0, len(m.repos))
	for _, repo := range m.repos {
		out = append(out, *copyRepository(repo))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddPattern contributes a learned pattern to a repository. An existing
// pattern id is updated in place.
func (m *Manager) AddPattern(repoID string, pattern learn.Pattern, user string) (*SharedPattern, error) {
	if user == "" {
		return nil, ErrMissingUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo, ok := m.repos[repoID]
	if !ok {
		return nil, &RepositoryNotFoundError{ID: repoID}
	}

	nowMs := m.now().UnixMilli()
	action := ActionAdd
	shared, exists := repo.Patterns[pattern.ID]
	if exists {
		action = ActionUpdate
		shared.Pattern = pattern
		shared.UpdatedBy = user
		shared.SharedUpdatedAt = nowMs
	} else {
		shared = &SharedPattern{
			Pattern:         pattern,
			RepositoryID:    repoID,
			AddedBy:         user,
			AddedAt:         nowMs,
			SharedUpdatedAt: nowMs,
		}
		repo.Patterns[pattern.ID] = shared
	}

	m.touchLocked(repo, user, nowMs)
	m.logContributionLocked(repoID, pattern.ID, user, action, pattern.Name)
	m.saveLocked()

	out := *shared
	return &out, nil
}

// RemovePattern deletes a pattern from a repository.
func (m *Manager) RemovePattern(repoID, patternID, user string) error {
	if user == "" {
		return ErrMissingUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo, ok := m.repos[repoID]
	if !ok {
		return &RepositoryNotFoundError{ID: repoID}
	}
	if _, ok := repo.Patterns[patternID]; !ok {
		return &PatternNotFoundError{RepositoryID: repoID, PatternID: patternID}
	}

	delete(repo.Patterns, patternID)
	m.touchLocked(repo, user, m.now().UnixMilli())
	m.logContributionLocked(repoID, patternID, user, ActionDelete, "")
	m.saveLocked()
	return nil
}

// ForkRepository copies a repository for a new owner. Every copied
// pattern is stamped with the source repository and its original id.
func (m *Manager) ForkRepository(sourceID, newName, owner string) (*Repository, error) {
	if owner == "" {
		return nil, ErrMissingUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.repos[sourceID]
	if !ok {
		return nil, &RepositoryNotFoundError{ID: sourceID}
	}

	nowMs := m.now().UnixMilli()
	fork := &Repository{
		ID:           uuid.NewString(),
		Name:         newName,
		Description:  source.Description,
		Owner:        owner,
		CreatedAt:    nowMs,
		UpdatedAt:    nowMs,
		Patterns:     make(map[string]*SharedPattern, len(source.Patterns)),
		Contributors: unionContributors(source.Contributors, owner),
		Tags:         append([]string(nil), source.Tags...),
		Version:      repositoryVersion,
		IsPublic:     source.IsPublic,
		ForkedFrom:   sourceID,
	}
	for id, p := range source.Patterns {
		copied := *p
		copied.RepositoryID = fork.ID
		copied.ForkedFrom = sourceID
		copied.OriginalPatternID = id
		fork.Patterns[id] = &copied
	}

	m.repos[fork.ID] = fork
	m.logContributionLocked(fork.ID, "", owner, ActionFork,
		fmt.Sprintf("forked from %q", source.Name))
	m.saveLocked()

	return copyRepository(fork), nil
}

// MergeRepositories merges the source repository's patterns into the
// target.
//
// # Description
//
// Pattern ids are visited in sorted order so merges are deterministic.
// Ids absent from the target are copied. Colliding ids count as
// conflicts and resolve per policy: source_wins replaces, target_wins
// keeps, newer_wins compares shared update timestamps. The source's
// contributors join the target's, and one summary contribution records
// the merge.
func (m *Manager) MergeRepositories(sourceID, targetID string, policy MergePolicy, user string) (*MergeResult, error) {
	if user == "" {
		return nil, ErrMissingUser
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicy, policy)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.repos[sourceID]
	if !ok {
		return nil, &RepositoryNotFoundError{ID: sourceID}
	}
	target, ok := m.repos[targetID]
	if !ok {
		return nil, &RepositoryNotFoundError{ID: targetID}
	}

	result := &MergeResult{SourceID: sourceID, TargetID: targetID, Policy: policy}
	nowMs := m.now().UnixMilli()

	ids := make([]string, 0, len(source.Patterns))
	for id := range source.Patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		srcPattern := source.Patterns[id]
		existing, collision := target.Patterns[id]
		if !collision {
			copied := *srcPattern
			copied.RepositoryID = targetID
			copied.UpdatedBy = user
			copied.SharedUpdatedAt = nowMs
			target.Patterns[id] = &copied
			result.Merged++
			continue
		}

		result.Conflicts++
		replace := false
		switch policy {
		case MergeSourceWins:
			replace = true
		case MergeTargetWins:
			replace = false
		case MergeNewerWins:
			replace = srcPattern.SharedUpdatedAt > existing.SharedUpdatedAt
		}
		if replace {
			copied := *srcPattern
			copied.RepositoryID = targetID
			copied.UpdatedBy = user
			copied.SharedUpdatedAt = nowMs
			target.Patterns[id] = &copied
		}
	}

	for _, contributor := range source.Contributors {
		target.Contributors = unionContributors(target.Contributors, contributor)
	}

	m.touchLocked(target, user, nowMs)
	m.logContributionLocked(targetID, "", user, ActionMerge,
		fmt.Sprintf("merged %d patterns from %q (%d conflicts, %s)",
			result.Merged, source.Name, result.Conflicts, policy))
	m.saveLocked()
	return result, nil
}

// SearchRepositories finds repositories matching a case-insensitive
// query against name, description, tags, and owner. Results are sorted
// by last update then contributor count, both descending.
func (m *Manager) SearchRepositories(query string) []Repository {
	q := strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Repository, 0)
	for _, repo := range m.repos {
		if repositoryMatches(repo, q) {
			out = append(out, *copyRepository(repo))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return len(out[i].Contributors) > len(out[j].Contributors)
	})
	return out
}

// Stats aggregates one repository's contents.
func (m *Manager) Stats(repoID string) (*RepositoryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repo, ok := m.repos[repoID]
	if !ok {
		return nil, &RepositoryNotFoundError{ID: repoID}
	}

	stats := &RepositoryStats{
		RepositoryID:     repoID,
		PatternCount:     len(repo.Patterns),
		ContributorCount: len(repo.Contributors),
		ByCategory:       make(map[string]int),
		ByLanguage:       make(map[string]int),
	}
	for _, p := range repo.Patterns {
		stats.ByCategory[p.Category]++
		stats.ByLanguage[p.Language]++
		stats.TotalUsage += p.UsageCount
	}
	return stats, nil
}

// RecentActivity returns the latest contributions for a repository,
// newest first.
func (m *Manager) RecentActivity(repoID string, limit int) []Contribution {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Contribution, 0, limit)
	for _, c := range m.contributions {
		if c.RepositoryID == repoID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UserContributions returns all contributions by one user, newest first.
func (m *Manager) UserContributions(user string) []Contribution {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Contribution, 0)
	for _, c := range m.contributions {
		if c.User == user {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// ExportRepository serializes one repository to JSON.
func (m *Manager) ExportRepository(repoID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repo, ok := m.repos[repoID]
	if !ok {
		return nil, &RepositoryNotFoundError{ID: repoID}
	}
	data, err := json.MarshalIndent(repo, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode repository: %w", err)
	}
	return data, nil
}

// ImportRepository loads an exported repository document. The document
// is validated before any state changes; an id collision with an
// existing repository gets a fresh id.
func (m *Manager) ImportRepository(data []byte, user string) (*Repository, error) {
	if user == "" {
		return nil, ErrMissingUser
	}

	var repo Repository
	if err := json.Unmarshal(data, &repo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRepository, err)
	}
	if err := m.validate.Struct(&repo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRepository, err)
	}
	if repo.Patterns == nil {
		repo.Patterns = make(map[string]*SharedPattern)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.repos[repo.ID]; exists {
		fresh := uuid.NewString()
		m.logger.Info("imported repository id collides, regenerating",
			slog.String("old_id", repo.ID),
			slog.String("new_id", fresh))
		repo.ID = fresh
		for _, p := range repo.Patterns {
			p.RepositoryID = fresh
		}
	}

	m.repos[repo.ID] = &repo
	m.logContributionLocked(repo.ID, "", user, ActionImport,
		fmt.Sprintf("imported repository %q with %d patterns", repo.Name, len(repo.Patterns)))
	m.saveLocked()

	return copyRepository(&repo), nil
}

// CleanupStaleRepositories deletes repositories untouched past the stale
// threshold that never attracted a second contributor. Returns the
// number removed.
func (m *Manager) CleanupStaleRepositories() int {
	cutoff := m.now().Add(-m.staleAfter).UnixMilli()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, repo := range m.repos {
		if repo.UpdatedAt < cutoff && len(repo.Contributors) <= 1 {
			delete(m.repos, id)
			removed++
			m.logger.Info("removed stale repository",
				slog.String("id", id),
				slog.String("name", repo.Name))
		}
	}
	if removed > 0 {
		m.saveLocked()
	}
	return removed
}

// touchLocked updates a repository's timestamp and contributor set.
// Caller holds the lock.
func (m *Manager) touchLocked(repo *Repository, user string, nowMs int64) {
	repo.UpdatedAt = nowMs
	repo.Contributors = unionContributors(repo.Contributors, user)
}

// logContributionLocked appends one audit entry. Caller holds the lock.
func (m *Manager) logContributionLocked(repoID, patternID, user, action, details string) {
	m.contributions = append(m.contributions, Contribution{
		ID:           uuid.NewString(),
		RepositoryID: repoID,
		PatternID:    patternID,
		User:         user,
		Action:       action,
		Details:      details,
		Timestamp:    m.now().UnixMilli(),
	})
}

// saveLocked persists state when a store is configured. Caller holds the
// lock.
func (m *Manager) saveLocked() {
	if m.dir == nil {
		return
	}
	if err := m.dir.Save(repositoriesDocumentName, m.repos); err != nil {
		m.logger.Warn("failed to persist repositories", slog.Any("error", err))
	}
	if err := m.dir.Save(contributionsDocumentName, m.contributions); err != nil {
		m.logger.Warn("failed to persist contributions", slog.Any("error", err))
	}
}

func copyRepository(repo *Repository) *Repository {
	out := *repo
	out.Patterns = make(map[string]*SharedPattern, len(repo.Patterns))
	for id, p := range repo.Patterns {
		copied := *p
		out.Patterns[id] = &copied
	}
	out.Contributors = append([]string(nil), repo.Contributors...)
	out.Tags = append([]string(nil), repo.Tags...)
	return &out
}

func unionContributors(contributors []string, user string) []string {
	for _, c := range contributors {
		if c == user {
			return contributors
		}
	}
	return append(contributors, user)
}

func repositoryMatches(repo *Repository, query string) bool {
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(repo.Name), query) ||
		strings.Contains(strings.ToLower(repo.Description), query) ||
		strings.Contains(strings.ToLower(repo.Owner), query) {
		return true
	}
	for _, tag := range repo.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
