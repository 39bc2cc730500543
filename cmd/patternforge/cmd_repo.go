// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/patternforge/services/pattern_engine/team"
)

var (
	repoUser        string
	repoDescription string
	repoTags        []string
	repoPublic      bool
	repoMergePolicy string
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage shared pattern repositories",
}

var repoCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a shared repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoCreate,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repositories",
	Args:  cobra.NoArgs,
	RunE:  runRepoList,
}

var repoSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search repositories by name, description, tag, or owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoSearch,
}

var repoStatsCmd = &cobra.Command{
	Use:   "stats <repo-id>",
	Short: "Show repository statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoStats,
}

var repoShareCmd = &cobra.Command{
	Use:   "share <repo-id> <pattern-id>",
	Short: "Share a learned pattern into a repository",
	Args:  cobra.ExactArgs(2),
	RunE:  runRepoShare,
}

var repoForkCmd = &cobra.Command{
	Use:   "fork <repo-id> <new-name>",
	Short: "Fork a repository",
	Args:  cobra.ExactArgs(2),
	RunE:  runRepoFork,
}

var repoMergeCmd = &cobra.Command{
	Use:   "merge <source-id> <target-id>",
	Short: "Merge one repository's patterns into another",
	Args:  cobra.ExactArgs(2),
	RunE:  runRepoMerge,
}

var repoExportCmd = &cobra.Command{
	Use:   "export <repo-id> <file>",
	Short: "Export a repository to a JSON file",
	Args:  cobra.ExactArgs(2),
	RunE:  runRepoExport,
}

var repoImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a repository from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoImport,
}

func init() {
	repoCmd.PersistentFlags().StringVar(&repoUser, "user", defaultUser(),
		"user performing the operation")
	repoCreateCmd.Flags().StringVar(&repoDescription, "description", "", "repository description")
	repoCreateCmd.Flags().StringSliceVar(&repoTags, "tag", nil, "repository tags")
	repoCreateCmd.Flags().BoolVar(&repoPublic, "public", false, "make the repository public")
	repoMergeCmd.Flags().StringVar(&repoMergePolicy, "policy", string(team.MergeNewerWins),
		"conflict policy: source_wins, target_wins, newer_wins")

	repoCmd.AddCommand(repoCreateCmd, repoListCmd, repoSearchCmd, repoStatsCmd,
		repoShareCmd, repoForkCmd, repoMergeCmd, repoExportCmd, repoImportCmd)
	rootCmd.AddCommand(repoCmd)
}

func defaultUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func runRepoCreate(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	repo, err := svc.Repositories().CreateRepository(args[0], repoDescription, repoUser, repoTags, repoPublic)
	if err != nil {
		return err
	}
	if flagJSON {
		return outputJSON(repo)
	}
	fmt.Printf("created repository %s (%s)\n", repo.Name, repo.ID)
	return nil
}

func runRepoList(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	return printRepositories(svc.Repositories().ListRepositories())
}

func runRepoSearch(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	return printRepositories(svc.Repositories().SearchRepositories(args[0]))
}

func printRepositories(repos []team.Repository) error {
	if flagJSON {
		return outputJSON(repos)
	}
	if len(repos) == 0 {
		fmt.Println("no repositories")
		return nil
	}
	for _, r := range repos {
		updated := time.UnixMilli(r.UpdatedAt).Format("2006-01-02")
		fmt.Printf("%s  %-24s %3d patterns  owner=%s  updated=%s\n",
			r.ID, r.Name, len(r.Patterns), r.Owner, updated)
	}
	return nil
}

func runRepoStats(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Repositories().Stats(args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return outputJSON(stats)
	}
	fmt.Printf("patterns:     %d\n", stats.PatternCount)
	fmt.Printf("contributors: %d\n", stats.ContributorCount)
	fmt.Printf("total usage:  %d\n", stats.TotalUsage)
	for category, n := range stats.ByCategory {
		fmt.Printf("  %s: %d\n", category, n)
	}
	return nil
}

func runRepoShare(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	pattern, ok := svc.Pattern(args[1])
	if !ok {
		return fmt.Errorf("pattern not found: %s", args[1])
	}
	shared, err := svc.Repositories().AddPattern(args[0], pattern, repoUser)
	if err != nil {
		return err
	}
	fmt.Printf("shared %s into %s\n", shared.ID, shared.RepositoryID)
	return nil
}

func runRepoFork(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	fork, err := svc.Repositories().ForkRepository(args[0], args[1], repoUser)
	if err != nil {
		return err
	}
	fmt.Printf("forked into %s (%s)\n", fork.Name, fork.ID)
	return nil
}

func runRepoMerge(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Repositories().MergeRepositories(
		args[0], args[1], team.MergePolicy(repoMergePolicy), repoUser)
	if err != nil {
		return err
	}
	if flagJSON {
		return outputJSON(result)
	}
	fmt.Printf("merged %d patterns, %d conflicts (%s)\n",
		result.Merged, result.Conflicts, result.Policy)
	return nil
}

func runRepoExport(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	data, err := svc.Repositories().ExportRepository(args[0])
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], data, 0644)
}

func runRepoImport(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	repo, err := svc.Repositories().ImportRepository(data, repoUser)
	if err != nil {
		return err
	}
	fmt.Printf("imported repository %s (%s)\n", repo.Name, repo.ID)
	return nil
}
