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
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/patternforge/services/pattern_engine/learn"
)

// serviceWithPatterns is the slice of the engine the pattern printers
// need.
type serviceWithPatterns interface {
	Patterns(category, language string) []learn.Pattern
}

var (
	learnShowPatterns bool
)

var learnCmd = &cobra.Command{
	Use:   "learn <file>...",
	Short: "Learn patterns and record anti-patterns from source files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLearn,
}

var patternsCmd = &cobra.Command{
	Use:   "patterns [category]",
	Short: "List learned patterns, optionally filtered by category",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPatterns,
}

var antiPatternsCmd = &cobra.Command{
	Use:   "antipatterns",
	Short: "List anti-patterns observed during learning",
	Args:  cobra.NoArgs,
	RunE:  runAntiPatterns,
}

func init() {
	learnCmd.Flags().BoolVar(&learnShowPatterns, "show-patterns", false,
		"print learned patterns after the batch")
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(antiPatternsCmd)
}

func runAntiPatterns(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	records := svc.AntiPatterns()
	if flagJSON {
		return outputJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("no anti-patterns observed")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s:%d [%s] %s\n", r.FilePath, r.Line, r.Category, r.Reason)
		if r.Alternative != "" {
			fmt.Printf("    instead: %s\n", r.Alternative)
		}
	}
	return nil
}

func runLearn(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	results, err := svc.LearnFromFiles(cmd.Context(), args)
	if err != nil {
		return err
	}

	if flagJSON {
		return outputJSON(results)
	}

	paths := make([]string, 0, len(results))
	for path := range results {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		r := results[path]
		fmt.Printf("%s: %d patterns, %d anti-patterns, %d suggestions, score %.1f\n",
			path, r.Analysis.PatternsLearned, r.Analysis.AntiPatternsFound,
			len(r.Suggestions), r.Analysis.Score)
	}
	if skipped := len(args) - len(results); skipped > 0 {
		fmt.Printf("(%d files skipped)\n", skipped)
	}

	if learnShowPatterns {
		return printPatterns(svc, "")
	}
	return nil
}

func runPatterns(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	category := ""
	if len(args) == 1 {
		category = args[0]
	}
	return printPatterns(svc, category)
}

func printPatterns(svc serviceWithPatterns, category string) error {
	patterns := svc.Patterns(category, "")
	if flagJSON {
		return outputJSON(patterns)
	}
	if len(patterns) == 0 {
		fmt.Println("no patterns learned yet")
		return nil
	}
	for _, p := range patterns {
		fmt.Printf("%s  %-28s conf=%.2f uses=%d  %s\n",
			p.ID, p.PatternType, p.Confidence, p.UsageCount, p.Language)
	}
	return nil
}
