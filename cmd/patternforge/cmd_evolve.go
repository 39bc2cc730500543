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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/patternforge/services/pattern_engine/evolve"
)

var (
	recordSuccess  bool
	recordConf     float64
	recordExecTime float64
	recordFeedback string
	recordFile     string
)

var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Record usage and evolve learned patterns",
}

var evolveRecordCmd = &cobra.Command{
	Use:   "record <pattern-id>",
	Short: "Record one pattern application outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvolveRecord,
}

var evolveRunCmd = &cobra.Command{
	Use:   "run <pattern-id>",
	Short: "Apply the evolution rules to a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvolveRun,
}

var evolveShowCmd = &cobra.Command{
	Use:   "show <pattern-id>",
	Short: "Show a pattern's metrics and lifecycle stage",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvolveShow,
}

var evolveImproveCmd = &cobra.Command{
	Use:   "improve <pattern-id>",
	Short: "Suggest improvements for a pattern from its usage data",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvolveImprove,
}

var evolveRateCmd = &cobra.Command{
	Use:   "rate <pattern-id> <rating>",
	Short: "Rate a pattern from 1 to 5",
	Args:  cobra.ExactArgs(2),
	RunE:  runEvolveRate,
}

func init() {
	evolveRecordCmd.Flags().BoolVar(&recordSuccess, "success", true, "whether the application succeeded")
	evolveRecordCmd.Flags().Float64Var(&recordConf, "confidence", 0, "confidence of the application")
	evolveRecordCmd.Flags().Float64Var(&recordExecTime, "exec-time", 0, "execution time in seconds")
	evolveRecordCmd.Flags().StringVar(&recordFeedback, "feedback", "", "free-form user feedback")
	evolveRecordCmd.Flags().StringVar(&recordFile, "file", "", "file the pattern was applied to")

	evolveCmd.AddCommand(evolveRecordCmd, evolveRunCmd, evolveShowCmd, evolveImproveCmd, evolveRateCmd)
	rootCmd.AddCommand(evolveCmd)
}

func runEvolveRecord(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.RecordUsage(cmd.Context(), evolve.UsageRecord{
		PatternID:     args[0],
		Success:       recordSuccess,
		Confidence:    recordConf,
		ExecutionTime: recordExecTime,
		Feedback:      recordFeedback,
		FilePath:      recordFile,
	})
}

func runEvolveRun(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Evolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return outputJSON(result)
	}
	if !result.Eligible {
		fmt.Printf("%s: not enough usage data to evolve\n", result.PatternID)
		return nil
	}
	fmt.Printf("%s: score %.3f, applied rules: %v\n",
		result.PatternID, result.EvolutionScore, result.AppliedRules)
	return nil
}

func runEvolveShow(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Evolution().Lifecycle(args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return outputJSON(report)
	}
	fmt.Printf("pattern:  %s\n", report.PatternID)
	fmt.Printf("stage:    %s\n", report.Stage)
	fmt.Printf("uses:     %d (%.0f%% success)\n", report.TotalUses, report.SuccessRate*100)
	fmt.Printf("trend:    %s\n", report.TrendDirection)
	return nil
}

func runEvolveImprove(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	improvements, err := svc.Evolution().SuggestImprovements(args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return outputJSON(improvements)
	}
	if len(improvements) == 0 {
		fmt.Println("nothing to improve")
		return nil
	}
	for _, imp := range improvements {
		fmt.Printf("[%s] %s: %s\n", imp.Priority, imp.Type, imp.Description)
	}
	return nil
}

func runEvolveRate(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	var rating int
	if _, err := fmt.Sscanf(args[1], "%d", &rating); err != nil {
		return fmt.Errorf("invalid rating %q", args[1])
	}
	return svc.Evolution().AddRating(args[0], rating)
}
