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
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Detect anti-patterns and score code quality",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	for _, path := range args {
		report, err := svc.AnalyzeFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", path, err)
		}

		if flagJSON {
			if err := outputJSON(report); err != nil {
				return err
			}
			continue
		}

		fmt.Println(report.String())
		for _, d := range report.Detections {
			fmt.Printf("  [%s] %s:%d %s\n", d.Severity, d.RuleID, d.Line, d.Message)
			if d.Suggestion != "" {
				fmt.Printf("      suggestion: %s\n", d.Suggestion)
			}
		}
	}
	return nil
}
