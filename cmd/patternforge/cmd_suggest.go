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

var suggestMinConfidence float64

var suggestCmd = &cobra.Command{
	Use:   "suggest <file>",
	Short: "Suggest improvements for a file based on learned patterns",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

func init() {
	suggestCmd.Flags().Float64Var(&suggestMinConfidence, "min-confidence", 0.5,
		"drop suggestions below this confidence")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	suggestions, err := svc.Suggest(cmd.Context(), args[0], suggestMinConfidence)
	if err != nil {
		return err
	}

	if flagJSON {
		return outputJSON(suggestions)
	}
	if len(suggestions) == 0 {
		fmt.Println("no suggestions")
		return nil
	}
	for _, s := range suggestions {
		fmt.Printf("line %-4d %-24s conf=%.2f  %s\n",
			s.Line, s.Type, s.Confidence, s.Description)
	}
	return nil
}
