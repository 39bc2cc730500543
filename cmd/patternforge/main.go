// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command patternforge learns code patterns from source files, detects
// anti-patterns, suggests improvements, and evolves its learned
// patterns from usage feedback.
//
// Usage:
//
//	patternforge analyze ./service.py
//	patternforge learn ./src/*.py
//	patternforge suggest ./service.py --min-confidence 0.6
//	patternforge evolve show <pattern-id>
//	patternforge repo list
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/patternforge/pkg/logging"
	"github.com/AleutianAI/patternforge/services/pattern_engine"
)

var (
	flagConfigPath string
	flagDataDir    string
	flagLogLevel   string
	flagJSON       bool
)

var rootCmd = &cobra.Command{
	Use:           "patternforge",
	Short:         "Learn code patterns, detect anti-patterns, and evolve them from feedback",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", defaultConfigPath(),
		"path to the patternforge config file")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "",
		"override the data directory from the config")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false,
		"emit machine-readable JSON on stdout")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "patternforge.yaml"
	}
	return filepath.Join(home, ".patternforge", "patternforge.yaml")
}

// newService loads the config and wires the engine. The caller must
// Close the returned service.
func newService() (*pattern_engine.Service, error) {
	cfg, err := pattern_engine.LoadServiceConfig(flagConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}

	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(flagLogLevel),
		Service: "patternforge",
	})
	if err != nil {
		return nil, err
	}

	return pattern_engine.NewService(cfg,
		pattern_engine.WithServiceLogger(logger.Logger))
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
