// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pattern_engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig holds the tunables for the pattern engine service.
type ServiceConfig struct {
	// DataDir is where learned patterns, evolution state, and shared
	// repositories persist. Empty disables persistence.
	DataDir string `yaml:"data_dir"`

	// MinConfidence is the floor below which observed code is not
	// learned as a pattern.
	MinConfidence float64 `yaml:"min_confidence"`

	// MinUsesForEvolution gates evolution until a pattern has enough
	// usage data.
	MinUsesForEvolution int `yaml:"min_uses_for_evolution"`

	// UsageHistoryLimit caps retained usage records.
	UsageHistoryLimit int `yaml:"usage_history_limit"`

	// RetentionDays bounds how long usage records and inactive variants
	// survive maintenance.
	RetentionDays int `yaml:"retention_days"`

	// MaintenanceIntervalMinutes is the cadence of the background
	// cleanup loop.
	MaintenanceIntervalMinutes int `yaml:"maintenance_interval_minutes"`

	// MaxActiveVariants caps stored variants per pattern.
	MaxActiveVariants int `yaml:"max_active_variants"`

	// MaxFileSizeBytes bounds source files accepted for analysis.
	MaxFileSizeBytes int `yaml:"max_file_size_bytes"`
}

// DefaultServiceConfig returns the stock configuration rooted under the
// user's home directory.
func DefaultServiceConfig() ServiceConfig {
	dataDir := ".patternforge"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".patternforge")
	}
	return ServiceConfig{
		DataDir:                    dataDir,
		MinConfidence:              0.7,
		MinUsesForEvolution:        10,
		UsageHistoryLimit:          1000,
		RetentionDays:              365,
		MaintenanceIntervalMinutes: 60,
		MaxActiveVariants:          5,
		MaxFileSizeBytes:           10 * 1024 * 1024,
	}
}

// Retention converts the configured retention to a duration.
func (c ServiceConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// MaintenanceInterval converts the configured cadence to a duration.
func (c ServiceConfig) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalMinutes) * time.Minute
}

// LoadServiceConfig reads a YAML config from path, creating it with
// defaults on first run. Fields missing from the file keep their default
// values.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultConfig(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file: %w", err)
	}
	return cfg, nil
}

func writeDefaultConfig(path string, cfg ServiceConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
