// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads per-project analysis settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up relative to the analyzed project root.
const ConfigFileName = "seam.config.yaml"

// Config holds user-provided overrides for an analysis run.
//
// Description:
//
//	Loaded from <projectRoot>/seam.config.yaml. All fields are optional;
//	a missing config file is not an error (zero-config works out of the
//	box).
//
// Thread Safety: Safe for concurrent reads after construction.
type Config struct {
	// Workers bounds graph-build and plan/verify parallelism.
	// Zero means one worker per CPU.
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`

	// MaxNodes and MaxEdges cap graph size. Zero keeps the defaults.
	MaxNodes int `yaml:"max_nodes" validate:"gte=0"`
	MaxEdges int `yaml:"max_edges" validate:"gte=0"`

	// ClassifierPriority reorders pattern precedence for call-edge
	// tie-breaks. Names must parse as pattern kinds.
	// Example: ["GlobalSingleton", "NakedStaticCall"]
	ClassifierPriority []string `yaml:"classifier_priority"`

	// ImpurePackagePrefixes marks any call into these package/path
	// prefixes as crossing the impure boundary.
	// Example: ["net/", "os/", "database/"]
	ImpurePackagePrefixes []string `yaml:"impure_package_prefixes"`

	// GlobalAccessorNames marks methods with these names as global state
	// accessors even when the adapter did not flag them.
	// Example: ["instance", "shared", "getInstance"]
	GlobalAccessorNames []string `yaml:"global_accessor_names"`

	// CollectAll makes the verifier report every violation instead of
	// stopping at the first failed check.
	CollectAll bool `yaml:"collect_all"`

	// RateLimitRPS and RateLimitBurst tune the HTTP surface's limiter.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" validate:"gte=0"`

	// StoragePath is the Badger directory for snapshots and the applied
	// ledger. Empty disables persistence.
	StoragePath string `yaml:"storage_path"`

	// WatchDebounceMillis is the quiet period after a filesystem event
	// before a re-analysis triggers. Zero keeps the default.
	WatchDebounceMillis int `yaml:"watch_debounce_millis" validate:"gte=0"`
}

var validate = validator.New()

// Load reads seam.config.yaml from the project root.
//
// Description:
//
//	If the project root is empty or the file does not exist, returns an
//	empty config with no error. Only returns an error if the file exists
//	but cannot be parsed or fails validation.
//
// Inputs:
//
//	projectRoot - Absolute path to the project root. May be empty.
//
// Outputs:
//
//	Config - The parsed config, or empty config if the file is missing.
//	error - Non-nil only for invalid YAML or out-of-range values.
//
// Thread Safety: Safe for concurrent use (stateless function).
func Load(projectRoot string) (Config, error) {
	if projectRoot == "" {
		return Config{}, nil
	}

	configPath := filepath.Join(projectRoot, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}
	if err := validate.Struct(&config); err != nil {
		return Config{}, fmt.Errorf("validating %s: %w", ConfigFileName, err)
	}
	return config, nil
}
