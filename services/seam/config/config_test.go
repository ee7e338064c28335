// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return dir
}

func TestLoadMissingFileIsZeroConfig(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Config{}) {
		t.Errorf("Load() = %+v, want zero config", cfg)
	}
}

func TestLoadEmptyRootIsZeroConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Config{}) {
		t.Errorf("Load(\"\") = %+v, want zero config", cfg)
	}
}

func TestLoadParsesFields(t *testing.T) {
	dir := writeConfig(t, `
workers: 8
max_nodes: 100000
classifier_priority:
  - global_singleton
  - naked_static_call
impure_package_prefixes:
  - net/
  - os/
global_accessor_names:
  - sharedInstance
collect_all: true
rate_limit_rps: 25.5
rate_limit_burst: 50
storage_path: /tmp/seam-store
watch_debounce_millis: 250
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 8 || cfg.MaxNodes != 100000 {
		t.Errorf("workers/max_nodes = %d/%d, want 8/100000", cfg.Workers, cfg.MaxNodes)
	}
	if len(cfg.ClassifierPriority) != 2 || cfg.ClassifierPriority[0] != "global_singleton" {
		t.Errorf("classifier_priority = %v", cfg.ClassifierPriority)
	}
	if len(cfg.ImpurePackagePrefixes) != 2 || len(cfg.GlobalAccessorNames) != 1 {
		t.Errorf("prefix/accessor lists = %v / %v", cfg.ImpurePackagePrefixes, cfg.GlobalAccessorNames)
	}
	if !cfg.CollectAll || cfg.RateLimitRPS != 25.5 || cfg.RateLimitBurst != 50 {
		t.Errorf("collect_all/rate limits = %v/%v/%v", cfg.CollectAll, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.StoragePath != "/tmp/seam-store" || cfg.WatchDebounceMillis != 250 {
		t.Errorf("storage/debounce = %q/%d", cfg.StoragePath, cfg.WatchDebounceMillis)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := writeConfig(t, "workers: [not an int\n")
	if _, err := Load(dir); err == nil {
		t.Error("Load() accepted malformed YAML")
	}
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	dir := writeConfig(t, "workers: -1\n")
	if _, err := Load(dir); err == nil {
		t.Error("Load() accepted negative workers")
	}

	dir = writeConfig(t, "workers: 4096\n")
	if _, err := Load(dir); err == nil {
		t.Error("Load() accepted workers above the cap")
	}
}
