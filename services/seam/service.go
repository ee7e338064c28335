// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package seam exposes the dependency-seam analysis engine over HTTP.
package seam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/seamkit/seamkit/services/seam/adapter"
	"github.com/seamkit/seamkit/services/seam/classify"
	"github.com/seamkit/seamkit/services/seam/config"
	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/index"
	"github.com/seamkit/seamkit/services/seam/patch"
	"github.com/seamkit/seamkit/services/seam/pipeline"
	"github.com/seamkit/seamkit/services/seam/verify"
)

// ServiceConfig configures the analysis service.
type ServiceConfig struct {
	// MaxCachedRuns bounds the in-memory run registry. The oldest run is
	// evicted when the bound is exceeded.
	MaxCachedRuns int

	// DB enables snapshot and ledger persistence. Nil disables both.
	DB *badger.DB

	Logger *slog.Logger
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxCachedRuns: 32,
		Logger:        slog.Default(),
	}
}

// cachedRun holds one completed run plus its derived lookup structures.
type cachedRun struct {
	result *pipeline.RunResult
	graph  *graph.Graph
	index  *index.SymbolIndex
	items  map[string]*pipeline.Item // plan ID -> item
	runner *pipeline.Runner
}

// Service owns the run registry, the snapshot store, and the applied
// ledger.
//
// Thread Safety: All exported methods are safe for concurrent use.
type Service struct {
	cfg    ServiceConfig
	logger *slog.Logger

	adapters  map[string]adapter.Adapter
	snapshots *graph.SnapshotManager
	ledger    *verify.Ledger
	hub       *eventHub

	mu       sync.RWMutex
	runs     map[string]*cachedRun
	runOrder []string
}

// NewService wires the engine together.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.MaxCachedRuns <= 0 {
		cfg.MaxCachedRuns = DefaultServiceConfig().MaxCachedRuns
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var ledgerOpts []verify.LedgerOption
	var snapshots *graph.SnapshotManager
	if cfg.DB != nil {
		var err error
		snapshots, err = graph.NewSnapshotManager(cfg.DB, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot manager: %w", err)
		}
		ledgerOpts = append(ledgerOpts, verify.WithLedgerDB(cfg.DB))
	}
	ledgerOpts = append(ledgerOpts, verify.WithLedgerLogger(logger))
	ledger, err := verify.NewLedger(ledgerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	return &Service{
		cfg:    cfg,
		logger: logger,
		adapters: map[string]adapter.Adapter{
			"jsonl": adapter.NewJSONLAdapter(logger),
			"gosrc": adapter.NewGoSourceAdapter(logger),
		},
		snapshots: snapshots,
		ledger:    ledger,
		hub:       newEventHub(),
		runs:      make(map[string]*cachedRun),
	}, nil
}

// Snapshots returns the snapshot manager, or nil when persistence is off.
func (s *Service) Snapshots() *graph.SnapshotManager { return s.snapshots }

// Analyze runs the full pipeline over the project at root.
//
// Description:
//
//	Loads seam.config.yaml from the project root, extracts units through
//	the named adapter, then builds, classifies, plans, and verifies.
//	The completed run is cached for subsequent queries and its progress
//	events are broadcast to subscribed websocket clients.
func (s *Service) Analyze(ctx context.Context, root, adapterName string, collectAll bool) (*pipeline.RunResult, error) {
	ad, ok := s.adapters[adapterName]
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q", adapterName)
	}

	projectCfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}

	if adapterName == "gosrc" && (len(projectCfg.ImpurePackagePrefixes) > 0 || len(projectCfg.GlobalAccessorNames) > 0) {
		var opts []adapter.GoSourceOption
		if len(projectCfg.ImpurePackagePrefixes) > 0 {
			opts = append(opts, adapter.WithImpurePrefixes(projectCfg.ImpurePackagePrefixes))
		}
		if len(projectCfg.GlobalAccessorNames) > 0 {
			opts = append(opts, adapter.WithGlobalAccessorNames(projectCfg.GlobalAccessorNames))
		}
		ad = adapter.NewGoSourceAdapter(s.logger, opts...)
	}

	units, err := ad.Load(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("adapter %q failed: %w", adapterName, err)
	}

	runnerOpts, err := s.runnerOptions(root, projectCfg, collectAll)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(runnerOpts, s.ledger)

	result, err := runner.Run(ctx, units)
	if err != nil {
		return nil, err
	}
	s.cacheRun(result, runner)
	return result, nil
}

// runnerOptions translates project config into pipeline options.
func (s *Service) runnerOptions(root string, projectCfg config.Config, collectAll bool) (pipeline.Options, error) {
	opts := pipeline.Options{
		Workers:    projectCfg.Workers,
		CollectAll: collectAll || projectCfg.CollectAll,
		Logger:     s.logger,
		OnEvent:    s.hub.publish,
		BuilderOptions: []graph.BuilderOption{
			graph.WithProjectRoot(root),
		},
	}
	if projectCfg.Workers > 0 {
		opts.BuilderOptions = append(opts.BuilderOptions, graph.WithWorkerCount(projectCfg.Workers))
	}
	if projectCfg.MaxNodes > 0 {
		opts.BuilderOptions = append(opts.BuilderOptions, graph.WithBuilderMaxNodes(projectCfg.MaxNodes))
	}
	if projectCfg.MaxEdges > 0 {
		opts.BuilderOptions = append(opts.BuilderOptions, graph.WithBuilderMaxEdges(projectCfg.MaxEdges))
	}
	for _, name := range projectCfg.ClassifierPriority {
		kind, err := classify.ParsePatternKind(name)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("invalid classifier priority: %w", err)
		}
		opts.Priority = append(opts.Priority, kind)
	}
	return opts, nil
}

// cacheRun stores a completed run, evicting the oldest past the cap.
func (s *Service) cacheRun(result *pipeline.RunResult, runner *pipeline.Runner) {
	items := make(map[string]*pipeline.Item, len(result.Items))
	for i := range result.Items {
		if p := result.Items[i].Plan; p != nil {
			items[p.ID] = &result.Items[i]
		}
	}
	cr := &cachedRun{result: result, graph: result.Build.Graph, items: items, runner: runner}
	if idx, err := index.New(result.Build.Graph); err == nil {
		cr.index = idx
	} else {
		s.logger.Warn("Failed to index run graph", "runID", result.RunID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[result.RunID] = cr
	s.runOrder = append(s.runOrder, result.RunID)
	for len(s.runOrder) > s.cfg.MaxCachedRuns {
		evicted := s.runOrder[0]
		s.runOrder = s.runOrder[1:]
		delete(s.runs, evicted)
		s.logger.Debug("Evicted cached run", "runID", evicted)
	}
}

// GetRun returns a cached run result.
func (s *Service) GetRun(runID string) (*pipeline.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cr, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return cr.result, true
}

// LatestRun returns the most recently completed run.
func (s *Service) LatestRun() (*pipeline.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runOrder) == 0 {
		return nil, false
	}
	return s.runs[s.runOrder[len(s.runOrder)-1]].result, true
}

// PreviewPlan renders a plan from a cached run as a unified diff.
func (s *Service) PreviewPlan(runID, planID string) ([]byte, error) {
	s.mu.RLock()
	cr, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	item, ok := cr.items[planID]
	if !ok {
		return nil, fmt.Errorf("plan %s not found in run %s", planID, runID)
	}
	return patch.Preview(item.Plan)
}

// ApplyPlan marks a verified plan applied in the ledger.
func (s *Service) ApplyPlan(runID, planID string) (*pipeline.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cr, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	item, ok := cr.items[planID]
	if !ok {
		return nil, fmt.Errorf("plan %s not found in run %s", planID, runID)
	}
	if err := cr.runner.Apply(item); err != nil {
		return item, err
	}
	return item, nil
}

// SearchSymbols answers name/prefix queries against a cached run's graph.
func (s *Service) SearchSymbols(runID, name, prefix string) ([]index.Match, error) {
	s.mu.RLock()
	cr, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if cr.index == nil {
		return nil, fmt.Errorf("run %s has no symbol index", runID)
	}
	if name != "" {
		return cr.index.Exact(name), nil
	}
	return cr.index.Prefix(prefix), nil
}

// SaveSnapshot persists a cached run's graph.
func (s *Service) SaveSnapshot(ctx context.Context, runID, label string) (*graph.SnapshotMetadata, error) {
	if s.snapshots == nil {
		return nil, fmt.Errorf("persistence is disabled")
	}
	s.mu.RLock()
	cr, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return s.snapshots.Save(ctx, cr.graph, label)
}

// AppliedLedger returns all recorded applied plans.
func (s *Service) AppliedLedger() []verify.AppliedRecord {
	return s.ledger.Applied()
}
