// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command seamctl runs seam analysis locally, without the server.
//
// Usage:
//
//	seamctl analyze /path/to/project --adapter gosrc
//	seamctl analyze units.jsonl --json
//	seamctl preview /path/to/project --adapter gosrc
//	seamctl watch /path/to/project --adapter gosrc
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/seamkit/seamkit/services/seam/adapter"
	"github.com/seamkit/seamkit/services/seam/classify"
	"github.com/seamkit/seamkit/services/seam/config"
	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/patch"
	"github.com/seamkit/seamkit/services/seam/pipeline"
	"github.com/seamkit/seamkit/services/seam/verify"
	"github.com/seamkit/seamkit/services/seam/watch"
)

var (
	adapterName string
	jsonOutput  bool
	collectAll  bool
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "seamctl",
		Short: "Analyze dependency seams in a source tree",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(verbose)
		},
	}
	rootCmd.PersistentFlags().StringVar(&adapterName, "adapter", "jsonl", "Front end: jsonl or gosrc")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&collectAll, "collect-all", false, "Report every verification violation")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Run one analysis pass and print the report",
		Args:  cobra.ExactArgs(1),
		Run:   runAnalyzeCommand,
	}
	previewCmd := &cobra.Command{
		Use:   "preview <path>",
		Short: "Analyze and print diffs for every verified plan",
		Args:  cobra.ExactArgs(1),
		Run:   runPreviewCommand,
	}
	watchCmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Re-analyze whenever files under <path> change",
		Args:  cobra.ExactArgs(1),
		Run:   runWatchCommand,
	}
	rootCmd.AddCommand(analyzeCmd, previewCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// analyzeOnce runs the full pipeline over one path.
func analyzeOnce(ctx context.Context, root string) (*pipeline.RunResult, error) {
	projectCfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	var ad adapter.Adapter
	switch adapterName {
	case "jsonl":
		ad = adapter.NewJSONLAdapter(slog.Default())
	case "gosrc":
		var opts []adapter.GoSourceOption
		if len(projectCfg.ImpurePackagePrefixes) > 0 {
			opts = append(opts, adapter.WithImpurePrefixes(projectCfg.ImpurePackagePrefixes))
		}
		if len(projectCfg.GlobalAccessorNames) > 0 {
			opts = append(opts, adapter.WithGlobalAccessorNames(projectCfg.GlobalAccessorNames))
		}
		ad = adapter.NewGoSourceAdapter(slog.Default(), opts...)
	default:
		return nil, fmt.Errorf("unknown adapter %q", adapterName)
	}

	units, err := ad.Load(ctx, root)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Workers:    projectCfg.Workers,
		CollectAll: collectAll || projectCfg.CollectAll,
		BuilderOptions: []graph.BuilderOption{
			graph.WithProjectRoot(root),
		},
	}
	for _, name := range projectCfg.ClassifierPriority {
		kind, err := classify.ParsePatternKind(name)
		if err != nil {
			return nil, err
		}
		opts.Priority = append(opts.Priority, kind)
	}

	ledger, err := verify.NewLedger()
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(opts, ledger).Run(ctx, units)
}

func runAnalyzeCommand(cmd *cobra.Command, args []string) {
	result, err := analyzeOnce(cmd.Context(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}
	printRun(result)
}

func runPreviewCommand(cmd *cobra.Command, args []string) {
	result, err := analyzeOnce(cmd.Context(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}
	for _, item := range result.Items {
		if item.State != verify.StateVerified.String() || item.Plan == nil || item.Plan.NoOp {
			continue
		}
		diff, err := patch.Preview(item.Plan)
		if err != nil {
			fmt.Fprintf(os.Stderr, "preview of plan %s failed: %v\n", item.Plan.ID, err)
			continue
		}
		fmt.Printf("# %s (%s) via %s\n", item.Opportunity.KindName, item.Opportunity.ID, item.Plan.Strategy)
		os.Stdout.Write(diff)
		fmt.Println()
	}
	fmt.Println(result.Report.String())
}

func runWatchCommand(cmd *cobra.Command, args []string) {
	root := args[0]

	projectCfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	var watchOpts []watch.Option
	if projectCfg.WatchDebounceMillis > 0 {
		watchOpts = append(watchOpts, watch.WithDebounce(time.Duration(projectCfg.WatchDebounceMillis)*time.Millisecond))
	}

	trigger := func(ctx context.Context) error {
		result, err := analyzeOnce(ctx, root)
		if err != nil {
			return err
		}
		printRun(result)
		return nil
	}

	watcher, err := watch.New(root, trigger, watchOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watch setup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initial pass before settling into the event loop.
	if err := trigger(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "initial analysis failed: %v\n", err)
	}
	slog.Info("Watching for changes", "root", root)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		os.Exit(1)
	}
}

// printRun renders a run result as JSON or a human-readable table.
func printRun(result *pipeline.RunResult) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "encoding failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	for _, item := range result.Items {
		line := fmt.Sprintf("%-20s %-10s %s", item.Opportunity.KindName, item.State, item.Opportunity.ConstructorID)
		if item.SkipReason != "" {
			line += " (" + item.SkipReason + ")"
		}
		fmt.Println(line)
	}
	if result.Incomplete {
		fmt.Printf("warning: %d unit(s) failed resolution; results are partial\n", len(result.Build.UnitErrors))
	}
	fmt.Println(result.Report.String())
}

func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
