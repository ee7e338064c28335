// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seamkit/seamkit/services/seam/unit"
)

// DefaultWorkerCount of 0 means runtime.NumCPU().
const DefaultWorkerCount = 0

// ProgressPhase indicates which phase of building is in progress.
type ProgressPhase int

const (
	// ProgressPhaseFragments indicates per-unit fragments are being built.
	ProgressPhaseFragments ProgressPhase = iota

	// ProgressPhaseResolving indicates cross-unit edges are being resolved.
	ProgressPhaseResolving

	// ProgressPhaseFinalizing indicates the graph is being frozen.
	ProgressPhaseFinalizing
)

// String returns the string representation of the ProgressPhase.
func (p ProgressPhase) String() string {
	switch p {
	case ProgressPhaseFragments:
		return "fragments"
	case ProgressPhaseResolving:
		return "resolving"
	case ProgressPhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// BuildProgress contains progress information during a build.
type BuildProgress struct {
	Phase          ProgressPhase
	UnitsTotal     int
	UnitsProcessed int
	NodesCreated   int
	EdgesCreated   int
}

// ProgressFunc is a callback for build progress updates.
type ProgressFunc func(progress BuildProgress)

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// ProjectRoot is the absolute path to the analyzed project root.
	ProjectRoot string

	// WorkerCount is the number of parallel workers for the per-unit
	// fragment pass. Default: runtime.NumCPU().
	WorkerCount int

	// ProgressCallback is called periodically with build progress. May be nil.
	ProgressCallback ProgressFunc

	// MaxNodes and MaxEdges are passed through to the Graph.
	MaxNodes int
	MaxEdges int

	// Logger for diagnostic output. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		WorkerCount: runtime.NumCPU(),
		MaxNodes:    DefaultMaxNodes,
		MaxEdges:    DefaultMaxEdges,
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithProjectRoot sets the project root path.
func WithProjectRoot(root string) BuilderOption {
	return func(o *BuilderOptions) { o.ProjectRoot = root }
}

// WithWorkerCount sets the number of parallel fragment workers.
func WithWorkerCount(n int) BuilderOption {
	return func(o *BuilderOptions) { o.WorkerCount = n }
}

// WithProgressCallback sets the progress callback function.
func WithProgressCallback(fn ProgressFunc) BuilderOption {
	return func(o *BuilderOptions) { o.ProgressCallback = fn }
}

// WithBuilderLogger sets the diagnostic logger.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) { o.Logger = l }
}

// WithBuilderMaxNodes sets the maximum number of nodes.
func WithBuilderMaxNodes(n int) BuilderOption {
	return func(o *BuilderOptions) { o.MaxNodes = n }
}

// WithBuilderMaxEdges sets the maximum number of edges.
func WithBuilderMaxEdges(n int) BuilderOption {
	return func(o *BuilderOptions) { o.MaxEdges = n }
}

// Builder constructs dependency graphs from abstract units.
//
// The builder is stateless and reusable; each Build call creates a new graph
// with a fresh generation number.
//
// Thread Safety:
//
//	Safe for concurrent use. Each Build operates on its own state.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a new Builder with the given options.
//
// Example:
//
//	builder := NewBuilder(
//	    WithProjectRoot("/path/to/project"),
//	    WithWorkerCount(8),
//	)
func NewBuilder(opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.WorkerCount <= 0 {
		options.WorkerCount = runtime.NumCPU()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Builder{options: options}
}

// pendingEdge is an unresolved cross-unit reference produced by the fragment
// pass. Resolution happens single-threaded in the second pass.
type pendingEdge struct {
	unitPath string
	edge     Edge
}

// fragment is the immutable result of one unit's first pass.
//
// Fragments share no mutable state; merging them is the synchronization
// point of the build.
type fragment struct {
	unitPath string
	nodes    []*Node
	pending  []pendingEdge
	err      error
}

// Build constructs a graph from the given units.
//
// Description:
//
//	Phase 1 builds one immutable fragment per unit in parallel: nodes plus
//	pending edge references. Phase 2 merges fragments and resolves
//	references over the merged node table, single-threaded because it
//	mutates the shared symbol table. A reference to a symbol absent from
//	the merged table yields a ResolutionError recorded against the
//	referencing unit; the rest of the build proceeds.
//
// Inputs:
//
//	ctx - Context for cooperative cancellation, checked between unit tasks.
//	units - Abstract units from syntax adapters. Nil entries are recorded
//	as unit errors and skipped.
//
// Outputs:
//
//	*BuildResult - The (possibly partial) graph, unit errors, and stats.
//	error - Non-nil only for a nil receiver misuse; cancellation returns
//	a partial result with Incomplete set.
func (b *Builder) Build(ctx context.Context, units []*unit.AbstractUnit) (*BuildResult, error) {
	ctx, span := startBuildSpan(ctx, len(units))
	defer span.End()

	start := time.Now()
	result := &BuildResult{
		Graph: NewGraph(b.options.ProjectRoot,
			WithMaxNodes(b.options.MaxNodes),
			WithMaxEdges(b.options.MaxEdges),
		),
	}

	fragments := b.fragmentPhase(ctx, units, result)
	if ctx.Err() != nil {
		result.Incomplete = true
		result.Stats.DurationMilli = time.Since(start).Milliseconds()
		endBuildSpan(span, result)
		recordBuildMetrics(result)
		return result, nil
	}

	b.resolvePhase(ctx, fragments, result)

	result.Graph.Freeze()
	result.Stats.DurationMilli = time.Since(start).Milliseconds()
	b.reportProgress(result, ProgressPhaseFinalizing, len(units), len(units))

	endBuildSpan(span, result)
	recordBuildMetrics(result)

	b.options.Logger.Debug("graph build complete",
		slog.Uint64("generation", result.Graph.Generation()),
		slog.Int("nodes", result.Stats.NodesCreated),
		slog.Int("edges", result.Stats.EdgesCreated),
		slog.Int("unit_errors", len(result.UnitErrors)),
		slog.Int64("duration_ms", result.Stats.DurationMilli),
	)
	return result, nil
}

// fragmentPhase runs the per-unit first pass across worker goroutines.
func (b *Builder) fragmentPhase(ctx context.Context, units []*unit.AbstractUnit, result *BuildResult) []*fragment {
	fragments := make([]*fragment, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.options.WorkerCount)

	var done int
	var mu sync.Mutex

	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil // cooperative: discard, do not fail siblings
			}
			fragments[i] = buildFragment(u, i)

			mu.Lock()
			done++
			current := done
			mu.Unlock()
			b.reportProgress(result, ProgressPhaseFragments, len(units), current)
			return nil
		})
	}
	_ = g.Wait()

	return fragments
}

// buildFragment produces the immutable first-pass result for one unit.
func buildFragment(u *unit.AbstractUnit, index int) *fragment {
	if u == nil {
		return &fragment{
			unitPath: fmt.Sprintf("unit[%d]", index),
			err:      fmt.Errorf("unit must not be nil"),
		}
	}
	if err := u.Validate(); err != nil {
		return &fragment{unitPath: u.Path, err: err}
	}

	f := &fragment{unitPath: u.Path}

	for ti := range u.Types {
		t := &u.Types[ti]
		f.nodes = append(f.nodes, &Node{
			ID:         t.ID,
			Kind:       unit.KindType,
			Name:       t.Name,
			UnitPath:   u.Path,
			Visibility: t.Visibility,
			Flags:      t.Flags,
			Protocol:   t.Protocol,
			External:   u.External,
			Location:   t.Location,
		})

		for _, super := range t.Supertypes {
			f.pending = append(f.pending, pendingEdge{u.Path, Edge{
				FromID: t.ID, ToID: super, Kind: EdgeInherits, Location: t.Location,
			}})
		}
		for _, proto := range t.Protocols {
			f.pending = append(f.pending, pendingEdge{u.Path, Edge{
				FromID: t.ID, ToID: proto, Kind: EdgeConformsTo, Location: t.Location,
			}})
		}

		for fi := range t.Fields {
			fd := &t.Fields[fi]
			f.nodes = append(f.nodes, &Node{
				ID:              fd.ID,
				Kind:            unit.KindField,
				Name:            fd.Name,
				DeclaringTypeID: t.ID,
				UnitPath:        u.Path,
				Visibility:      fd.Visibility,
				Mutable:         fd.Mutable,
				External:        u.External,
				Location:        fd.Location,
			})
		}

		for mi := range t.Methods {
			collectMethod(f, u, &t.Methods[mi], t.ID)
		}
	}

	for mi := range u.FreeMethods {
		collectMethod(f, u, &u.FreeMethods[mi], "")
	}

	return f
}

// collectMethod adds a method node, its call-site nodes, and pending edges.
func collectMethod(f *fragment, u *unit.AbstractUnit, m *unit.MethodDecl, declaringType string) {
	f.nodes = append(f.nodes, &Node{
		ID:              m.ID,
		Kind:            unit.KindMethod,
		Name:            m.Name,
		DeclaringTypeID: declaringType,
		UnitPath:        u.Path,
		Visibility:      m.Visibility,
		Flags:           m.Flags,
		Constructor:     m.Constructor,
		OverridePoint:   m.OverridePoint,
		External:        u.External,
		Params:          m.Params,
		Location:        m.Location,
	})

	for _, c := range m.Calls {
		f.nodes = append(f.nodes, &Node{
			ID:              c.SiteID,
			Kind:            unit.KindCallSite,
			Name:            c.SiteID,
			DeclaringTypeID: m.ID,
			UnitPath:        u.Path,
			External:        u.External,
			Location:        c.Location,
		})
		f.pending = append(f.pending, pendingEdge{u.Path, Edge{
			FromID: m.ID, ToID: c.TargetID, Kind: EdgeCalls,
			SiteID: c.SiteID, Location: c.Location,
		}})
	}
	for _, c := range m.Constructs {
		f.nodes = append(f.nodes, &Node{
			ID:              c.SiteID,
			Kind:            unit.KindCallSite,
			Name:            c.SiteID,
			DeclaringTypeID: m.ID,
			UnitPath:        u.Path,
			External:        u.External,
			Location:        c.Location,
		})
		f.pending = append(f.pending, pendingEdge{u.Path, Edge{
			FromID: m.ID, ToID: c.TargetTypeID, Kind: EdgeConstructs,
			SiteID: c.SiteID, ArgOf: c.ArgOf, Location: c.Location,
		}})
	}
	for _, r := range m.Reads {
		f.pending = append(f.pending, pendingEdge{u.Path, Edge{
			FromID: m.ID, ToID: r.TargetID, Kind: EdgeReads, Location: r.Location,
		}})
	}
	for _, w := range m.Writes {
		f.pending = append(f.pending, pendingEdge{u.Path, Edge{
			FromID: m.ID, ToID: w.TargetID, Kind: EdgeWrites, Location: w.Location,
		}})
	}
}

// resolvePhase merges fragments and resolves cross-unit references.
//
// Runs single-threaded: it is the one place that mutates the shared symbol
// table, and fragment order must not influence the outcome. Fragments are
// processed in deterministic unit order.
func (b *Builder) resolvePhase(ctx context.Context, fragments []*fragment, result *BuildResult) {
	ordered := make([]*fragment, 0, len(fragments))
	for _, f := range fragments {
		if f != nil {
			ordered = append(ordered, f)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].unitPath < ordered[j].unitPath })

	// Merge node tables first so forward references resolve.
	for _, f := range ordered {
		if f.err != nil {
			result.UnitErrors = append(result.UnitErrors, UnitError{
				UnitPath: f.unitPath, Err: f.err, Reason: f.err.Error(),
			})
			result.Stats.UnitsFailed++
			continue
		}
		for _, n := range f.nodes {
			if err := result.Graph.AddNode(n); err != nil {
				result.UnitErrors = append(result.UnitErrors, UnitError{
					UnitPath: f.unitPath,
					Err:      err,
					Reason:   fmt.Sprintf("add node %s: %v", n.ID, err),
				})
				continue
			}
			result.Stats.NodesCreated++
		}
		result.Stats.UnitsProcessed++
	}

	b.reportProgress(result, ProgressPhaseResolving, len(ordered), 0)

	for i, f := range ordered {
		if f.err != nil {
			continue
		}
		for _, p := range f.pending {
			if _, ok := result.Graph.GetNode(p.edge.ToID); !ok {
				resErr := &ResolutionError{UnitPath: p.unitPath, Symbol: p.edge.ToID, Ref: p.edge.FromID}
				result.UnitErrors = append(result.UnitErrors, UnitError{
					UnitPath: p.unitPath, Err: resErr, Reason: resErr.Error(),
				})
				result.Stats.EdgesDropped++
				continue
			}
			inserted, err := result.Graph.AddEdge(p.edge)
			if err != nil {
				result.UnitErrors = append(result.UnitErrors, UnitError{
					UnitPath: p.unitPath,
					Err:      err,
					Reason:   fmt.Sprintf("edge %s -> %s (%s): %v", p.edge.FromID, p.edge.ToID, p.edge.Kind, err),
				})
				result.Stats.EdgesDropped++
				continue
			}
			if inserted {
				result.Stats.EdgesCreated++
			}
		}
		b.reportProgress(result, ProgressPhaseResolving, len(ordered), i+1)

		if ctx.Err() != nil {
			result.Incomplete = true
			return
		}
	}
}

// reportProgress invokes the progress callback if one is configured.
func (b *Builder) reportProgress(result *BuildResult, phase ProgressPhase, total, done int) {
	if b.options.ProgressCallback == nil {
		return
	}
	b.options.ProgressCallback(BuildProgress{
		Phase:          phase,
		UnitsTotal:     total,
		UnitsProcessed: done,
		NodesCreated:   result.Stats.NodesCreated,
		EdgesCreated:   result.Stats.EdgesCreated,
	})
}
