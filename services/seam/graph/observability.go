// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("seamkit.graph")

// startBuildSpan begins the tracing span covering one graph build.
func startBuildSpan(ctx context.Context, unitCount int) (context.Context, oteltrace.Span) {
	return tracer.Start(ctx, "GraphBuilder.Build",
		oteltrace.WithAttributes(
			attribute.Int("units", unitCount),
		),
	)
}

// endBuildSpan records the build outcome on the span.
func endBuildSpan(span oteltrace.Span, result *BuildResult) {
	span.SetAttributes(
		attribute.Int("nodes_created", result.Stats.NodesCreated),
		attribute.Int("edges_created", result.Stats.EdgesCreated),
		attribute.Int("unit_errors", len(result.UnitErrors)),
		attribute.Bool("incomplete", result.Incomplete),
	)
	if result.Incomplete {
		span.SetStatus(codes.Error, "build cancelled before completion")
		return
	}
	span.SetStatus(codes.Ok, "")
}
