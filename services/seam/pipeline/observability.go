// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("seamkit.pipeline")

func startRunSpan(ctx context.Context, runID string, unitCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("seam.run.id", runID),
			attribute.Int("seam.run.units", unitCount),
		))
}
