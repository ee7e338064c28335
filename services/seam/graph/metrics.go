// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// buildsTotal counts graph builds by outcome.
	// Labels: status (complete, incomplete)
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seam",
		Subsystem: "graph",
		Name:      "builds_total",
		Help:      "Total graph builds by outcome",
	}, []string{"status"})

	// buildDurationSeconds measures wall-clock build time.
	buildDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seam",
		Subsystem: "graph",
		Name:      "build_duration_seconds",
		Help:      "Graph build duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	})

	// buildNodes and buildEdges record per-build graph sizes.
	buildNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seam",
		Subsystem: "graph",
		Name:      "build_nodes",
		Help:      "Nodes created per build",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
	})
	buildEdges = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seam",
		Subsystem: "graph",
		Name:      "build_edges",
		Help:      "Edges created per build",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
	})

	// unitErrorsTotal counts unit-local build errors (resolution failures,
	// invalid units). These degrade one unit, never the whole build.
	unitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "seam",
		Subsystem: "graph",
		Name:      "unit_errors_total",
		Help:      "Unit-local errors recorded during builds",
	})
)

// recordBuildMetrics records Prometheus metrics for one completed build.
func recordBuildMetrics(result *BuildResult) {
	status := "complete"
	if result.Incomplete {
		status = "incomplete"
	}
	buildsTotal.WithLabelValues(status).Inc()
	buildDurationSeconds.Observe(float64(result.Stats.DurationMilli) / 1000)
	buildNodes.Observe(float64(result.Stats.NodesCreated))
	buildEdges.Observe(float64(result.Stats.EdgesCreated))
	unitErrorsTotal.Add(float64(len(result.UnitErrors)))
}
