// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seam",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Analysis runs by terminal status.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seam",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "End-to-end analysis run latency.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	opportunitiesFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seam",
		Subsystem: "pipeline",
		Name:      "opportunities_per_run",
		Help:      "Opportunities discovered per run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	plansVerified = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seam",
		Subsystem: "pipeline",
		Name:      "verified_plans_per_run",
		Help:      "Plans surviving verification per run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func recordRunMetrics(status string, elapsed time.Duration, found, verified int) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(elapsed.Seconds())
	if status == "ok" {
		opportunitiesFound.Observe(float64(found))
		plansVerified.Observe(float64(verified))
	}
}
