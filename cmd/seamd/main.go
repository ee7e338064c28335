// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command seamd starts the seam analysis API server.
//
// Seamd exposes the dependency-seam engine over HTTP:
//   - Analysis runs (graph build, classification, planning, verification)
//   - Unified-diff plan previews and an applied-plan ledger
//   - Graph snapshot persistence
//   - Websocket streaming of run progress
//
// Usage:
//
//	go run ./cmd/seamd
//	go run ./cmd/seamd -port 9090 -storage ~/.seamkit/store
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/seam/health
//
//	# Analyze a Go source tree
//	curl -X POST http://localhost:8080/v1/seam/analyze \
//	  -H "Content-Type: application/json" \
//	  -d '{"project_root": "/path/to/project", "adapter": "gosrc"}'
//
//	# List opportunities from the latest run
//	curl http://localhost:8080/v1/seam/runs/latest/opportunities | jq
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/seamkit/seamkit/services/seam"
	badgerstore "github.com/seamkit/seamkit/services/seam/storage/badger"
)

const shutdownGrace = 15 * time.Second

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	storagePath := flag.String("storage", "", "Badger directory for snapshots and the ledger (default ~/.seamkit/store, empty env disables)")
	rps := flag.Float64("rate-limit", seam.DefaultRateLimitRPS, "Requests per second before throttling")
	burst := flag.Int("rate-burst", seam.DefaultRateLimitBurst, "Rate limiter burst size")
	flag.Parse()

	setupLogging(*debug)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so upstream trace IDs flow through
	// every handler and pipeline span.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cfg := seam.DefaultServiceConfig()

	// Snapshot and ledger persistence degrades gracefully: if the store
	// cannot open, the service runs in-memory only.
	var store *badgerstore.DB
	if dir := resolveStorageDir(*storagePath); dir != "" {
		storeCfg := badgerstore.DefaultConfig()
		storeCfg.Path = dir
		db, err := badgerstore.OpenDB(storeCfg)
		if err != nil {
			slog.Warn("Persistent store unavailable, running in-memory only",
				slog.String("path", dir),
				slog.String("error", err.Error()),
			)
		} else {
			store = db
			cfg.DB = db.DB
			slog.Info("Persistent store opened", slog.String("path", dir))
		}
	}

	svc, err := seam.NewService(cfg)
	if err != nil {
		slog.Error("Failed to create service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handlers := seam.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("seamd"))
	router.Use(seam.RequestIDMiddleware())
	if *debug {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(seam.RateLimitMiddleware(*rps, *burst))
	seam.RegisterRoutes(v1, handlers)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	go func() {
		slog.Info("Starting seamd server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down seamd server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("Graceful shutdown incomplete", slog.String("error", err.Error()))
	}
	if store != nil {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close persistent store", slog.String("error", err.Error()))
		}
	}
}

// setupLogging picks text output on a terminal, JSON otherwise.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// resolveStorageDir applies the flag, then SEAM_STORAGE_DIR, then the
// home-directory default. An explicit empty env value disables storage.
func resolveStorageDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env, ok := os.LookupEnv("SEAM_STORAGE_DIR"); ok {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".seamkit", "store")
}
