// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badger wraps the embedded store shared by graph snapshots and
// the applied-plan ledger.
package badger

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Config controls how the store is opened.
type Config struct {
	// Path is the on-disk directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in RAM; used by tests.
	InMemory bool

	// GCInterval is how often value-log garbage collection runs.
	// Zero disables the GC loop.
	GCInterval time.Duration

	// GCDiscardRatio is the rewrite threshold passed to the value-log GC.
	GCDiscardRatio float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// DB owns a Badger instance plus its GC loop.
//
// Thread Safety: Badger transactions are internally synchronized; DB adds
// no locking of its own.
type DB struct {
	*badger.DB
	stopGC chan struct{}
	logger *slog.Logger
}

// OpenDB opens (creating if needed) the store described by cfg.
func OpenDB(cfg Config) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage path must not be empty")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil) // badger's own logger is too chatty for production

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	d := &DB{DB: db, logger: slog.Default()}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		d.stopGC = make(chan struct{})
		go d.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return d, nil
}

// Close stops the GC loop and closes the store.
func (d *DB) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
	}
	return d.DB.Close()
}

func (d *DB) gcLoop(interval time.Duration, discardRatio float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there was nothing
			// to collect; that is the steady state, not a failure.
			if err := d.RunValueLogGC(discardRatio); err != nil && err != badger.ErrNoRewrite {
				d.logger.Warn("Badger value-log GC failed", "error", err)
			}
		}
	}
}
