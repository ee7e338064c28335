// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch triggers re-analysis when watched source files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last filesystem event
// before a trigger fires. Editors emit bursts of writes; one analysis per
// burst is enough.
const DefaultDebounce = 500 * time.Millisecond

// TriggerFunc runs one re-analysis. Errors are logged, not fatal: the
// watcher keeps running so a transient failure does not kill the session.
type TriggerFunc func(ctx context.Context) error

// Watcher debounces filesystem events over a source tree into re-analysis
// triggers.
//
// Thread Safety: Run is single-goroutine; construct one Watcher per tree.
type Watcher struct {
	root     string
	debounce time.Duration
	trigger  TriggerFunc
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a Watcher over root, registering every non-hidden directory.
// fsnotify does not recurse, so the tree is walked up front; directories
// created later are added as their create events arrive.
func New(root string, trigger TriggerFunc, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		trigger:  trigger,
		logger:   slog.Default(),
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) && path != root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to register watch tree %s: %w", root, err)
	}
	return w, nil
}

// Run blocks, firing the trigger after each debounced burst of relevant
// events, until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				// New directories need explicit registration.
				if err := w.fsw.Add(event.Name); err == nil {
					w.logger.Debug("Watching new path", "path", event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Filesystem watch error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Info("Source change detected, re-analyzing", "root", w.root)
			if err := w.trigger(ctx); err != nil {
				w.logger.Error("Re-analysis failed", "error", err)
			}
		}
	}
}

// relevant filters events down to source-affecting changes.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	return true
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "vendor" || name == "node_modules"
}
