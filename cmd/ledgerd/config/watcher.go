// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/17user21id/financial-ai-analytics/services/insight/contextwin"
	"github.com/17user21id/financial-ai-analytics/services/insight/rank"
)

// Tunables are the hot-reloadable knobs: everything a reload can
// change without tearing down connections.
type Tunables struct {
	Rank    rank.Weights
	Context contextwin.BudgetConfig
}

// TunableStore serves the current tunables to the pipeline. Reads are
// lock-free; the watcher swaps the whole value on reload.
type TunableStore struct {
	current atomic.Pointer[Tunables]
}

// NewTunableStore seeds the store from a loaded config.
func NewTunableStore(cfg LedgerdConfig) *TunableStore {
	s := &TunableStore{}
	s.current.Store(&Tunables{Rank: cfg.Rank, Context: cfg.Context})
	return s
}

// Weights returns the current ranking weights.
func (s *TunableStore) Weights() rank.Weights {
	return s.current.Load().Rank
}

// Budget returns the current context budget.
func (s *TunableStore) Budget() contextwin.BudgetConfig {
	return s.current.Load().Context
}

func (s *TunableStore) swap(t Tunables) {
	s.current.Store(&t)
}

// Watch re-reads the config file on change and swaps the tunables.
// Invalid values are logged and skipped; the previous tunables stay
// in effect. Blocks until ctx is done.
func (s *TunableStore) Watch(ctx context.Context, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(globalPath); err != nil {
		return err
	}
	logger.Info("watching config for tunable changes", "path", globalPath)

	// Editors often emit bursts of events per save; debounce them.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		case <-pending:
			pending = nil
			s.reload(logger)
		}
	}
}

func (s *TunableStore) reload(logger *slog.Logger) {
	cfg, err := readFile(globalPath)
	if err != nil {
		logger.Warn("config reload failed, keeping previous tunables", "error", err)
		return
	}
	if err := cfg.Rank.Validate(); err != nil {
		logger.Warn("config reload rejected: rank weights invalid", "error", err)
		return
	}
	if err := cfg.Context.Validate(); err != nil {
		logger.Warn("config reload rejected: context budget invalid", "error", err)
		return
	}
	s.swap(Tunables{Rank: cfg.Rank, Context: cfg.Context})
	logger.Info("tunables reloaded",
		"recency", cfg.Rank.Recency,
		"entity_overlap", cfg.Rank.EntityOverlap,
		"semantic", cfg.Rank.Semantic,
		"budget", cfg.Context.Budget,
		"entry_cap", cfg.Context.EntryCap)
}
