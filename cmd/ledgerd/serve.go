// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/17user21id/financial-ai-analytics/cmd/ledgerd/config"
	"github.com/17user21id/financial-ai-analytics/pkg/logging"
	"github.com/17user21id/financial-ai-analytics/services/insight"
	"github.com/17user21id/financial-ai-analytics/services/insight/execute"
	"github.com/17user21id/financial-ai-analytics/services/insight/genquery"
	"github.com/17user21id/financial-ai-analytics/services/insight/observability"
	"github.com/17user21id/financial-ai-analytics/services/insight/schema"
	"github.com/17user21id/financial-ai-analytics/services/insight/session"
	"github.com/17user21id/financial-ai-analytics/services/insight/validate"
	"github.com/17user21id/financial-ai-analytics/services/llm"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the insight API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	if err := config.Load(configPath); err != nil {
		return err
	}
	cfg := config.Global

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "ledgerd",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()
	log := logger.Slog()

	metrics := observability.InitMetrics()

	// Conversation store.
	sessCfg := session.DefaultConfig()
	sessCfg.Dir = config.ExpandPath(cfg.Session.Dir)
	sessCfg.GCInterval = cfg.Session.GCInterval
	sessCfg.ArchiveAfter = cfg.Session.ArchiveAfter
	sessCfg.SweepInterval = cfg.Session.SweepInterval
	sessCfg.Logger = log
	store, err := session.Open(sessCfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	// Ledger database, opened read-only. The validator is the first
	// fence against writes; the connection mode is the second.
	ledgerPath := config.ExpandPath(cfg.Ledger.Path)
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", ledgerPath))
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer db.Close()

	provider := schema.NewSQLiteProvider(db, cfg.Ledger.SchemaTTL)

	// Model backend.
	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Persona: cfg.LLM.Persona,
	})
	if err != nil {
		return fmt.Errorf("init model client: %w", err)
	}

	tunables := config.NewTunableStore(cfg)

	svc, err := insight.NewService(insight.Deps{
		Store:     store,
		Locks:     session.NewLockManager(),
		Generator: genquery.New(client, cfg.Generate, log),
		Validator: validate.New(provider, cfg.Validate, log),
		Executor:  execute.New(db, cfg.Execute, log),
		Schema:    provider,
		Metrics:   metrics,
		Logger:    log,
		Weights:   tunables.Weights,
		Budget:    tunables.Budget,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	insight.RegisterRoutes(router, svc)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("ledgerd listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return tunables.Watch(ctx, log)
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
