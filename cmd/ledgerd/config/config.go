// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the ledgerd configuration file schema and its
// loader. Ranking weights and the context budget are hot-reloadable;
// everything else requires a restart.
package config

import (
	"time"

	"github.com/17user21id/financial-ai-analytics/services/insight/contextwin"
	"github.com/17user21id/financial-ai-analytics/services/insight/execute"
	"github.com/17user21id/financial-ai-analytics/services/insight/genquery"
	"github.com/17user21id/financial-ai-analytics/services/insight/rank"
	"github.com/17user21id/financial-ai-analytics/services/insight/validate"
)

// LedgerdConfig is the full configuration file schema.
type LedgerdConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Session SessionConfig `yaml:"session"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	LLM     LLMConfig     `yaml:"llm"`

	Rank     rank.Weights            `yaml:"rank"`
	Context  contextwin.BudgetConfig `yaml:"context"`
	Generate genquery.Config         `yaml:"generate"`
	Validate validate.Config         `yaml:"validate"`
	Execute  execute.Config          `yaml:"execute"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`

	// ShutdownGrace bounds graceful shutdown on SIGTERM.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// SessionConfig configures the conversation store.
type SessionConfig struct {
	Dir           string        `yaml:"dir"`
	GCInterval    time.Duration `yaml:"gc_interval"`
	ArchiveAfter  time.Duration `yaml:"archive_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LedgerConfig points at the financial ledger database.
type LedgerConfig struct {
	Path string `yaml:"path"`

	// SchemaTTL bounds how long an introspected schema snapshot is
	// reused before re-reading.
	SchemaTTL time.Duration `yaml:"schema_ttl"`
}

// LLMConfig configures the model backend. The API key is never read
// from the file; it comes from the environment or container secrets.
type LLMConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Persona string `yaml:"persona"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() LedgerdConfig {
	return LedgerdConfig{
		Server: ServerConfig{
			Port:          8086,
			ShutdownGrace: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.ledgerd/logs",
		},
		Session: SessionConfig{
			Dir:           "~/.ledgerd/sessions",
			GCInterval:    5 * time.Minute,
			ArchiveAfter:  30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Ledger: LedgerConfig{
			Path:      "~/.ledgerd/ledger.db",
			SchemaTTL: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
		Rank:     rank.DefaultWeights(),
		Context:  contextwin.DefaultBudgetConfig(),
		Generate: genquery.DefaultConfig(),
		Validate: validate.DefaultConfig(),
		Execute:  execute.DefaultConfig(),
	}
}
