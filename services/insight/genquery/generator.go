// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package genquery turns a resolved question plus its context window
// into a candidate SQL statement via the language model, and formats
// executed results back into prose. Candidates leave this package
// unvalidated; the security pipeline owns acceptance.
package genquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/17user21id/financial-ai-analytics/services/llm"
)

// =============================================================================
// Configuration
// =============================================================================

// Config bounds the generator's model usage.
type Config struct {
	// RequestsPerSecond throttles calls to the model backend.
	// Default: 2.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the limiter burst size. Default: 4.
	Burst int `yaml:"burst"`

	// CallTimeout is the deadline for one model call. Default: 60s.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// MaxTokens caps one completion. Default: 512.
	MaxTokens int `yaml:"max_tokens"`

	// Retry governs re-asking after an upstream timeout.
	Retry RetryConfig `yaml:"retry"`
}

// DefaultConfig returns the production generation bounds.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		Burst:             4,
		CallTimeout:       60 * time.Second,
		MaxTokens:         512,
		Retry:             DefaultRetryConfig(),
	}
}

// =============================================================================
// Generator
// =============================================================================

// Generator drives the two model round trips of one request: query
// generation and answer formatting.
type Generator struct {
	client  llm.LLMClient
	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger
}

// New builds a Generator over the given model client.
func New(client llm.LLMClient, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Generator{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// GenerateQuery asks the model for a candidate statement. Timeouts
// are retried with backoff; refusals and unparseable responses are
// terminal for the attempt.
func (g *Generator) GenerateQuery(ctx context.Context, spec PromptSpec) (string, error) {
	prompt := spec.Render()

	var query string
	err := retry(ctx, g.cfg.Retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			g.logger.Info("retrying query generation", "attempt", attempt)
		}
		raw, err := g.call(ctx, prompt, 0.0)
		if err != nil {
			return err
		}
		if isRefusal(raw) {
			return fmt.Errorf("%w: %s", ErrModelRefusal, firstLine(raw))
		}
		q, ok := extractQuery(raw)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoQueryInResponse, firstLine(raw))
		}
		query = q
		return nil
	})
	if err != nil {
		return "", err
	}
	return query, nil
}

// FormatAnswer asks the model to phrase the executed result as prose.
// On failure the caller falls back to the result digest, so this call
// is never retried.
func (g *Generator) FormatAnswer(ctx context.Context, spec FormatSpec) (string, error) {
	raw, err := g.call(ctx, spec.Render(), 0.3)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (g *Generator) call(ctx context.Context, prompt string, temperature float32) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	maxTokens := g.cfg.MaxTokens
	raw, err := g.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return "", fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
		}
		return "", fmt.Errorf("model call: %w", err)
	}
	return raw, nil
}

// =============================================================================
// Response parsing
// =============================================================================

// statementRe matches any statement head, not just SELECT. Write
// attempts pass through so the validator rejects and audits them;
// swallowing them here would hide the attempt from the audit trail.
var (
	fencedRe    = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	statementRe = regexp.MustCompile(`(?is)\b(SELECT|WITH|INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|PRAGMA|REPLACE)\b.*`)
)

// extractQuery pulls the statement out of a model response, tolerating
// markdown fences and leading chatter.
func extractQuery(raw string) (string, bool) {
	text := raw
	if m := fencedRe.FindStringSubmatch(raw); m != nil {
		text = m[1]
	}
	m := statementRe.FindString(text)
	if m == "" {
		return "", false
	}
	query := strings.TrimSpace(m)
	// Drop trailing chatter after the statement terminator, but only
	// when no further statement follows it. A second statement
	// smuggled behind the semicolon must reach the validator intact
	// so the attempt is rejected and audited there.
	if idx := strings.Index(query, ";"); idx >= 0 {
		if rest := query[idx+1:]; !statementRe.MatchString(rest) {
			query = strings.TrimSpace(query[:idx])
		}
	}
	return query, true
}

var refusalMarkers = []string{
	"i cannot", "i can't", "i am unable", "i'm unable",
	"i won't", "as an ai",
}

func isRefusal(raw string) bool {
	low := strings.ToLower(strings.TrimSpace(raw))
	for _, marker := range refusalMarkers {
		if strings.HasPrefix(low, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
