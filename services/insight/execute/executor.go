// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package execute runs validated queries against the ledger store.
// The only entry point takes a validate.Verdict, and only this
// package's collaborator (the validator) can mint an accepted one, so
// no query reaches the database without passing all four stages.
package execute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/17user21id/financial-ai-analytics/services/insight/validate"
)

// =============================================================================
// Configuration
// =============================================================================

// Config bounds a single execution.
type Config struct {
	// Timeout is the hard deadline for one query.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRows caps the rows read from the result set. The validator
	// already clamps LIMIT; this is the second, driver-side fence.
	MaxRows int `yaml:"max_rows"`
}

// DefaultConfig returns the production execution bounds.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		MaxRows: 1000,
	}
}

// =============================================================================
// Result
// =============================================================================

// Result is one executed query's output, already bounded and scanned
// into driver-independent values.
type Result struct {
	Columns   []string
	Rows      [][]any
	RowCount  int
	Truncated bool
	Elapsed   time.Duration
}

// Digest renders a short human-readable summary of the result for
// storage alongside the turn. Single-cell results render the value
// itself; larger results render shape only.
func (r Result) Digest() string {
	switch {
	case r.RowCount == 0:
		return "no rows"
	case r.RowCount == 1 && len(r.Columns) == 1:
		return fmt.Sprintf("%s = %s", r.Columns[0], formatCell(r.Rows[0][0]))
	default:
		suffix := ""
		if r.Truncated {
			suffix = " (truncated)"
		}
		return fmt.Sprintf("%d rows x %d columns%s", r.RowCount, len(r.Columns), suffix)
	}
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		return fmt.Sprintf("%.2f", x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return fmt.Sprint(x)
	}
}

// =============================================================================
// Executor
// =============================================================================

// Executor runs accepted queries over one ledger database handle.
type Executor struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

// New builds an Executor. The handle should be opened read-only where
// the driver supports it.
func New(db *sql.DB, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultConfig().MaxRows
	}
	return &Executor{db: db, cfg: cfg, logger: logger}
}

// Execute runs the verdict's query and returns the bounded result.
// A non-accepted verdict fails with ErrVerdictRejected before any
// database work. A deadline overrun maps to ErrUpstreamTimeout.
func (e *Executor) Execute(ctx context.Context, vd validate.Verdict) (Result, error) {
	if !vd.Accepted() {
		return Result{}, fmt.Errorf("%w: stage %s", ErrVerdictRejected, vd.Stage())
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, vd.Query())
	if err != nil {
		return Result{}, e.classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, e.classify(err)
	}

	res := Result{Columns: cols}
	for rows.Next() {
		if res.RowCount >= e.cfg.MaxRows {
			res.Truncated = true
			break
		}
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, e.classify(err)
		}
		res.Rows = append(res.Rows, cells)
		res.RowCount++
	}
	if err := rows.Err(); err != nil {
		return Result{}, e.classify(err)
	}

	res.Elapsed = time.Since(start)
	e.logger.Debug("query executed",
		"rows", res.RowCount,
		"truncated", res.Truncated,
		"elapsed_ms", res.Elapsed.Milliseconds())
	return res, nil
}

// classify maps driver errors onto the package sentinels. Deadline
// errors sometimes surface as driver-specific interrupt strings, so
// both forms map to ErrUpstreamTimeout.
func (e *Executor) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "interrupt") {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrQueryFailed, err)
}
