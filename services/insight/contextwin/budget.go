// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contextwin

import (
	"errors"
	"log/slog"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

// BudgetConfig bounds the context window.
type BudgetConfig struct {
	// Budget is the global token budget for the whole window.
	Budget int `yaml:"budget"`

	// EntryCap is the per-entry token cap. 0 means entries are
	// bounded only by the remaining global budget.
	EntryCap int `yaml:"entry_cap"`
}

// DefaultBudgetConfig reserves a 2000-token window with a 400-token
// per-entry cap.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		Budget:   2000,
		EntryCap: 400,
	}
}

// Validate rejects negative budgets.
func (c BudgetConfig) Validate() error {
	if c.Budget < 0 || c.EntryCap < 0 {
		return ErrInvalidBudget
	}
	return nil
}

// FitWindow selects the maximal-score prefix of the ranked entries
// whose cumulative token cost fits the budget.
//
// Entries are visited in rank order. Each is kept raw when the raw
// rendering fits both the entry cap and the remaining budget,
// summarized when only the synopsis fits, and otherwise the walk
// stops: entries are dropped from the tail only, never from the
// middle of the window. Deterministic for identical inputs.
//
// An empty window is a legal outcome. When even the top entry cannot
// fit after summarization, downstream components run with no
// historical context rather than failing the request.
func FitWindow(entries []datatypes.ContextEntry, cfg BudgetConfig) []datatypes.ContextEntry {
	selected := make([]datatypes.ContextEntry, 0, len(entries))
	used := 0

	for _, entry := range entries {
		remaining := cfg.Budget - used
		if remaining <= 0 {
			break
		}
		entryCap := remaining
		if cfg.EntryCap > 0 && cfg.EntryCap < entryCap {
			entryCap = cfg.EntryCap
		}

		raw := RenderRaw(entry.Turn)
		rawCost := EstimateTokens(raw)
		if rawCost <= entryCap {
			entry.Representation = datatypes.RepresentationRaw
			entry.Text = raw
			entry.TokenCost = rawCost
			selected = append(selected, entry)
			used += rawCost
			continue
		}

		summary, err := Summarize(entry.Turn, entryCap)
		if err != nil {
			if !errors.Is(err, ErrSummarizationUnderBudget) {
				slog.Warn("summarization failed", "seq", entry.Turn.Seq, "error", err)
			}
			// Tail drop: once an entry cannot fit, nothing below it
			// is admitted either, keeping the window a rank prefix.
			break
		}
		entry.Representation = datatypes.RepresentationSummarized
		entry.Text = summary
		entry.TokenCost = EstimateTokens(summary)
		selected = append(selected, entry)
		used += entry.TokenCost
	}

	return selected
}
