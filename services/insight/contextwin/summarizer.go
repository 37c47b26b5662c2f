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
	"fmt"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

// Summarize compresses a turn into a synopsis that fits capTokens.
// Every extracted entity value and the result digest appear verbatim;
// only prose is dropped. Two levels are tried, richest first:
//
//  1. entity facts plus a prose fragment of the question
//  2. entity facts only (the minimal synopsis)
//
// When even the minimal synopsis exceeds the cap the function fails
// with ErrSummarizationUnderBudget and the caller drops the entry
// whole. Entity values are never truncated.
func Summarize(turn datatypes.Turn, capTokens int) (string, error) {
	if capTokens < 0 {
		return "", ErrInvalidBudget
	}

	minimal := entityFacts(turn)
	if EstimateTokens(minimal) > capTokens {
		return "", fmt.Errorf("turn %d: %w", turn.Seq, ErrSummarizationUnderBudget)
	}

	// Room to spare: prepend a prose fragment without ever cutting
	// into the entity facts.
	fragment := proseFragment(turn.Text)
	if fragment != "" {
		rich := fragment + " | " + minimal
		if EstimateTokens(rich) <= capTokens {
			return rich, nil
		}
	}
	return minimal, nil
}

// entityFacts renders the minimal synopsis: every entity value
// verbatim, keyed by category, plus the result digest.
func entityFacts(turn datatypes.Turn) string {
	var parts []string
	for _, cat := range datatypes.Categories() {
		values := turn.Entities[cat]
		if len(values) == 0 {
			continue
		}
		rendered := make([]string, len(values))
		for i, v := range values {
			rendered[i] = v.Value
		}
		parts = append(parts, fmt.Sprintf("%s=%s", cat, strings.Join(rendered, ",")))
	}
	if turn.ResultDigest != "" {
		parts = append(parts, "result="+turn.ResultDigest)
	}
	if len(parts) == 0 {
		return "turn " + fmt.Sprint(turn.Seq)
	}
	return strings.Join(parts, "; ")
}

// proseFragment returns the first clause of the question text, capped
// at a handful of words. Prose is the only part a summary may lose.
func proseFragment(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if i := strings.IndexAny(text, ".?!\n"); i > 0 {
		text = text[:i]
	}
	words := strings.Fields(text)
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}
