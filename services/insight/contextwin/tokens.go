// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contextwin assembles the token-bounded context window: it
// estimates token costs, summarizes turns that would blow their entry
// budget, and selects the maximal-score prefix of the ranked entries
// that fits the global budget.
package contextwin

import (
	"fmt"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

// CharsPerToken is the character-per-token estimation ratio. A simple
// length heuristic keeps budgeting deterministic and tokenizer-free;
// budgets are sized with headroom for the estimation error.
const CharsPerToken = 4.0

// EstimateTokens estimates the token cost of a string.
func EstimateTokens(s string) int {
	return int(float64(len(s)) / CharsPerToken)
}

// RenderRaw renders a turn's full representation for the context
// window: question text plus, when present, the generated query and
// the result digest.
func RenderRaw(turn datatypes.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Q: %s", strings.TrimSpace(turn.Text))
	if turn.QueryText != "" {
		fmt.Fprintf(&b, "\nSQL: %s", strings.TrimSpace(turn.QueryText))
	}
	if turn.ResultDigest != "" {
		fmt.Fprintf(&b, "\nResult: %s", strings.TrimSpace(turn.ResultDigest))
	}
	return b.String()
}
