// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

func values(set datatypes.EntitySet, cat datatypes.Category) []string {
	var out []string
	for _, v := range set[cat] {
		out = append(out, v.Value)
	}
	return out
}

func TestExtractPeriods(t *testing.T) {
	t.Run("iso form", func(t *testing.T) {
		set := Extract("total revenue for 2022-08", "")
		assert.Equal(t, []string{"2022-08"}, values(set, datatypes.CategoryPeriod))
	})

	t.Run("month name normalizes to iso", func(t *testing.T) {
		set := Extract("total revenue for August 2022", "")
		assert.Equal(t, []string{"2022-08"}, values(set, datatypes.CategoryPeriod))
	})

	t.Run("quarter", func(t *testing.T) {
		set := Extract("expenses in Q3 2023", "")
		assert.Equal(t, []string{"2023-Q3"}, values(set, datatypes.CategoryPeriod))
	})

	t.Run("from query text", func(t *testing.T) {
		set := Extract("how did we do", "SELECT SUM(value) FROM finance_transactions WHERE period_start >= '2022-08-01'")
		assert.Equal(t, []string{"2022-08"}, values(set, datatypes.CategoryPeriod))
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		set := Extract("revenue for August 2022, i.e. 2022-08", "")
		assert.Equal(t, []string{"2022-08"}, values(set, datatypes.CategoryPeriod))
	})
}

func TestExtractSources(t *testing.T) {
	set := Extract("total revenue from Quickbooks for August 2022", "")
	assert.Contains(t, values(set, datatypes.CategorySource), "Quickbooks")

	set = Extract("how did we do", "SELECT 1 FROM finance_transactions WHERE source_id = 'qb-2022'")
	require.Len(t, set[datatypes.CategorySource], 1)
	assert.Equal(t, "qb-2022", set[datatypes.CategorySource][0].Value)
	assert.InDelta(t, 0.95, set[datatypes.CategorySource][0].Confidence, 0.001)
}

func TestExtractMetrics(t *testing.T) {
	set := Extract("what was the net profit and total revenue", "")
	got := values(set, datatypes.CategoryMetric)
	assert.Contains(t, got, "net profit")
	assert.Contains(t, got, "total revenue")
}

func TestMetricPhrasePrecedence(t *testing.T) {
	// "net profit" must not additionally match as a generic metric.
	set := Extract("show net income please", "")
	assert.Equal(t, []string{"net profit"}, values(set, datatypes.CategoryMetric))
}

func TestExtractAccountFilters(t *testing.T) {
	set := Extract("sum of all expense accounts", "")
	assert.Contains(t, values(set, datatypes.CategoryAccountFilter), "expense")

	set = Extract("", "SELECT name FROM accounts WHERE type = 'Asset'")
	assert.Contains(t, values(set, datatypes.CategoryAccountFilter), "asset")
}

func TestExtractIsDeterministic(t *testing.T) {
	text := "net profit from Quickbooks for August 2022 across expense accounts"
	a := Extract(text, "")
	b := Extract(text, "")
	assert.Equal(t, a, b)
}

func TestExtractEmpty(t *testing.T) {
	set := Extract("hello there", "")
	assert.Empty(t, set[datatypes.CategoryPeriod])
	assert.Empty(t, set[datatypes.CategoryMetric])
}
