// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

func windowEntry(rank, seq int, entities datatypes.EntitySet, digest string) datatypes.ContextEntry {
	return datatypes.ContextEntry{
		Turn: datatypes.Turn{
			SessionID:    "s-1",
			Seq:          seq,
			Role:         datatypes.RoleUser,
			Entities:     entities,
			ResultDigest: digest,
		},
		Rank: rank,
	}
}

func TestResolveAbovePeriodAndReport(t *testing.T) {
	// Turn A asked for total revenue from Source X for August 2022.
	// Turn B references both the period and the report; both must
	// resolve from Turn A with explicit citations.
	turnA := windowEntry(0, 1, datatypes.EntitySet{
		datatypes.CategoryPeriod: {{Value: "2022-08", Confidence: 0.9}},
		datatypes.CategorySource: {{Value: "X", Confidence: 0.8}},
		datatypes.CategoryMetric: {{Value: "total revenue", Confidence: 0.8}},
	}, "$1,000,000.00")

	intent, err := Resolve("net profit for the above period and the same report", []datatypes.ContextEntry{turnA})
	require.NoError(t, err)

	assert.Contains(t, intent.Question, "2022-08")
	assert.Contains(t, intent.Question, "X")
	assert.NotContains(t, intent.Question, "above period")
	assert.NotContains(t, intent.Question, "same report")

	require.Len(t, intent.Resolutions, 2)
	for _, r := range intent.Resolutions {
		assert.Equal(t, 1, r.CitedSeq, "every citation must point at Turn A")
		assert.Equal(t, 0, r.CitedRank)
	}
}

func TestResolvePrefersTopRankedEntry(t *testing.T) {
	// Both entries carry a period; the rank-0 entry must win and the
	// older entry's value must not leak in.
	window := []datatypes.ContextEntry{
		windowEntry(0, 5, datatypes.EntitySet{
			datatypes.CategoryPeriod: {{Value: "2022-08", Confidence: 0.9}},
		}, ""),
		windowEntry(1, 2, datatypes.EntitySet{
			datatypes.CategoryPeriod: {{Value: "2021-01", Confidence: 0.9}},
		}, ""),
	}

	intent, err := Resolve("expenses for that period", window)
	require.NoError(t, err)
	assert.Contains(t, intent.Question, "2022-08")
	assert.NotContains(t, intent.Question, "2021-01")
	require.Len(t, intent.Resolutions, 1)
	assert.Equal(t, 5, intent.Resolutions[0].CitedSeq)
}

func TestResolveSkipsEntriesWithoutCategory(t *testing.T) {
	// The top entry has no source; the resolver must search downward
	// rather than fail or merge.
	window := []datatypes.ContextEntry{
		windowEntry(0, 5, datatypes.EntitySet{
			datatypes.CategoryPeriod: {{Value: "2022-08", Confidence: 0.9}},
		}, ""),
		windowEntry(1, 2, datatypes.EntitySet{
			datatypes.CategorySource: {{Value: "Quickbooks", Confidence: 0.8}},
		}, ""),
	}

	intent, err := Resolve("revenue from the same source", window)
	require.NoError(t, err)
	assert.Contains(t, intent.Question, "Quickbooks")
	assert.Equal(t, 2, intent.Resolutions[0].CitedSeq)
	assert.Equal(t, 1, intent.Resolutions[0].CitedRank)
}

func TestResolveUnresolvedCategory(t *testing.T) {
	intent, err := Resolve("net profit for that period", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedReference)

	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []datatypes.Category{datatypes.CategoryPeriod}, unresolved.Categories)
	assert.Empty(t, intent.Resolutions)
}

func TestResolvePartialResolutionWithIndependentFailure(t *testing.T) {
	// Period resolves, source does not: the intent keeps the period
	// substitution and the error names only the source category.
	window := []datatypes.ContextEntry{
		windowEntry(0, 3, datatypes.EntitySet{
			datatypes.CategoryPeriod: {{Value: "2022-08", Confidence: 0.9}},
		}, ""),
	}

	intent, err := Resolve("revenue for that period from the same report", window)
	require.Error(t, err)

	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []datatypes.Category{datatypes.CategorySource}, unresolved.Categories)

	assert.Contains(t, intent.Question, "2022-08")
	require.Len(t, intent.Resolutions, 1)
	assert.Equal(t, datatypes.CategoryPeriod, intent.Resolutions[0].Category)
}

func TestResolveComparative(t *testing.T) {
	window := []datatypes.ContextEntry{
		windowEntry(0, 4, nil, "$500,000.00"),
	}
	intent, err := Resolve("how does September look compared to the above", window)
	require.NoError(t, err)
	assert.Contains(t, intent.Question, "$500,000.00")
	require.Len(t, intent.Resolutions, 1)
	assert.Equal(t, datatypes.Category("comparative"), intent.Resolutions[0].Category)
	assert.Equal(t, 4, intent.Resolutions[0].CitedSeq)
}

func TestResolveNoReferencesPassesThrough(t *testing.T) {
	question := "total revenue for 2022-08 from Quickbooks"
	intent, err := Resolve(question, nil)
	require.NoError(t, err)
	assert.Equal(t, question, intent.Question)
	assert.Empty(t, intent.Resolutions)
}

func TestResolveHighestConfidenceValueWins(t *testing.T) {
	window := []datatypes.ContextEntry{
		windowEntry(0, 1, datatypes.EntitySet{
			datatypes.CategoryPeriod: {
				{Value: "2022", Confidence: 0.5},
				{Value: "2022-08", Confidence: 0.95},
			},
		}, ""),
	}
	intent, err := Resolve("expenses for that period", window)
	require.NoError(t, err)
	assert.Equal(t, "2022-08", intent.Resolutions[0].Value)
}
