// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve rewrites anaphoric phrases in the current question
// into concrete values pulled from the ranked context window.
//
// The detectable phrases form a closed set over four categories:
// temporal ("that period"), entity ("the same report"), metric ("that
// value"), and comparative ("compared to above"). Each detected
// category resolves against the top-ranked entry that carries a value
// for it, searching rank-ascending; values are never averaged or
// merged across entries. Every substitution records a citation of the
// turn it came from for downstream audit.
package resolve

import (
	"regexp"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

// Resolution records one substitution: which phrase, which category,
// the literal value it became, and the turn it was cited from.
type Resolution struct {
	Category  datatypes.Category `json:"category"`
	Phrase    string             `json:"phrase"`
	Value     string             `json:"value"`
	CitedSeq  int                `json:"cited_seq"`
	CitedRank int                `json:"cited_rank"`
}

// Intent is the concretized query intent: the question with every
// resolvable reference replaced by a literal value, plus the audit
// trail of substitutions.
type Intent struct {
	Question    string       `json:"question"`
	Resolutions []Resolution `json:"resolutions"`
}

// referencePhrases is the closed phrase set, longest-first per
// category so "the above period" is consumed before "above period".
var referencePhrases = []struct {
	category datatypes.Category
	phrases  []string
}{
	{datatypes.CategoryPeriod, []string{
		"for the above period", "the above period", "above period",
		"that period", "the same period", "same period", "last month",
	}},
	{datatypes.CategorySource, []string{
		"the above report", "the same report", "that report", "above report",
		"the same source", "that source", "same source", "the report",
	}},
	{datatypes.CategoryMetric, []string{
		"the same calculation", "that calculation", "same calculation",
		"that value", "the same metric", "that metric",
	}},
	{datatypes.CategoryAccountFilter, []string{
		"the same accounts", "those accounts", "the same filter",
	}},
}

// comparativePhrases refer to a prior result rather than a prior
// entity; they resolve against the top-ranked entry with a result
// digest.
var comparativePhrases = []string{
	"compared to the above", "compared to above", "compared to that",
	"versus the above", "versus above",
}

// Resolve concretizes the question against the budgeted context
// window. Categories resolve independently: the returned Intent
// carries every successful substitution even when some categories
// fail, and the error (an *UnresolvedError wrapping
// ErrUnresolvedReference) lists the ones that did not.
func Resolve(question string, window []datatypes.ContextEntry) (Intent, error) {
	intent := Intent{Question: question}
	var unresolved []datatypes.Category

	for _, group := range referencePhrases {
		phrase, found := findPhrase(intent.Question, group.phrases)
		if !found {
			continue
		}
		entry, value, ok := lookupCategory(window, group.category)
		if !ok {
			unresolved = append(unresolved, group.category)
			continue
		}
		intent.Question = replacePhrase(intent.Question, phrase, value)
		intent.Resolutions = append(intent.Resolutions, Resolution{
			Category:  group.category,
			Phrase:    phrase,
			Value:     value,
			CitedSeq:  entry.Turn.Seq,
			CitedRank: entry.Rank,
		})
	}

	if phrase, found := findPhrase(intent.Question, comparativePhrases); found {
		entry, ok := lookupResult(window)
		if !ok {
			unresolved = append(unresolved, "comparative")
		} else {
			value := "compared to " + entry.Turn.ResultDigest
			intent.Question = replacePhrase(intent.Question, phrase, value)
			intent.Resolutions = append(intent.Resolutions, Resolution{
				Category:  "comparative",
				Phrase:    phrase,
				Value:     entry.Turn.ResultDigest,
				CitedSeq:  entry.Turn.Seq,
				CitedRank: entry.Rank,
			})
		}
	}

	if len(unresolved) > 0 {
		return intent, &UnresolvedError{Categories: unresolved}
	}
	return intent, nil
}

// findPhrase returns the first phrase present in the question,
// honoring the longest-first ordering of the phrase list.
func findPhrase(question string, phrases []string) (string, bool) {
	lower := strings.ToLower(question)
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// lookupCategory walks the window rank-ascending and returns the
// first entry carrying a value for the category. Never merges values
// across entries.
func lookupCategory(window []datatypes.ContextEntry, cat datatypes.Category) (datatypes.ContextEntry, string, bool) {
	for _, entry := range window {
		if best, ok := entry.Turn.Entities.Best(cat); ok {
			return entry, best.Value, true
		}
	}
	return datatypes.ContextEntry{}, "", false
}

// lookupResult finds the top-ranked entry with a result digest.
func lookupResult(window []datatypes.ContextEntry) (datatypes.ContextEntry, bool) {
	for _, entry := range window {
		if entry.Turn.ResultDigest != "" {
			return entry, true
		}
	}
	return datatypes.ContextEntry{}, false
}

// replacePhrase replaces one case-insensitive occurrence of phrase
// with the literal value.
func replacePhrase(question, phrase, value string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase))
	replaced := false
	return re.ReplaceAllStringFunc(question, func(match string) string {
		if replaced {
			return match
		}
		replaced = true
		// "for the above period" keeps its leading preposition.
		if strings.HasPrefix(strings.ToLower(match), "for ") {
			return "for " + value
		}
		return value
	})
}
