// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rank scores historical turns against the current turn and
// produces the ordered context entry list the rest of the pipeline
// consumes.
//
// Rank is a pure function of the history snapshot: identical inputs
// always yield the identical ordering. Weights default to
// recency-dominant so the most recent turn stays at or near the top
// regardless of raw text similarity, which is what makes "above" and
// "that" references resolvable.
package rank

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

// Weights configures the composite relevance score
//
//	score = Recency*recencyDecay(age) + EntityOverlap*overlap + Semantic*similarity
type Weights struct {
	Recency       float64 `yaml:"recency"`
	EntityOverlap float64 `yaml:"entity_overlap"`
	Semantic      float64 `yaml:"semantic"`
}

// DefaultWeights returns the recency-dominant defaults.
func DefaultWeights() Weights {
	return Weights{
		Recency:       0.6,
		EntityOverlap: 0.25,
		Semantic:      0.15,
	}
}

// Validate rejects negative weights and all-zero weight sets.
func (w Weights) Validate() error {
	if w.Recency < 0 || w.EntityOverlap < 0 || w.Semantic < 0 {
		return errors.New("ranking weights must be non-negative")
	}
	if w.Recency+w.EntityOverlap+w.Semantic == 0 {
		return errors.New("ranking weights must not all be zero")
	}
	return nil
}

// Rank orders the session history by descending composite score
// against the current turn. Ties break by sequence number descending,
// so the more recent turn always wins. Rank integers are assigned
// 0..n-1 in final order; textual recency labels are rendered from
// these downstream, never the reverse.
//
// The current turn itself must not be part of history.
func Rank(current datatypes.Turn, history []datatypes.Turn, w Weights) []datatypes.ContextEntry {
	if len(history) == 0 {
		return nil
	}

	maxSeq := history[0].Seq
	for _, turn := range history[1:] {
		if turn.Seq > maxSeq {
			maxSeq = turn.Seq
		}
	}

	currentValues := entityValueSet(current.Entities)
	currentTokens := tokenSet(current.Text)

	entries := make([]datatypes.ContextEntry, 0, len(history))
	for _, turn := range history {
		age := maxSeq - turn.Seq
		score := w.Recency*recencyDecay(age) +
			w.EntityOverlap*jaccard(currentValues, entityValueSet(turn.Entities)) +
			w.Semantic*jaccard(currentTokens, tokenSet(turn.Text))

		entries = append(entries, datatypes.ContextEntry{
			Turn:           turn,
			Score:          score,
			Representation: datatypes.RepresentationRaw,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Turn.Seq > entries[j].Turn.Seq
	})

	for i := range entries {
		entries[i].Rank = i
	}
	return entries
}

// recencyDecay is monotonically non-increasing in turn age, measured
// in turns behind the newest history entry.
func recencyDecay(age int) float64 {
	if age < 0 {
		age = 0
	}
	return 1.0 / float64(1+age)
}

func entityValueSet(entities datatypes.EntitySet) map[string]bool {
	set := make(map[string]bool)
	for _, v := range entities.Values() {
		set[strings.ToLower(v)] = true
	}
	return set
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "for": true, "from": true,
	"in": true, "is": true, "of": true, "on": true, "the": true,
	"to": true, "was": true, "what": true, "with": true,
}

// tokenSet lowercases and tokenizes text, dropping stopwords. The
// resulting set feeds a deterministic token-overlap similarity; no
// embedding call, so ranking stays pure and replayable.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if !stopwords[word] {
			set[word] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
