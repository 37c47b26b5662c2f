// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the shared domain types of the insight
// pipeline: sessions, turns, extracted entity sets, and the per-request
// context entries produced by ranking and budgeting.
package datatypes

import "time"

// Category is a reference category extracted from turn text.
type Category string

const (
	// CategoryPeriod covers reporting periods ("2022-08", "Q3 2023").
	CategoryPeriod Category = "period"

	// CategorySource covers report or data source identifiers.
	CategorySource Category = "source"

	// CategoryMetric covers metric names (revenue, net profit, expenses).
	CategoryMetric Category = "metric"

	// CategoryAccountFilter covers account type and subtype filters.
	CategoryAccountFilter Category = "account_filter"
)

// Categories lists all reference categories in a stable order.
func Categories() []Category {
	return []Category{CategoryPeriod, CategorySource, CategoryMetric, CategoryAccountFilter}
}

// ExtractedValue is one extracted entity value with its extraction
// confidence in [0,1].
type ExtractedValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// EntitySet maps each reference category to its extracted values.
// Immutable after the owning Turn is written.
type EntitySet map[Category][]ExtractedValue

// Best returns the highest-confidence value for a category.
func (e EntitySet) Best(cat Category) (ExtractedValue, bool) {
	values, ok := e[cat]
	if !ok || len(values) == 0 {
		return ExtractedValue{}, false
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.Confidence > best.Confidence {
			best = v
		}
	}
	return best, true
}

// Values returns every extracted value string across categories.
// Used for entity-overlap scoring.
func (e EntitySet) Values() []string {
	var out []string
	for _, cat := range Categories() {
		for _, v := range e[cat] {
			out = append(out, v.Value)
		}
	}
	return out
}

// Role identifies who produced a turn.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Session is the durable record of one conversation. Sessions are
// archived after inactivity, never deleted.
type Session struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Summary        string    `json:"summary"`
	Archived       bool      `json:"archived"`
}

// Turn is one message exchange within a session. Turns are append-only
// and immutable once written; Seq is assigned by the store and is
// strictly increasing and contiguous per session.
type Turn struct {
	SessionID    string    `json:"session_id"`
	Seq          int       `json:"seq"`
	Role         Role      `json:"role"`
	Text         string    `json:"text"`
	Entities     EntitySet `json:"entities,omitempty"`
	QueryText    string    `json:"query_text,omitempty"`
	ResultDigest string    `json:"result_digest,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	TokenCount   int       `json:"token_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Representation says which rendering of a turn a context entry carries.
type Representation string

const (
	RepresentationRaw        Representation = "raw"
	RepresentationSummarized Representation = "summarized"
)

// ContextEntry is a ranked, budget-fitted projection of a historical
// Turn, built per request and never persisted. Rank is an explicit
// integer (0 = most relevant); any textual recency label shown to the
// model is rendered from it downstream, never the other way around.
type ContextEntry struct {
	Turn           Turn
	Rank           int
	Score          float64
	Representation Representation
	Text           string
	TokenCost      int
}
