// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract pulls structured entities out of a turn's text and
// its generated query: reporting periods, source identifiers, metric
// names, and account filters. Extraction is deterministic and pure so
// ranking and resolution stay replayable.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

// Confidence levels by match kind. Explicit numeric forms score
// higher than prose forms, and query-derived matches highest of all
// since the query already committed to a concrete value.
const (
	confQuery   = 0.95
	confNumeric = 0.9
	confProse   = 0.8
	confWeak    = 0.6
)

var (
	isoPeriodRe = regexp.MustCompile(`\b(20\d{2})-(0[1-9]|1[0-2])\b`)
	quarterRe   = regexp.MustCompile(`(?i)\bQ([1-4])\s+(20\d{2})\b`)
	monthYearRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(20\d{2})\b`)

	// The capture group stays case-sensitive so "from the report"
	// does not yield "the" as a source.
	sourceProseRe = regexp.MustCompile(`\b(?i:from|report|source)\s+(?i:source\s+)?([A-Z][A-Za-z0-9_-]*)\b`)
	sourceQueryRe = regexp.MustCompile(`(?i)source_id\s*=\s*'([^']+)'`)

	periodQueryRe = regexp.MustCompile(`(?i)period_start\s*(?:>=|=)\s*'(20\d{2})-(\d{2})-\d{2}'`)

	accountTypeQueryRe = regexp.MustCompile(`(?i)\b(?:type|sub_type)\s*=\s*'([^']+)'`)
)

var monthNumbers = map[string]string{
	"january": "01", "february": "02", "march": "03", "april": "04",
	"may": "05", "june": "06", "july": "07", "august": "08",
	"september": "09", "october": "10", "november": "11", "december": "12",
}

// metricTerms maps a canonical metric name to the phrases that mean it.
// Longer phrases are listed first so "net profit" wins over "profit".
var metricTerms = []struct {
	canonical string
	phrases   []string
}{
	{"net profit", []string{"net profit", "net income", "bottom line"}},
	{"gross profit", []string{"gross profit", "gross margin"}},
	{"total revenue", []string{"total revenue", "revenue", "sales", "turnover", "top line"}},
	{"total expenses", []string{"total expenses", "expenses", "costs", "spending"}},
	{"cash flow", []string{"cash flow"}},
	{"profit margin", []string{"profit margin", "margin"}},
}

var accountFilterTerms = []string{
	"asset", "liability", "equity", "income", "expense",
	"current asset", "fixed asset", "operating expense",
}

// Extract builds the entity set for a turn from its natural-language
// text and, when present, its generated query.
func Extract(text, queryText string) datatypes.EntitySet {
	set := datatypes.EntitySet{}

	addPeriods(set, text, queryText)
	addSources(set, text, queryText)
	addMetrics(set, text)
	addAccountFilters(set, text, queryText)

	return set
}

func addPeriods(set datatypes.EntitySet, text, queryText string) {
	seen := map[string]bool{}
	add := func(value string, conf float64) {
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		set[datatypes.CategoryPeriod] = append(set[datatypes.CategoryPeriod],
			datatypes.ExtractedValue{Value: value, Confidence: conf})
	}

	for _, m := range isoPeriodRe.FindAllStringSubmatch(text, -1) {
		add(m[1]+"-"+m[2], confNumeric)
	}
	for _, m := range monthYearRe.FindAllStringSubmatch(text, -1) {
		add(m[2]+"-"+monthNumbers[strings.ToLower(m[1])], confProse)
	}
	for _, m := range quarterRe.FindAllStringSubmatch(text, -1) {
		add(fmt.Sprintf("%s-Q%s", m[2], m[1]), confProse)
	}
	for _, m := range periodQueryRe.FindAllStringSubmatch(queryText, -1) {
		add(m[1]+"-"+m[2], confQuery)
	}
}

func addSources(set datatypes.EntitySet, text, queryText string) {
	seen := map[string]bool{}
	add := func(value string, conf float64) {
		value = strings.TrimSpace(value)
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		set[datatypes.CategorySource] = append(set[datatypes.CategorySource],
			datatypes.ExtractedValue{Value: value, Confidence: conf})
	}

	for _, m := range sourceQueryRe.FindAllStringSubmatch(queryText, -1) {
		add(m[1], confQuery)
	}
	for _, m := range sourceProseRe.FindAllStringSubmatch(text, -1) {
		// Month names and metric words sneak through the capital-letter
		// heuristic; filter anything we classify elsewhere.
		candidate := m[1]
		if _, isMonth := monthNumbers[strings.ToLower(candidate)]; isMonth {
			continue
		}
		add(candidate, confWeak)
	}
}

func addMetrics(set datatypes.EntitySet, text string) {
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	for _, term := range metricTerms {
		for _, phrase := range term.phrases {
			if strings.Contains(lower, phrase) && !seen[term.canonical] {
				seen[term.canonical] = true
				set[datatypes.CategoryMetric] = append(set[datatypes.CategoryMetric],
					datatypes.ExtractedValue{Value: term.canonical, Confidence: confProse})
				break
			}
		}
	}
}

func addAccountFilters(set datatypes.EntitySet, text, queryText string) {
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	add := func(value string, conf float64) {
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		set[datatypes.CategoryAccountFilter] = append(set[datatypes.CategoryAccountFilter],
			datatypes.ExtractedValue{Value: value, Confidence: conf})
	}

	for _, m := range accountTypeQueryRe.FindAllStringSubmatch(queryText, -1) {
		add(strings.ToLower(m[1]), confQuery)
	}
	// Longer phrases first so "current asset" is not shadowed by "asset".
	for i := len(accountFilterTerms) - 1; i >= 0; i-- {
		term := accountFilterTerms[i]
		if strings.Contains(lower, term+" account") || strings.Contains(lower, term+" accounts") {
			add(term, confProse)
		}
	}
}
