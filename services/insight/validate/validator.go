// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/schema"
)

// =============================================================================
// Configuration
// =============================================================================

// Config bounds accepted queries. All caps are hard limits; there is
// no per-request override path.
type Config struct {
	// MaxQueryLength rejects oversized candidates before any parsing.
	MaxQueryLength int `yaml:"max_query_length"`

	// MaxJoins caps the number of JOIN clauses in one statement.
	MaxJoins int `yaml:"max_joins"`

	// MaxRows is the LIMIT every accepted query is normalized to at
	// most. A missing LIMIT is appended, a larger one is clamped.
	MaxRows int `yaml:"max_rows"`
}

// DefaultConfig returns the production caps.
func DefaultConfig() Config {
	return Config{
		MaxQueryLength: 5000,
		MaxJoins:       5,
		MaxRows:        1000,
	}
}

// =============================================================================
// Validator
// =============================================================================

// Validator runs every model-generated query through four ordered
// stages before it may reach the executor:
//
//	SyntaxCheck -> ParameterSanitization -> SchemaEnforcement -> MutationGuard
//
// The first failing stage produces a terminal rejection; later stages
// never run for that candidate.
type Validator struct {
	provider schema.Provider
	cfg      Config
	logger   *slog.Logger
}

// New builds a Validator over the given schema provider.
func New(provider schema.Provider, cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultConfig().MaxQueryLength
	}
	if cfg.MaxJoins <= 0 {
		cfg.MaxJoins = DefaultConfig().MaxJoins
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultConfig().MaxRows
	}
	return &Validator{provider: provider, cfg: cfg, logger: logger}
}

// prohibited are statement keywords that can mutate data or schema,
// or escape the query sandbox. Matched on word boundaries against the
// literal-stripped text so values like 'please update me' pass.
var prohibited = []string{
	"insert", "update", "delete", "drop", "alter", "create",
	"truncate", "grant", "revoke", "exec", "execute", "pragma",
	"attach", "detach", "replace", "rename",
}

// Validate classifies one candidate query. It never returns an error:
// every outcome, including schema-source failure, is expressed as a
// Verdict so callers have a single audit path.
func (v *Validator) Validate(ctx context.Context, query string) Verdict {
	verdict := v.validate(ctx, query)
	if verdict.Accepted() {
		v.logger.Debug("query accepted",
			"rewrite_applied", verdict.RewriteApplied())
	} else {
		v.logger.Warn("query rejected",
			"stage", string(verdict.Stage()),
			"code", verdict.Code(),
			"reason", verdict.Reason())
	}
	return verdict
}

func (v *Validator) validate(ctx context.Context, query string) Verdict {
	query = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))

	if vd, ok := v.syntaxCheck(query); !ok {
		return vd
	}

	// Stages two and three need the schema snapshot. A snapshot
	// failure is attributed to SchemaEnforcement: the pipeline
	// cannot vouch for the query without it.
	meta, err := v.provider.Schema(ctx)
	if err != nil {
		return rejected(StageSchemaEnforcement,
			fmt.Errorf("%w: %w", schema.ErrSchemaUnavailable, err),
			"schema snapshot unavailable")
	}

	if vd, ok := v.sanitizeParameters(query, meta); !ok {
		return vd
	}
	if vd, ok := v.enforceSchema(query, meta); !ok {
		return vd
	}
	if vd, ok := v.guardMutations(query); !ok {
		return vd
	}

	final, rewrote := v.normalizeLimit(query)
	return accepted(final, rewrote)
}

// =============================================================================
// Stage 1: SyntaxCheck
// =============================================================================

func (v *Validator) syntaxCheck(query string) (Verdict, bool) {
	reject := func(reason string) (Verdict, bool) {
		return rejected(StageSyntaxCheck, ErrStructuralViolation, reason), false
	}

	if query == "" {
		return reject("empty query")
	}
	if len(query) > v.cfg.MaxQueryLength {
		return reject(fmt.Sprintf("query length %d exceeds cap %d",
			len(query), v.cfg.MaxQueryLength))
	}

	stripped, balanced := stripLiterals(query)
	if !balanced {
		return reject("unbalanced string literal")
	}
	if strings.Contains(stripped, "--") {
		return reject("line comment not permitted")
	}
	if strings.Contains(stripped, "/*") || strings.Contains(stripped, "*/") {
		return reject("block comment not permitted")
	}

	// The trailing semicolon was trimmed, so any remaining one marks
	// a second statement.
	if strings.Contains(stripped, ";") {
		return reject("multiple statements not permitted")
	}

	head := strings.ToUpper(firstWord(stripped))
	if head != "SELECT" && head != "WITH" {
		// UPDATE/DELETE heads are a write attempt, not a malformed
		// read; classify them where the audit trail expects them.
		for _, kw := range prohibited {
			if head == strings.ToUpper(kw) {
				return rejected(StageMutationGuard, ErrWriteAttemptBlocked,
					fmt.Sprintf("statement begins with %q", head)), false
			}
		}
		return reject(fmt.Sprintf("statement must begin with SELECT or WITH, got %q", head))
	}

	return Verdict{}, true
}

// =============================================================================
// Stage 2: ParameterSanitization
// =============================================================================

// comparisonRe finds column-to-value comparisons so each literal can
// be checked against the column's declared affinity.
var comparisonRe = regexp.MustCompile(
	`(?i)([A-Za-z_][A-Za-z0-9_]*)\s*(>=|<=|!=|<>|=|>|<|\bLIKE\b)\s*('(?:[^']|'')*'|-?\d+(?:\.\d+)?)`)

// suspiciousLiteral lists substrings inside string literals that only
// appear when the model has been steered into smuggling a payload.
var suspiciousLiteral = []string{";", "--", "/*", "*/", "char(", "0x"}

// tautologyRe matches always-true predicates such as OR '1'='1' or
// OR 1=1.
var tautologyRe = regexp.MustCompile(
	`(?i)\bOR\s+('?)(\w+)('?)\s*=\s*('?)(\w+)('?)`)

func (v *Validator) sanitizeParameters(query string, meta schema.Metadata) (Verdict, bool) {
	for _, m := range comparisonRe.FindAllStringSubmatch(query, -1) {
		name, literal := m[1], m[3]

		if strings.HasPrefix(literal, "'") {
			inner := strings.ToLower(literal[1 : len(literal)-1])
			for _, frag := range suspiciousLiteral {
				if strings.Contains(inner, frag) {
					return rejected(StageParameterSanitization, ErrInjectionSuspected,
						fmt.Sprintf("string literal contains %q", frag)), false
				}
			}
		}

		col, found := lookupColumn(meta, name)
		if !found {
			// Unknown identifiers are SchemaEnforcement's concern.
			continue
		}
		if vd, ok := checkAffinity(col, name, literal); !ok {
			return vd, false
		}
	}

	for _, m := range tautologyRe.FindAllStringSubmatch(query, -1) {
		if strings.EqualFold(m[2], m[5]) {
			return rejected(StageParameterSanitization, ErrInjectionSuspected,
				fmt.Sprintf("tautological predicate OR %s=%s", m[2], m[5])), false
		}
	}

	return Verdict{}, true
}

func checkAffinity(col schema.Column, name, literal string) (Verdict, bool) {
	reject := func(reason string) (Verdict, bool) {
		return rejected(StageParameterSanitization, ErrParameterViolation, reason), false
	}
	isString := strings.HasPrefix(literal, "'")

	switch col.Affinity {
	case schema.AffinityInteger, schema.AffinityReal:
		if isString {
			return reject(fmt.Sprintf("column %s is numeric, got string literal %s", name, literal))
		}
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return reject(fmt.Sprintf("unparseable numeric literal %s for column %s", literal, name))
		}
		// Ledger amounts are DECIMAL(15,2); anything beyond that
		// magnitude is noise or an overflow probe.
		if f > 1e13 || f < -1e13 {
			return reject(fmt.Sprintf("numeric literal %s out of range for column %s", literal, name))
		}
	case schema.AffinityText, schema.AffinityDate:
		if !isString {
			return reject(fmt.Sprintf("column %s is %s, got bare literal %s", name, col.Affinity, literal))
		}
	}
	return Verdict{}, true
}

func lookupColumn(meta schema.Metadata, name string) (schema.Column, bool) {
	for _, t := range meta.Tables {
		if col, ok := t.Column(name); ok {
			return col, true
		}
	}
	return schema.Column{}, false
}

// =============================================================================
// Stage 3: SchemaEnforcement
// =============================================================================

var (
	fromRe = regexp.MustCompile(`(?i)\bFROM\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*))?`)
	joinRe = regexp.MustCompile(`(?i)\bJOIN\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*))?\s+ON\b`)

	qualifiedRe  = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)
	identifierRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)
	joinCountRe  = regexp.MustCompile(`(?i)\bJOIN\b`)
	outputAsRe   = regexp.MustCompile(`(?i)\bAS\s+([A-Za-z_][A-Za-z0-9_]*)`)
	joinOnRe     = regexp.MustCompile(`(?i)\bON\s+([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)`)
	cteRe        = regexp.MustCompile(`(?i)(?:\bWITH\s+|,\s*)([A-Za-z_][A-Za-z0-9_]*)\s*(?:\([^)]*\))?\s+AS\s*\(`)
)

// sqlWords are keywords and builtin functions that the bare-identifier
// scan must not mistake for column references.
var sqlWords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "and": {}, "or": {}, "not": {},
	"join": {}, "inner": {}, "left": {}, "right": {}, "outer": {}, "cross": {},
	"on": {}, "as": {}, "in": {}, "is": {}, "null": {}, "like": {},
	"between": {}, "group": {}, "by": {}, "order": {}, "asc": {}, "desc": {},
	"limit": {}, "offset": {}, "having": {}, "distinct": {}, "case": {},
	"when": {}, "then": {}, "else": {}, "end": {}, "with": {}, "union": {},
	"all": {}, "exists": {}, "cast": {}, "coalesce": {}, "ifnull": {},
	"nullif": {}, "sum": {}, "avg": {}, "min": {}, "max": {}, "count": {},
	"abs": {}, "round": {}, "length": {}, "lower": {}, "upper": {},
	"substr": {}, "trim": {}, "date": {}, "strftime": {}, "total": {},
	"true": {}, "false": {},
}

func (v *Validator) enforceSchema(query string, meta schema.Metadata) (Verdict, bool) {
	reject := func(reason string) (Verdict, bool) {
		return rejected(StageSchemaEnforcement, ErrSchemaViolation, reason), false
	}

	stripped, _ := stripLiterals(query)

	joins := len(joinCountRe.FindAllString(stripped, -1))
	if joins > v.cfg.MaxJoins {
		return reject(fmt.Sprintf("%d joins exceeds cap %d", joins, v.cfg.MaxJoins))
	}

	// Names defined in a WITH clause are valid table references whose
	// columns the schema cannot vouch for; their inner FROM clauses
	// are checked like any other.
	ctes := make(map[string]struct{})
	for _, m := range cteRe.FindAllStringSubmatch(stripped, -1) {
		ctes[strings.ToLower(m[1])] = struct{}{}
	}

	// Collect referenced tables and the alias map. Aliased and bare
	// table names are both valid qualifiers.
	aliases := make(map[string]string)
	tables := make(map[string]schema.Table)
	collect := func(m []string) (Verdict, bool) {
		name := strings.ToLower(m[1])
		if _, isCTE := ctes[name]; !isCTE {
			tbl, ok := meta.Table(name)
			if !ok {
				return reject(fmt.Sprintf("unknown table %q", m[1]))
			}
			tables[name] = tbl
		}
		aliases[name] = name
		if m[2] != "" {
			alias := strings.ToLower(m[2])
			if _, keyword := sqlWords[alias]; !keyword {
				aliases[alias] = name
			}
		}
		return Verdict{}, true
	}
	for _, m := range fromRe.FindAllStringSubmatch(stripped, -1) {
		if vd, ok := collect(m); !ok {
			return vd, false
		}
	}
	for _, m := range joinRe.FindAllStringSubmatch(stripped, -1) {
		if vd, ok := collect(m); !ok {
			return vd, false
		}
	}
	if len(tables) == 0 && len(ctes) == 0 {
		return reject("no recognizable FROM clause")
	}

	// Qualified references must resolve through a known alias to a
	// declared column.
	for _, m := range qualifiedRe.FindAllStringSubmatch(stripped, -1) {
		qual, col := strings.ToLower(m[1]), m[2]
		tblName, ok := aliases[qual]
		if !ok {
			return reject(fmt.Sprintf("unknown table qualifier %q", m[1]))
		}
		if _, isCTE := ctes[tblName]; isCTE {
			continue
		}
		if _, ok := tables[tblName].Column(col); !ok {
			return reject(fmt.Sprintf("unknown column %s.%s", m[1], m[2]))
		}
	}

	// Output aliases from AS clauses may be referenced again in
	// ORDER BY and HAVING.
	outputs := make(map[string]struct{})
	for _, m := range outputAsRe.FindAllStringSubmatch(stripped, -1) {
		outputs[strings.ToLower(m[1])] = struct{}{}
	}

	// Bare identifiers must be a declared column of some referenced
	// table, a table name, an alias, or a SQL keyword. Anything else
	// is treated as an unknown column rather than silently passed.
	bare := qualifiedRe.ReplaceAllString(stripped, " ")
	for _, ident := range identifierRe.FindAllString(bare, -1) {
		low := strings.ToLower(ident)
		if _, ok := sqlWords[low]; ok {
			continue
		}
		if _, ok := aliases[low]; ok {
			continue
		}
		if _, ok := ctes[low]; ok {
			continue
		}
		if _, ok := outputs[low]; ok {
			continue
		}
		known := false
		for _, tbl := range tables {
			if _, ok := tbl.Column(ident); ok {
				known = true
				break
			}
		}
		if !known {
			return reject(fmt.Sprintf("unknown column %q", ident))
		}
	}

	// Every ON condition between schema tables must follow a declared
	// foreign-key path. Joins touching a CTE have no declared path to
	// check.
	for _, m := range joinOnRe.FindAllStringSubmatch(stripped, -1) {
		lt, lc := aliases[strings.ToLower(m[1])], m[2]
		rt, rc := aliases[strings.ToLower(m[3])], m[4]
		if _, isCTE := ctes[lt]; isCTE {
			continue
		}
		if _, isCTE := ctes[rt]; isCTE {
			continue
		}
		if !meta.JoinAllowed(lt, lc, rt, rc) {
			return reject(fmt.Sprintf("join %s.%s = %s.%s has no declared relationship",
				m[1], m[2], m[3], m[4]))
		}
	}

	return Verdict{}, true
}

// =============================================================================
// Stage 4: MutationGuard
// =============================================================================

var prohibitedRe = regexp.MustCompile(
	`(?i)\b(` + strings.Join(prohibited, "|") + `)\b`)

func (v *Validator) guardMutations(query string) (Verdict, bool) {
	stripped, _ := stripLiterals(query)
	if m := prohibitedRe.FindString(stripped); m != "" {
		return rejected(StageMutationGuard, ErrWriteAttemptBlocked,
			fmt.Sprintf("prohibited keyword %q", strings.ToLower(m))), false
	}
	return Verdict{}, true
}

// =============================================================================
// Rewrites
// =============================================================================

var limitRe = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)

// normalizeLimit caps the result set. A query without LIMIT gets one
// appended; a larger LIMIT is clamped to MaxRows.
func (v *Validator) normalizeLimit(query string) (string, bool) {
	if m := limitRe.FindStringSubmatch(query); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n <= v.cfg.MaxRows {
			return query, false
		}
		return limitRe.ReplaceAllString(query,
			fmt.Sprintf("LIMIT %d", v.cfg.MaxRows)), true
	}
	return fmt.Sprintf("%s LIMIT %d", query, v.cfg.MaxRows), true
}

// =============================================================================
// Helpers
// =============================================================================

// stripLiterals replaces the contents of single-quoted SQL strings
// with spaces, preserving offsets, and reports whether every literal
// was terminated. Doubled quotes inside a literal are an escape.
func stripLiterals(s string) (string, bool) {
	out := []byte(s)
	inLiteral := false
	for i := 0; i < len(out); i++ {
		if out[i] != '\'' {
			if inLiteral {
				out[i] = ' '
			}
			continue
		}
		if inLiteral && i+1 < len(out) && out[i+1] == '\'' {
			out[i], out[i+1] = ' ', ' '
			i++
			continue
		}
		inLiteral = !inLiteral
	}
	return string(out), !inLiteral
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
