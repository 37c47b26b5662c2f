// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema supplies the live table, column, and foreign-key
// metadata of the ledger store. The security validator treats this
// metadata as ground truth: if it cannot be loaded the validator
// rejects rather than proceed unchecked.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Affinity is the normalized value class of a column, used for
// literal type checking during parameter sanitization.
type Affinity string

const (
	AffinityText    Affinity = "text"
	AffinityInteger Affinity = "integer"
	AffinityReal    Affinity = "real"
	AffinityDate    Affinity = "date"
	AffinityBool    Affinity = "bool"
)

// Column describes one column of a ledger table.
type Column struct {
	Name       string
	DeclType   string
	Affinity   Affinity
	NotNull    bool
	PrimaryKey bool
}

// ForeignKey declares a join path from one table's column to another.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table describes one ledger table.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Column finds a column by name, case-insensitively.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Metadata is a snapshot of the full ledger schema.
type Metadata struct {
	Tables map[string]Table
}

// Table finds a table by name, case-insensitively.
func (m Metadata) Table(name string) (Table, bool) {
	if t, ok := m.Tables[name]; ok {
		return t, true
	}
	for key, t := range m.Tables {
		if strings.EqualFold(key, name) {
			return t, true
		}
	}
	return Table{}, false
}

// HasColumn reports whether table.column exists.
func (m Metadata) HasColumn(table, column string) bool {
	t, ok := m.Table(table)
	if !ok {
		return false
	}
	_, ok = t.Column(column)
	return ok
}

// JoinAllowed reports whether a join between the two column pairs
// follows a declared foreign-key relationship, in either direction.
func (m Metadata) JoinAllowed(leftTable, leftColumn, rightTable, rightColumn string) bool {
	return m.fkMatches(leftTable, leftColumn, rightTable, rightColumn) ||
		m.fkMatches(rightTable, rightColumn, leftTable, leftColumn)
}

func (m Metadata) fkMatches(fromTable, fromColumn, toTable, toColumn string) bool {
	t, ok := m.Table(fromTable)
	if !ok {
		return false
	}
	for _, fk := range t.ForeignKeys {
		if strings.EqualFold(fk.Column, fromColumn) &&
			strings.EqualFold(fk.RefTable, toTable) &&
			strings.EqualFold(fk.RefColumn, toColumn) {
			return true
		}
	}
	return false
}

// Render serializes the schema as a prompt section: one line per
// column plus the declared join paths, in stable table order.
func (m Metadata) Render() string {
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		t := m.Tables[name]
		fmt.Fprintf(&b, "TABLE %s\n", t.Name)
		for _, c := range t.Columns {
			marker := ""
			if c.PrimaryKey {
				marker = " PRIMARY KEY"
			}
			fmt.Fprintf(&b, "  %s %s%s\n", c.Name, c.DeclType, marker)
		}
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(&b, "  JOIN %s.%s -> %s.%s\n", t.Name, fk.Column, fk.RefTable, fk.RefColumn)
		}
	}
	return b.String()
}

// Provider is the external schema lookup collaborator.
type Provider interface {
	// Schema returns the current metadata snapshot. Implementations
	// wrap unavailability in ErrSchemaUnavailable.
	Schema(ctx context.Context) (Metadata, error)
}

// StaticProvider serves a fixed Metadata. Used in tests and for
// deployments with a frozen schema.
type StaticProvider struct {
	Metadata Metadata
	Err      error
}

func (p *StaticProvider) Schema(ctx context.Context) (Metadata, error) {
	if p.Err != nil {
		return Metadata{}, p.Err
	}
	return p.Metadata, nil
}

// NormalizeAffinity maps a declared SQL type to its Affinity class.
func NormalizeAffinity(declType string) Affinity {
	upper := strings.ToUpper(declType)
	switch {
	case strings.Contains(upper, "INT"):
		return AffinityInteger
	case strings.Contains(upper, "DECIMAL"), strings.Contains(upper, "NUMERIC"),
		strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOAT"),
		strings.Contains(upper, "DOUBLE"):
		return AffinityReal
	case strings.Contains(upper, "DATE"), strings.Contains(upper, "TIME"):
		return AffinityDate
	case strings.Contains(upper, "BOOL"):
		return AffinityBool
	default:
		return AffinityText
	}
}

// LedgerMetadata returns the canonical ledger schema: the accounts
// dimension table and the finance_transactions fact table joined on
// account_id.
func LedgerMetadata() Metadata {
	accounts := Table{
		Name: "accounts",
		Columns: []Column{
			{Name: "account_id", DeclType: "TEXT", Affinity: AffinityText, NotNull: true, PrimaryKey: true},
			{Name: "name", DeclType: "TEXT", Affinity: AffinityText, NotNull: true},
			{Name: "type", DeclType: "TEXT", Affinity: AffinityText, NotNull: true},
			{Name: "sub_type", DeclType: "TEXT", Affinity: AffinityText},
			{Name: "is_derived", DeclType: "BOOLEAN", Affinity: AffinityBool},
			{Name: "description", DeclType: "TEXT", Affinity: AffinityText},
			{Name: "platform_id", DeclType: "TEXT", Affinity: AffinityText},
			{Name: "created_at", DeclType: "TIMESTAMP", Affinity: AffinityDate},
		},
	}
	transactions := Table{
		Name: "finance_transactions",
		Columns: []Column{
			{Name: "tx_id", DeclType: "TEXT", Affinity: AffinityText, NotNull: true, PrimaryKey: true},
			{Name: "account_id", DeclType: "TEXT", Affinity: AffinityText, NotNull: true},
			{Name: "period_start", DeclType: "DATE", Affinity: AffinityDate, NotNull: true},
			{Name: "period_end", DeclType: "DATE", Affinity: AffinityDate, NotNull: true},
			{Name: "value", DeclType: "DECIMAL(15,2)", Affinity: AffinityReal, NotNull: true},
			{Name: "currency", DeclType: "TEXT", Affinity: AffinityText},
			{Name: "derived_sub_type", DeclType: "TEXT", Affinity: AffinityText},
			{Name: "posted_date", DeclType: "DATE", Affinity: AffinityDate},
			{Name: "created_by", DeclType: "TEXT", Affinity: AffinityText},
			{Name: "notes", DeclType: "TEXT", Affinity: AffinityText},
			{Name: "source_id", DeclType: "TEXT", Affinity: AffinityText},
		},
		ForeignKeys: []ForeignKey{
			{Column: "account_id", RefTable: "accounts", RefColumn: "account_id"},
		},
	}
	return Metadata{Tables: map[string]Table{
		"accounts":             accounts,
		"finance_transactions": transactions,
	}}
}
