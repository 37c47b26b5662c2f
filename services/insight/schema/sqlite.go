// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SQLiteProvider reads the live schema from the ledger's SQLite
// database via PRAGMA introspection and caches the snapshot for a
// TTL. Concurrent refreshes collapse into one introspection pass via
// singleflight.
//
// # Thread Safety
//
// Safe for concurrent use.
type SQLiteProvider struct {
	db  *sql.DB
	ttl time.Duration

	mu       sync.RWMutex
	cached   Metadata
	cachedAt time.Time

	group singleflight.Group
}

// NewSQLiteProvider creates a provider over an open ledger database.
// A ttl of 0 disables caching.
func NewSQLiteProvider(db *sql.DB, ttl time.Duration) *SQLiteProvider {
	return &SQLiteProvider{db: db, ttl: ttl}
}

// Schema returns the current metadata snapshot, refreshing the cache
// when stale. Failure wraps ErrSchemaUnavailable.
func (p *SQLiteProvider) Schema(ctx context.Context) (Metadata, error) {
	p.mu.RLock()
	if !p.cachedAt.IsZero() && time.Since(p.cachedAt) < p.ttl {
		meta := p.cached
		p.mu.RUnlock()
		return meta, nil
	}
	p.mu.RUnlock()

	result, err, _ := p.group.Do("schema", func() (any, error) {
		meta, err := p.introspect(ctx)
		if err != nil {
			return Metadata{}, err
		}
		p.mu.Lock()
		p.cached = meta
		p.cachedAt = time.Now()
		p.mu.Unlock()
		return meta, nil
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}
	return result.(Metadata), nil
}

func (p *SQLiteProvider) introspect(ctx context.Context) (Metadata, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return Metadata{}, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Metadata{}, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return Metadata{}, err
	}

	meta := Metadata{Tables: make(map[string]Table, len(names))}
	for _, name := range names {
		table, err := p.introspectTable(ctx, name)
		if err != nil {
			return Metadata{}, err
		}
		meta.Tables[name] = table
	}
	return meta, nil
}

func (p *SQLiteProvider) introspectTable(ctx context.Context, name string) (Table, error) {
	table := Table{Name: name}

	cols, err := p.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, name))
	if err != nil {
		return Table{}, fmt.Errorf("table_info %s: %w", name, err)
	}
	defer cols.Close()
	for cols.Next() {
		var (
			cid        int
			colName    string
			declType   string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := cols.Scan(&cid, &colName, &declType, &notNull, &defaultVal, &pk); err != nil {
			return Table{}, fmt.Errorf("scan column of %s: %w", name, err)
		}
		table.Columns = append(table.Columns, Column{
			Name:       colName,
			DeclType:   declType,
			Affinity:   NormalizeAffinity(declType),
			NotNull:    notNull != 0,
			PrimaryKey: pk != 0,
		})
	}
	if err := cols.Err(); err != nil {
		return Table{}, err
	}

	fks, err := p.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, name))
	if err != nil {
		return Table{}, fmt.Errorf("foreign_key_list %s: %w", name, err)
	}
	defer fks.Close()
	for fks.Next() {
		var (
			id, seq                   int
			refTable, from, to        string
			onUpdate, onDelete, match string
		)
		if err := fks.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return Table{}, fmt.Errorf("scan fk of %s: %w", name, err)
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			Column:    from,
			RefTable:  refTable,
			RefColumn: to,
		})
	}
	return table, fks.Err()
}
