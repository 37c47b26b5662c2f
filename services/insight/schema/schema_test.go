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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestLedgerMetadata(t *testing.T) {
	meta := LedgerMetadata()

	accounts, ok := meta.Table("accounts")
	require.True(t, ok)
	pk, ok := accounts.Column("account_id")
	require.True(t, ok)
	assert.True(t, pk.PrimaryKey)

	assert.True(t, meta.HasColumn("finance_transactions", "value"))
	assert.False(t, meta.HasColumn("finance_transactions", "password"))
	assert.False(t, meta.HasColumn("users", "id"))
}

func TestJoinAllowed(t *testing.T) {
	meta := LedgerMetadata()
	assert.True(t, meta.JoinAllowed("finance_transactions", "account_id", "accounts", "account_id"))
	assert.True(t, meta.JoinAllowed("accounts", "account_id", "finance_transactions", "account_id"),
		"direction must not matter")
	assert.False(t, meta.JoinAllowed("finance_transactions", "source_id", "accounts", "account_id"))
}

func TestNormalizeAffinity(t *testing.T) {
	tests := []struct {
		decl string
		want Affinity
	}{
		{"TEXT", AffinityText},
		{"INTEGER", AffinityInteger},
		{"DECIMAL(15,2)", AffinityReal},
		{"DATE", AffinityDate},
		{"TIMESTAMP", AffinityDate},
		{"BOOLEAN", AffinityBool},
		{"VARCHAR(40)", AffinityText},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAffinity(tt.decl))
		})
	}
}

func TestRenderListsTablesAndJoins(t *testing.T) {
	out := LedgerMetadata().Render()
	assert.Contains(t, out, "TABLE accounts")
	assert.Contains(t, out, "TABLE finance_transactions")
	assert.Contains(t, out, "value DECIMAL(15,2)")
	assert.Contains(t, out, "JOIN finance_transactions.account_id -> accounts.account_id")
}

func TestSQLiteProviderIntrospection(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			account_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL
		);
		CREATE TABLE finance_transactions (
			tx_id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(account_id),
			value DECIMAL(15,2) NOT NULL
		);
	`)
	require.NoError(t, err)

	provider := NewSQLiteProvider(db, time.Minute)
	meta, err := provider.Schema(context.Background())
	require.NoError(t, err)

	assert.True(t, meta.HasColumn("accounts", "name"))
	tx, ok := meta.Table("finance_transactions")
	require.True(t, ok)
	require.Len(t, tx.ForeignKeys, 1)
	assert.Equal(t, "accounts", tx.ForeignKeys[0].RefTable)

	col, ok := tx.Column("value")
	require.True(t, ok)
	assert.Equal(t, AffinityReal, col.Affinity)
}

func TestSQLiteProviderUnavailable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	provider := NewSQLiteProvider(db, 0)
	_, err = provider.Schema(context.Background())
	assert.ErrorIs(t, err, ErrSchemaUnavailable)
}

func TestSQLiteProviderCaches(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE accounts (account_id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	provider := NewSQLiteProvider(db, time.Hour)
	first, err := provider.Schema(context.Background())
	require.NoError(t, err)

	// A table added after the first snapshot stays invisible until
	// the TTL expires.
	_, err = db.Exec(`CREATE TABLE extra (id TEXT)`)
	require.NoError(t, err)
	second, err := provider.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
