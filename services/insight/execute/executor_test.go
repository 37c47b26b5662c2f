// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execute

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/17user21id/financial-ai-analytics/services/insight/schema"
	"github.com/17user21id/financial-ai-analytics/services/insight/validate"
)

func openLedger(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// The in-memory database is per-connection; keep the pool at one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			account_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL
		);
		CREATE TABLE finance_transactions (
			tx_id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(account_id),
			period_start DATE NOT NULL,
			period_end DATE NOT NULL,
			value DECIMAL(15,2) NOT NULL,
			currency TEXT,
			source_id TEXT
		);
		INSERT INTO accounts VALUES
			('a1', 'Operating', 'asset'),
			('a2', 'Payroll', 'expense');
		INSERT INTO finance_transactions VALUES
			('t1', 'a1', '2022-08-01', '2022-08-31', 1200.50, 'USD', 'FY22Q3'),
			('t2', 'a1', '2022-08-01', '2022-08-31', 300.25, 'USD', 'FY22Q3'),
			('t3', 'a2', '2022-09-01', '2022-09-30', 99.00, 'USD', 'FY22Q3');
	`)
	require.NoError(t, err)
	return db
}

// acceptedVerdict routes a candidate through the real validator, the
// only way to obtain an accepted verdict.
func acceptedVerdict(t *testing.T, query string) validate.Verdict {
	t.Helper()
	v := validate.New(&schema.StaticProvider{Metadata: schema.LedgerMetadata()},
		validate.DefaultConfig(), nil)
	vd := v.Validate(context.Background(), query)
	require.True(t, vd.Accepted(), "reason: %s", vd.Reason())
	return vd
}

func TestExecute_ReturnsBoundedRows(t *testing.T) {
	db := openLedger(t)
	ex := New(db, DefaultConfig(), nil)

	vd := acceptedVerdict(t,
		"SELECT tx_id, value FROM finance_transactions WHERE currency = 'USD' ORDER BY tx_id")
	res, err := ex.Execute(context.Background(), vd)
	require.NoError(t, err)

	assert.Equal(t, []string{"tx_id", "value"}, res.Columns)
	assert.Equal(t, 3, res.RowCount)
	assert.False(t, res.Truncated)
	assert.Equal(t, "3 rows x 2 columns", res.Digest())
}

func TestExecute_SingleValueDigest(t *testing.T) {
	db := openLedger(t)
	ex := New(db, DefaultConfig(), nil)

	vd := acceptedVerdict(t,
		"SELECT SUM(value) AS total FROM finance_transactions WHERE period_start >= '2022-08-01' AND period_end <= '2022-08-31'")
	res, err := ex.Execute(context.Background(), vd)
	require.NoError(t, err)

	require.Equal(t, 1, res.RowCount)
	assert.Equal(t, "total = 1500.75", res.Digest())
}

func TestExecute_RowCapTruncates(t *testing.T) {
	db := openLedger(t)
	ex := New(db, Config{MaxRows: 2}, nil)

	vd := acceptedVerdict(t, "SELECT tx_id FROM finance_transactions ORDER BY tx_id")
	res, err := ex.Execute(context.Background(), vd)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Digest(), "(truncated)")
}

func TestExecute_RejectedVerdictNeverRuns(t *testing.T) {
	db := openLedger(t)
	ex := New(db, DefaultConfig(), nil)

	var zero validate.Verdict
	_, err := ex.Execute(context.Background(), zero)
	assert.ErrorIs(t, err, ErrVerdictRejected)
}

func TestExecute_TimeoutMapsToUpstreamTimeout(t *testing.T) {
	db := openLedger(t)
	ex := New(db, Config{Timeout: time.Nanosecond}, nil)

	vd := acceptedVerdict(t, "SELECT tx_id FROM finance_transactions")
	_, err := ex.Execute(context.Background(), vd)
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
}

func TestExecute_EmptyResult(t *testing.T) {
	db := openLedger(t)
	ex := New(db, DefaultConfig(), nil)

	vd := acceptedVerdict(t,
		"SELECT tx_id FROM finance_transactions WHERE currency = 'JPY'")
	res, err := ex.Execute(context.Background(), vd)
	require.NoError(t, err)

	assert.Equal(t, 0, res.RowCount)
	assert.Equal(t, "no rows", res.Digest())
}
