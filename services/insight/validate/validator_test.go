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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/17user21id/financial-ai-analytics/services/insight/schema"
)

func newTestValidator(t *testing.T, cfg Config) *Validator {
	t.Helper()
	provider := &schema.StaticProvider{Metadata: schema.LedgerMetadata()}
	return New(provider, cfg, nil)
}

func TestValidate_AcceptsWellFormedQuery(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())

	vd := v.Validate(context.Background(),
		"SELECT SUM(value) AS total_value FROM finance_transactions "+
			"WHERE period_start >= '2022-08-01' AND period_end <= '2022-08-31'")

	require.True(t, vd.Accepted())
	assert.Nil(t, vd.Err())
	assert.Equal(t, "ACCEPTED", vd.Code())
	assert.Equal(t, StageMutationGuard, vd.Stage())
	assert.True(t, vd.RewriteApplied())
	assert.Contains(t, vd.Query(), "LIMIT 1000")
}

func TestValidate_SyntaxCheck(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	ctx := context.Background()

	cases := []struct {
		name  string
		query string
	}{
		{"empty", "   "},
		{"multiple statements", "SELECT tx_id FROM finance_transactions; DROP TABLE accounts"},
		{"line comment", "SELECT tx_id FROM finance_transactions -- hidden"},
		{"block comment", "SELECT tx_id /* x */ FROM finance_transactions"},
		{"unbalanced literal", "SELECT tx_id FROM finance_transactions WHERE currency = 'USD"},
		{"non-select head", "EXPLAIN SELECT tx_id FROM finance_transactions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vd := v.Validate(ctx, tc.query)
			require.False(t, vd.Accepted())
			assert.Equal(t, StageSyntaxCheck, vd.Stage())
			assert.ErrorIs(t, vd.Err(), ErrStructuralViolation)
			assert.Empty(t, vd.Query())
		})
	}
}

func TestValidate_LengthCap(t *testing.T) {
	v := newTestValidator(t, Config{MaxQueryLength: 40})

	long := "SELECT tx_id FROM finance_transactions WHERE currency = 'USD'"
	vd := v.Validate(context.Background(), long)

	require.False(t, vd.Accepted())
	assert.Equal(t, StageSyntaxCheck, vd.Stage())
	assert.ErrorIs(t, vd.Err(), ErrStructuralViolation)
}

func TestValidate_TrailingSemicolonTolerated(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())

	vd := v.Validate(context.Background(),
		"SELECT tx_id FROM finance_transactions LIMIT 10;")

	require.True(t, vd.Accepted())
	assert.False(t, vd.RewriteApplied())
	assert.NotContains(t, vd.Query(), ";")
}

func TestValidate_ParameterSanitization(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	ctx := context.Background()

	t.Run("string literal against numeric column", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT tx_id FROM finance_transactions WHERE value = 'lots'")
		require.False(t, vd.Accepted())
		assert.Equal(t, StageParameterSanitization, vd.Stage())
		assert.ErrorIs(t, vd.Err(), ErrParameterViolation)
	})

	t.Run("bare literal against text column", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT tx_id FROM finance_transactions WHERE currency = 42")
		require.False(t, vd.Accepted())
		assert.ErrorIs(t, vd.Err(), ErrParameterViolation)
	})

	t.Run("numeric magnitude beyond ledger precision", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT tx_id FROM finance_transactions WHERE value > 99999999999999999")
		require.False(t, vd.Accepted())
		assert.ErrorIs(t, vd.Err(), ErrParameterViolation)
	})

	t.Run("date literal against date column passes", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT tx_id FROM finance_transactions WHERE period_start >= '2022-08-01'")
		assert.True(t, vd.Accepted())
	})
}

func TestValidate_InjectionSuspected(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	ctx := context.Background()

	t.Run("payload smuggled in literal", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT tx_id FROM finance_transactions WHERE notes = 'x; drop table accounts'")
		require.False(t, vd.Accepted())
		assert.Equal(t, StageParameterSanitization, vd.Stage())
		assert.ErrorIs(t, vd.Err(), ErrInjectionSuspected)
		assert.Equal(t, "INJECTION_SUSPECTED", vd.Code())
	})

	t.Run("tautology", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT tx_id FROM finance_transactions WHERE currency = 'USD' OR 1=1")
		require.False(t, vd.Accepted())
		assert.ErrorIs(t, vd.Err(), ErrInjectionSuspected)
	})

	t.Run("ordinary OR predicate passes", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT tx_id FROM finance_transactions WHERE currency = 'USD' OR currency = 'EUR'")
		assert.True(t, vd.Accepted())
	})
}

func TestValidate_SchemaEnforcement(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	ctx := context.Background()

	cases := []struct {
		name  string
		query string
	}{
		{"unknown table", "SELECT tx_id FROM payroll"},
		{"unknown column", "SELECT salary FROM finance_transactions"},
		{"unknown qualifier", "SELECT z.value FROM finance_transactions t"},
		{"unknown qualified column", "SELECT t.salary FROM finance_transactions t"},
		{"join without declared relationship",
			"SELECT a.name FROM accounts a JOIN finance_transactions t ON a.name = t.currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vd := v.Validate(ctx, tc.query)
			require.False(t, vd.Accepted())
			assert.Equal(t, StageSchemaEnforcement, vd.Stage())
			assert.ErrorIs(t, vd.Err(), ErrSchemaViolation)
		})
	}

	t.Run("foreign key join passes", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT a.name, SUM(t.value) AS total FROM accounts a "+
				"JOIN finance_transactions t ON t.account_id = a.account_id "+
				"GROUP BY a.name")
		require.True(t, vd.Accepted())
	})

	t.Run("output alias reusable in order by", func(t *testing.T) {
		vd := v.Validate(ctx,
			"SELECT currency, SUM(value) AS monthly_total FROM finance_transactions "+
				"GROUP BY currency ORDER BY monthly_total DESC")
		require.True(t, vd.Accepted())
	})
}

func TestValidate_CTEQueries(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	ctx := context.Background()

	t.Run("cte name is a valid table", func(t *testing.T) {
		vd := v.Validate(ctx,
			"WITH monthly AS (SELECT period_start, SUM(value) AS total_value "+
				"FROM finance_transactions GROUP BY period_start) "+
				"SELECT period_start, total_value FROM monthly ORDER BY period_start")
		require.True(t, vd.Accepted(), vd.Reason())
	})

	t.Run("cte name is a valid qualifier", func(t *testing.T) {
		vd := v.Validate(ctx,
			"WITH m AS (SELECT account_id, SUM(value) AS total_value "+
				"FROM finance_transactions GROUP BY account_id) "+
				"SELECT m.account_id, m.total_value FROM m")
		require.True(t, vd.Accepted(), vd.Reason())
	})

	t.Run("cte joined to a schema table", func(t *testing.T) {
		vd := v.Validate(ctx,
			"WITH m AS (SELECT account_id, SUM(value) AS total_value "+
				"FROM finance_transactions GROUP BY account_id) "+
				"SELECT name, total_value FROM accounts JOIN m ON m.account_id = accounts.account_id")
		require.True(t, vd.Accepted(), vd.Reason())
	})

	t.Run("unknown table inside cte body still rejected", func(t *testing.T) {
		vd := v.Validate(ctx,
			"WITH m AS (SELECT account_id FROM missing_table) SELECT account_id FROM m")
		require.False(t, vd.Accepted())
		assert.Equal(t, StageSchemaEnforcement, vd.Stage())
		assert.ErrorIs(t, vd.Err(), ErrSchemaViolation)
	})
}

func TestValidate_JoinCap(t *testing.T) {
	v := newTestValidator(t, Config{MaxJoins: 1})

	vd := v.Validate(context.Background(),
		"SELECT a.name FROM accounts a "+
			"JOIN finance_transactions t ON t.account_id = a.account_id "+
			"JOIN finance_transactions u ON u.account_id = a.account_id")

	require.False(t, vd.Accepted())
	assert.Equal(t, StageSchemaEnforcement, vd.Stage())
	assert.ErrorIs(t, vd.Err(), ErrSchemaViolation)
	assert.Contains(t, vd.Reason(), "joins exceeds cap")
}

func TestValidate_MutationGuard(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	ctx := context.Background()

	cases := []struct {
		name  string
		query string
	}{
		{"update", "UPDATE accounts SET name = 'x' WHERE account_id = 'a1'"},
		{"delete", "DELETE FROM finance_transactions"},
		{"drop", "DROP TABLE accounts"},
		{"insert", "INSERT INTO accounts (account_id) VALUES ('a1')"},
		{"pragma", "PRAGMA table_info(accounts)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vd := v.Validate(ctx, tc.query)
			require.False(t, vd.Accepted())
			assert.Equal(t, StageMutationGuard, vd.Stage())
			assert.ErrorIs(t, vd.Err(), ErrWriteAttemptBlocked)
			assert.Equal(t, "WRITE_ATTEMPT_BLOCKED", vd.Code())
		})
	}
}

func TestValidate_SchemaUnavailable(t *testing.T) {
	provider := &schema.StaticProvider{Err: errors.New("ledger store offline")}
	v := New(provider, DefaultConfig(), nil)

	vd := v.Validate(context.Background(),
		"SELECT tx_id FROM finance_transactions")

	require.False(t, vd.Accepted())
	assert.Equal(t, StageSchemaEnforcement, vd.Stage())
	assert.ErrorIs(t, vd.Err(), schema.ErrSchemaUnavailable)
	assert.Equal(t, "SCHEMA_UNAVAILABLE", vd.Code())
}

func TestNormalizeLimit(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	ctx := context.Background()

	t.Run("appended when missing", func(t *testing.T) {
		vd := v.Validate(ctx, "SELECT tx_id FROM finance_transactions")
		require.True(t, vd.Accepted())
		assert.True(t, vd.RewriteApplied())
		assert.True(t, strings.HasSuffix(vd.Query(), "LIMIT 1000"))
	})

	t.Run("clamped when oversized", func(t *testing.T) {
		vd := v.Validate(ctx, "SELECT tx_id FROM finance_transactions LIMIT 50000")
		require.True(t, vd.Accepted())
		assert.True(t, vd.RewriteApplied())
		assert.Contains(t, vd.Query(), "LIMIT 1000")
		assert.NotContains(t, vd.Query(), "50000")
	})

	t.Run("kept when within cap", func(t *testing.T) {
		vd := v.Validate(ctx, "SELECT tx_id FROM finance_transactions LIMIT 25")
		require.True(t, vd.Accepted())
		assert.False(t, vd.RewriteApplied())
		assert.Contains(t, vd.Query(), "LIMIT 25")
	})
}

func TestVerdict_ZeroValueIsRejection(t *testing.T) {
	var vd Verdict
	assert.False(t, vd.Accepted())
	assert.Empty(t, vd.Query())
}
