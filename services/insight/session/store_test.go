// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateOrGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sess, created, err := store.CreateOrGet(ctx, "s-1", "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "s-1", sess.ID)
	assert.Equal(t, "alice", sess.Owner)
	assert.False(t, sess.Archived)

	again, created, err := store.CreateOrGet(ctx, "s-1", "someone-else")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice", again.Owner, "existing session keeps its owner")
}

func TestGetNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendTurnAssignsContiguousSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, _, err := store.CreateOrGet(ctx, "s-1", "alice")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		turn, err := store.AppendTurn(ctx, datatypes.Turn{
			SessionID: "s-1",
			Role:      datatypes.RoleUser,
			Text:      fmt.Sprintf("question %d", i),
		})
		require.NoError(t, err)
		assert.Equal(t, i, turn.Seq)
	}
}

func TestAppendTurnConcurrentNoGaps(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, _, err := store.CreateOrGet(ctx, "s-1", "alice")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.AppendTurn(ctx, datatypes.Turn{
				SessionID: "s-1",
				Role:      datatypes.RoleUser,
				Text:      fmt.Sprintf("msg %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, history, n)
	for i, turn := range history {
		assert.Equal(t, i+1, turn.Seq, "sequence must be contiguous with no gaps")
	}
}

func TestHistoryIsOrderedSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, _, err := store.CreateOrGet(ctx, "s-1", "alice")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.AppendTurn(ctx, datatypes.Turn{
			SessionID: "s-1",
			Role:      datatypes.RoleUser,
			Text:      fmt.Sprintf("q%d", i),
			Entities: datatypes.EntitySet{
				datatypes.CategoryPeriod: {{Value: "2022-08", Confidence: 0.9}},
			},
		})
		require.NoError(t, err)
	}

	history, err := store.History(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Appends after the snapshot must not change it.
	_, err = store.AppendTurn(ctx, datatypes.Turn{SessionID: "s-1", Role: datatypes.RoleSystem, Text: "late"})
	require.NoError(t, err)
	assert.Len(t, history, 3)

	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].Seq, history[i-1].Seq)
	}
	assert.Equal(t, "2022-08", history[0].Entities[datatypes.CategoryPeriod][0].Value)
}

func TestAppendToUnknownSession(t *testing.T) {
	store := openTestStore(t)
	_, err := store.AppendTurn(context.Background(), datatypes.Turn{
		SessionID: "missing",
		Role:      datatypes.RoleUser,
		Text:      "hi",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestArchiveBlocksAppend(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, _, err := store.CreateOrGet(ctx, "s-1", "alice")
	require.NoError(t, err)
	require.NoError(t, store.Archive(ctx, "s-1"))

	_, err = store.AppendTurn(ctx, datatypes.Turn{
		SessionID: "s-1",
		Role:      datatypes.RoleUser,
		Text:      "too late",
	})
	assert.ErrorIs(t, err, ErrSessionArchived)

	// Archived sessions remain readable.
	sess, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, sess.Archived)
}

func TestTouchSummary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, _, err := store.CreateOrGet(ctx, "s-1", "alice")
	require.NoError(t, err)

	require.NoError(t, store.TouchSummary(ctx, "s-1", "revenue questions for 2022"))
	sess, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "revenue questions for 2022", sess.Summary)
}

func TestList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"s-1", "s-2", "s-3"} {
		_, _, err := store.CreateOrGet(ctx, id, "alice")
		require.NoError(t, err)
	}
	sessions, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestInvalidTurn(t *testing.T) {
	store := openTestStore(t)
	_, err := store.AppendTurn(context.Background(), datatypes.Turn{})
	assert.ErrorIs(t, err, ErrInvalidTurn)
}
