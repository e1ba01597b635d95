// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// These tests need a PostgreSQL server with the vector extension available.
func setupPGVectorStore(t *testing.T) *PGVectorStore {
	t.Helper()
	dsn := os.Getenv("KIOKU_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("KIOKU_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPGVectorStore(ctx, dsn, 3)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, "TRUNCATE kioku_memories")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPGVectorStore_RoundTripAndQuery(t *testing.T) {
	s := setupPGVectorStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	near := newRecord("u1", []float32{1, 0, 0}, now, emotion.Joy, emotion.Hope)
	far := newRecord("u2", []float32{0, 1, 0}, now.Add(time.Second), emotion.Sadness)
	require.NoError(t, s.Add(ctx, near))
	require.NoError(t, s.Add(ctx, far))

	got, err := s.Get(ctx, near.ID)
	require.NoError(t, err)
	assert.Equal(t, near.Emotions, got.Emotions)
	assert.Equal(t, near.Embedding, got.Embedding)
	assert.True(t, now.Equal(got.CreatedAt))

	cands, err := s.Query(ctx, []float32{1, 0.1, 0}, 10, Where{})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, near.ID, cands[0].Record.ID)

	cands, err = s.Query(ctx, []float32{0, 0, 0}, 10, Where{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, far.ID, cands[0].Record.ID)

	require.NoError(t, s.Delete(ctx, near.ID))
	_, err = s.Get(ctx, near.ID)
	assert.Equal(t, memory.KindNotFound, memory.KindOf(err))
}

func TestPGVectorStore_RejectsWrongDimension(t *testing.T) {
	s := setupPGVectorStore(t)
	err := s.Add(context.Background(), newRecord("u1", []float32{1, 0}, time.Now(), emotion.Joy))
	assert.Equal(t, memory.KindStore, memory.KindOf(err))
}
