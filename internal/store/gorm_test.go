// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/tejzpr/kioku/internal/database"
	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

func setupTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.Connect(&database.Config{
		Type:       database.TypeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		LogLevel:   logger.Silent,
	})
	require.NoError(t, err)

	s, err := NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRecord(userID string, vec []float32, createdAt time.Time, tags ...emotion.Tag) *memory.Record {
	return &memory.Record{
		ID:           uuid.New(),
		Summary:      "summary " + userID,
		Emotions:     tags,
		OriginalUser: "user says",
		OriginalAI:   "ai says",
		Embedding:    vec,
		UserID:       userID,
		CreatedAt:    createdAt,
	}
}

func TestGormStore_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := newRecord("u1", []float32{0.1, 0.2, 0.3}, created, emotion.Joy, emotion.Reunion)
	rec.SessionID = "s1"
	rec.AppName = "app"
	require.NoError(t, s.Add(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Summary, got.Summary)
	assert.Equal(t, rec.Emotions, got.Emotions)
	assert.Equal(t, rec.OriginalUser, got.OriginalUser)
	assert.Equal(t, rec.OriginalAI, got.OriginalAI)
	assert.Equal(t, rec.Embedding, got.Embedding)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "app", got.AppName)
	assert.True(t, created.Equal(got.CreatedAt))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormStore_GetMissing(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Get(context.Background(), uuid.New())
	assert.Equal(t, memory.KindNotFound, memory.KindOf(err))
}

func TestGormStore_Delete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := newRecord("u1", []float32{1, 0}, time.Now(), emotion.Joy)
	require.NoError(t, s.Add(ctx, rec))
	require.NoError(t, s.Delete(ctx, rec.ID))

	_, err := s.Get(ctx, rec.ID)
	assert.Equal(t, memory.KindNotFound, memory.KindOf(err))

	err = s.Delete(ctx, rec.ID)
	assert.Equal(t, memory.KindNotFound, memory.KindOf(err))
}

func TestGormStore_QueryOrdersByDistance(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	near := newRecord("u1", []float32{1, 0.1}, now, emotion.Joy)
	far := newRecord("u1", []float32{0, 1}, now, emotion.Joy)
	opposite := newRecord("u2", []float32{-1, 0}, now, emotion.Joy)
	for _, r := range []*memory.Record{far, opposite, near} {
		require.NoError(t, s.Add(ctx, r))
	}

	got, err := s.Query(ctx, []float32{1, 0}, 10, Where{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, near.ID, got[0].Record.ID)
	assert.Equal(t, far.ID, got[1].Record.ID)
	assert.Equal(t, opposite.ID, got[2].Record.ID)
	assert.InDelta(t, 2.0, got[2].Distance, 1e-6)

	got, err = s.Query(ctx, []float32{1, 0}, 1, Where{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.Query(ctx, []float32{1, 0}, 10, Where{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, opposite.ID, got[0].Record.ID)
}

func TestGormStore_ZeroVectorIsNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		r := newRecord("u1", []float32{float32(i + 1), 1}, base.Add(time.Duration(i)*time.Hour), emotion.Joy)
		ids = append(ids, r.ID)
		require.NoError(t, s.Add(ctx, r))
	}

	got, err := s.Query(ctx, []float32{0, 0}, 10, Where{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].Record.ID)
	assert.Equal(t, ids[0], got[2].Record.ID)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
}

func TestGormStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, CosineDistance([]float32{1}, []float32{1, 0}))
	assert.True(t, IsZeroVector([]float32{0, 0}))
	assert.False(t, IsZeroVector([]float32{0, 1e-9}))
}
