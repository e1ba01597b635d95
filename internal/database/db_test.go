// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestConnect_SQLite(t *testing.T) {
	cfg := &Config{
		Type:       TypeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		LogLevel:   logger.Silent,
	}

	db, err := Connect(cfg)
	require.NoError(t, err)
	require.NotNil(t, db)

	assert.NoError(t, Ping(db))
	assert.NoError(t, Close(db))
}

func TestConnect_InvalidType(t *testing.T) {
	db, err := Connect(&Config{Type: "mysql", LogLevel: logger.Silent})
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestEnsureSQLiteDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "another", "test.db")

	require.NoError(t, ensureSQLiteDir(dbPath))

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMigrate(t *testing.T) {
	db, err := Connect(&Config{
		Type:       TypeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		LogLevel:   logger.Silent,
	})
	require.NoError(t, err)
	defer func() { _ = Close(db) }()

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&KiokuMemory{}))
	assert.True(t, db.Migrator().HasIndex("kioku_memories", "idx_memories_user_created"))

	// migrations are idempotent
	require.NoError(t, Migrate(db))

	row := KiokuMemory{
		ID:           "3f1c1b9e-7c61-4d1e-9d7a-2b0c8f6f1a11",
		Summary:      "再会",
		Emotions:     []string{"喜び", "再会"},
		OriginalUser: "u",
		OriginalAI:   "a",
		Embedding:    Float32SliceToBlob([]float32{1, 2}),
		Dimensions:   2,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, db.Create(&row).Error)

	var got KiokuMemory
	require.NoError(t, db.First(&got, "id = ?", row.ID).Error)
	assert.Equal(t, row.Emotions, got.Emotions)
	assert.Equal(t, []float32{1, 2}, BlobToFloat32Slice(got.Embedding))

	require.NoError(t, DropAllTables(db))
	assert.False(t, db.Migrator().HasTable(&KiokuMemory{}))
}

func TestBlobRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, in, BlobToFloat32Slice(Float32SliceToBlob(in)))
	assert.Nil(t, BlobToFloat32Slice([]byte{1, 2, 3}))
}
