// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tejzpr/kioku/internal/database"
	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// GormStore keeps records in a relational table and ranks them in process
// by cosine distance. It works on sqlite and postgres without extensions.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and returns a store over db
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Add inserts a record
func (s *GormStore) Add(ctx context.Context, rec *memory.Record) error {
	row := toRow(rec)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return memory.NewStoreError("add", "failed to persist memory", err)
	}
	return nil
}

// Get returns the record with id
func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*memory.Record, error) {
	var row database.KiokuMemory
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, memory.NewNotFoundError("get", id.String())
	}
	if err != nil {
		return nil, memory.NewStoreError("get", "failed to load memory", err)
	}
	return fromRow(&row), nil
}

// Delete removes the record with id
func (s *GormStore) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&database.KiokuMemory{})
	if res.Error != nil {
		return memory.NewStoreError("delete", "failed to delete memory", res.Error)
	}
	if res.RowsAffected == 0 {
		return memory.NewNotFoundError("delete", id.String())
	}
	return nil
}

// Query returns up to k candidates nearest to vector
func (s *GormStore) Query(ctx context.Context, vector []float32, k int, where Where) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}

	q := s.db.WithContext(ctx).Model(&database.KiokuMemory{})
	if where.UserID != "" {
		q = q.Where("user_id = ?", where.UserID)
	}

	var rows []database.KiokuMemory
	if IsZeroVector(vector) {
		if err := q.Order("created_at DESC").Order("id").Limit(k).Find(&rows).Error; err != nil {
			return nil, memory.NewStoreError("query", "search failed", err)
		}
		out := make([]Candidate, len(rows))
		for i := range rows {
			out[i] = Candidate{Record: fromRow(&rows[i]), Distance: 1}
		}
		return out, nil
	}

	if err := q.Find(&rows).Error; err != nil {
		return nil, memory.NewStoreError("query", "search failed", err)
	}

	out := make([]Candidate, 0, len(rows))
	for i := range rows {
		rec := fromRow(&rows[i])
		if rec.Embedding == nil {
			continue
		}
		out = append(out, Candidate{Record: rec, Distance: CosineDistance(vector, rec.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Record.CreatedAt.After(out[j].Record.CreatedAt)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Count returns the number of stored records
func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&database.KiokuMemory{}).Count(&n).Error; err != nil {
		return 0, memory.NewStoreError("count", "failed to count memories", err)
	}
	return n, nil
}

// Recent returns up to n records, newest first
func (s *GormStore) Recent(ctx context.Context, n int) ([]*memory.Record, error) {
	var rows []database.KiokuMemory
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(n).Find(&rows).Error; err != nil {
		return nil, memory.NewStoreError("recent", "failed to load recent memories", err)
	}
	out := make([]*memory.Record, len(rows))
	for i := range rows {
		out[i] = fromRow(&rows[i])
	}
	return out, nil
}

// Ping checks the connection
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection
func (s *GormStore) Close() error {
	return database.Close(s.db)
}

func toRow(rec *memory.Record) database.KiokuMemory {
	return database.KiokuMemory{
		ID:           rec.ID.String(),
		Summary:      rec.Summary,
		Emotions:     emotion.Strings(rec.Emotions),
		OriginalUser: rec.OriginalUser,
		OriginalAI:   rec.OriginalAI,
		Embedding:    database.Float32SliceToBlob(rec.Embedding),
		Dimensions:   len(rec.Embedding),
		UserID:       rec.UserID,
		SessionID:    rec.SessionID,
		AppName:      rec.AppName,
		CreatedAt:    rec.CreatedAt.UTC(),
	}
}

func fromRow(row *database.KiokuMemory) *memory.Record {
	id, _ := uuid.Parse(row.ID)
	tags := make([]emotion.Tag, 0, len(row.Emotions))
	for _, e := range row.Emotions {
		tags = append(tags, emotion.Tag(e))
	}
	return &memory.Record{
		ID:           id,
		Summary:      row.Summary,
		Emotions:     tags,
		OriginalUser: row.OriginalUser,
		OriginalAI:   row.OriginalAI,
		Embedding:    database.BlobToFloat32Slice(row.Embedding),
		UserID:       row.UserID,
		SessionID:    row.SessionID,
		AppName:      row.AppName,
		CreatedAt:    row.CreatedAt.UTC(),
	}
}
