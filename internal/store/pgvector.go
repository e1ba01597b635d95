// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// hnswMaxDimensions is the largest vector pgvector can index with HNSW
const hnswMaxDimensions = 2000

const recordColumns = `id, summary, emotions, original_user, original_ai, embedding, user_id, session_id, app_name, created_at`

// PGVectorStore keeps records in PostgreSQL and ranks them with the
// pgvector cosine distance operator.
type PGVectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPGVectorStore connects to databaseURL and ensures the schema exists
func NewPGVectorStore(ctx context.Context, databaseURL string, dimensions int) (*PGVectorStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("pgvector store needs a positive dimension, got %d", dimensions)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PGVectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kioku_memories (
			id TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			emotions TEXT[] NOT NULL,
			original_user TEXT NOT NULL,
			original_ai TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			app_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_kioku_memories_user_created ON kioku_memories (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_kioku_memories_created ON kioku_memories (created_at DESC)`,
	}
	if s.dimensions <= hnswMaxDimensions {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_kioku_memories_embedding ON kioku_memories USING hnsw (embedding vector_cosine_ops)`)
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate pgvector schema: %w", err)
		}
	}
	return nil
}

// Add inserts a record
func (s *PGVectorStore) Add(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) != s.dimensions {
		return memory.NewStoreError("add",
			fmt.Sprintf("embedding dimension %d does not match store dimension %d", len(rec.Embedding), s.dimensions), nil)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO kioku_memories (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID.String(),
		rec.Summary,
		emotion.Strings(rec.Emotions),
		rec.OriginalUser,
		rec.OriginalAI,
		pgvector.NewVector(rec.Embedding),
		rec.UserID,
		rec.SessionID,
		rec.AppName,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return memory.NewStoreError("add", "failed to persist memory", err)
	}
	return nil
}

// Get returns the record with id
func (s *PGVectorStore) Get(ctx context.Context, id uuid.UUID) (*memory.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM kioku_memories WHERE id = $1`, id.String())
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memory.NewNotFoundError("get", id.String())
	}
	if err != nil {
		return nil, memory.NewStoreError("get", "failed to load memory", err)
	}
	return rec, nil
}

// Delete removes the record with id
func (s *PGVectorStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kioku_memories WHERE id = $1`, id.String())
	if err != nil {
		return memory.NewStoreError("delete", "failed to delete memory", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.NewNotFoundError("delete", id.String())
	}
	return nil
}

// Query returns up to k candidates nearest to vector. A zero vector has no
// defined cosine distance, so those queries order by recency instead.
func (s *PGVectorStore) Query(ctx context.Context, vector []float32, k int, where Where) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}

	var (
		rows pgx.Rows
		err  error
	)
	if IsZeroVector(vector) {
		rows, err = s.pool.Query(ctx, `
			SELECT `+recordColumns+`, 1.0::float8 AS distance
			FROM kioku_memories
			WHERE ($1 = '' OR user_id = $1)
			ORDER BY created_at DESC, id
			LIMIT $2`, where.UserID, k)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+recordColumns+`, (embedding <=> $1)::float8 AS distance
			FROM kioku_memories
			WHERE ($2 = '' OR user_id = $2)
			ORDER BY embedding <=> $1, created_at DESC
			LIMIT $3`, pgvector.NewVector(vector), where.UserID, k)
	}
	if err != nil {
		return nil, memory.NewStoreError("query", "search failed", err)
	}
	defer rows.Close()

	out := make([]Candidate, 0, k)
	for rows.Next() {
		var distance float64
		rec, err := scanRecord(rows, &distance)
		if err != nil {
			return nil, memory.NewStoreError("query", "search failed", err)
		}
		out = append(out, Candidate{Record: rec, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewStoreError("query", "search failed", err)
	}
	return out, nil
}

// Count returns the number of stored records
func (s *PGVectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kioku_memories`).Scan(&n); err != nil {
		return 0, memory.NewStoreError("count", "failed to count memories", err)
	}
	return n, nil
}

// Recent returns up to n records, newest first
func (s *PGVectorStore) Recent(ctx context.Context, n int) ([]*memory.Record, error) {
	cands, err := s.Query(ctx, make([]float32, s.dimensions), n, Where{})
	if err != nil {
		return nil, err
	}
	out := make([]*memory.Record, len(cands))
	for i, c := range cands {
		out[i] = c.Record
	}
	return out, nil
}

// Ping checks the connection
func (s *PGVectorStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool
func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row, extra ...any) (*memory.Record, error) {
	var (
		id        string
		tags      []string
		vec       pgvector.Vector
		createdAt time.Time
		rec       memory.Record
	)
	dest := []any{&id, &rec.Summary, &tags, &rec.OriginalUser, &rec.OriginalAI, &vec,
		&rec.UserID, &rec.SessionID, &rec.AppName, &createdAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid memory id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Embedding = vec.Slice()
	rec.CreatedAt = createdAt.UTC()
	rec.Emotions = make([]emotion.Tag, len(tags))
	for i, t := range tags {
		rec.Emotions[i] = emotion.Tag(t)
	}
	return &rec, nil
}
