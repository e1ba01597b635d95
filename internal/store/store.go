// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package store persists memory records and answers nearest-neighbour
// queries over their embeddings.
package store

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/tejzpr/kioku/internal/memory"
)

// Where holds the filters a store applies natively
type Where struct {
	UserID string
}

// Candidate is a record with its cosine distance to the query, in [0,2]
type Candidate struct {
	Record   *memory.Record
	Distance float64
}

// Store is the candidate store used by the recall engine. A zero or empty
// query vector means no semantic ordering: stores return the newest records
// first.
type Store interface {
	Add(ctx context.Context, rec *memory.Record) error
	Get(ctx context.Context, id uuid.UUID) (*memory.Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Query(ctx context.Context, vector []float32, k int, where Where) ([]Candidate, error)
	Count(ctx context.Context) (int64, error)
	// Recent returns up to n records, newest first
	Recent(ctx context.Context, n int) ([]*memory.Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// IsZeroVector reports whether every component of v is zero. An empty
// vector counts as zero.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// CosineDistance returns 1 - cosine similarity. Mismatched lengths or a
// zero-norm operand yield 1, the distance of an orthogonal vector.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	return math.Max(0, math.Min(2, d))
}
