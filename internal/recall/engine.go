// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package recall reconciles vector similarity from the candidate store
// with exact metadata filters.
package recall

import (
	"context"
	"math"
	"sort"

	"github.com/tejzpr/kioku/internal/memory"
	"github.com/tejzpr/kioku/internal/store"
)

// Defaults for candidate over-fetching
const (
	DefaultOverfetchFactor = 3
	DefaultListOverfetch   = 10
	DefaultMaxCandidates   = 1000
)

// Options tunes how many candidates are requested from the store
type Options struct {
	// OverfetchFactor multiplies top_k when any filter is set
	OverfetchFactor int
	// ListOverfetch multiplies offset+limit for listings
	ListOverfetch int
	// MaxCandidates caps every store request
	MaxCandidates int
}

func (o Options) withDefaults() Options {
	if o.OverfetchFactor < 1 {
		o.OverfetchFactor = DefaultOverfetchFactor
	}
	if o.ListOverfetch < 1 {
		o.ListOverfetch = DefaultListOverfetch
	}
	if o.MaxCandidates < 1 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	return o
}

// Engine runs filtered searches and listings over a store
type Engine struct {
	store store.Store
	opts  Options
}

// New creates an engine over s
func New(s store.Store, opts Options) *Engine {
	return &Engine{store: s, opts: opts.withDefaults()}
}

// Search returns up to topK records matching filter, ordered by descending
// score. Filters are applied after retrieval, so fewer than topK results
// may come back even when more matching records exist.
func (e *Engine) Search(ctx context.Context, vector []float32, filter memory.Filter, topK int) ([]memory.SearchResult, error) {
	if topK < 1 {
		return []memory.SearchResult{}, nil
	}

	k := topK
	if !filter.IsZero() {
		k = topK * e.opts.OverfetchFactor
	}
	k = min(k, e.opts.MaxCandidates)

	cands, err := e.store.Query(ctx, vector, k, store.Where{UserID: filter.UserID})
	if err != nil {
		return nil, memory.NewStoreError("search", "search failed", err)
	}

	results := make([]memory.SearchResult, 0, topK)
	for _, c := range cands {
		if !filter.Match(c.Record) {
			continue
		}
		results = append(results, memory.SearchResult{Record: c.Record, Score: Score(c.Distance)})
		if len(results) == topK {
			break
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// List returns the records matching filter, newest first, after skipping
// offset matches.
func (e *Engine) List(ctx context.Context, filter memory.Filter, limit, offset int) ([]*memory.Record, error) {
	if limit < 1 {
		return []*memory.Record{}, nil
	}

	k := min((offset+limit)*e.opts.ListOverfetch, e.opts.MaxCandidates)
	cands, err := e.store.Query(ctx, nil, k, store.Where{UserID: filter.UserID})
	if err != nil {
		return nil, memory.NewStoreError("list", "failed to list memories", err)
	}

	matched := make([]*memory.Record, 0, len(cands))
	for _, c := range cands {
		if filter.Match(c.Record) {
			matched = append(matched, c.Record)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []*memory.Record{}, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

// Score converts a cosine distance into a similarity in [0,1]
func Score(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	return math.Max(0, math.Min(1, 1-distance))
}
