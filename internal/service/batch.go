// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tejzpr/kioku/internal/batch"
	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// BatchSaveReport is the outcome of a batch save
type BatchSaveReport struct {
	batch.Summary
	Results []batch.Result[*memory.Record]
	// DistinctEmotions counts the distinct tags across successful saves
	DistinctEmotions int
}

// BatchSearchRequest runs several queries with shared options
type BatchSearchRequest struct {
	Queries []string
	TopK    int
	UserID  string
}

// BatchSearchReport is the outcome of a batch search
type BatchSearchReport struct {
	batch.Summary
	Queries []string
	Results []batch.Result[[]memory.SearchResult]
}

// BatchSave saves every turn concurrently. The whole batch is rejected
// before any provider call when a single item is invalid. After that each
// item succeeds or fails on its own.
func (s *Service) BatchSave(ctx context.Context, turns []memory.Turn) (*BatchSaveReport, error) {
	if len(turns) == 0 {
		return nil, memory.NewValidationError("batch_save", "no save requests")
	}
	if len(turns) > memory.MaxBatchSaveSize {
		return nil, memory.NewValidationError("batch_save", "batch too large (max %d)", memory.MaxBatchSaveSize)
	}
	for i, t := range turns {
		if err := t.Validate(); err != nil {
			return nil, memory.NewValidationError("batch_save", "request %d: %s", i+1, memory.Message(err))
		}
	}

	s.logger.Info("batch_save_started", "batch_size", len(turns))
	start := time.Now()

	results := batch.Run(ctx, turns, s.opts.SaveConcurrency,
		func(ctx context.Context, _ int, t memory.Turn) (*memory.Record, error) {
			return s.Save(ctx, t)
		}, s.itemOptions()...)

	report := &BatchSaveReport{
		Summary: batch.Summarize(results, time.Since(start)),
		Results: results,
	}
	seen := make(map[emotion.Tag]struct{})
	for i, r := range results {
		if r.Err != nil {
			s.logger.Error("batch_save_single_error", "index", i, "error", r.Err)
			continue
		}
		for _, tag := range r.Value.Emotions {
			seen[tag] = struct{}{}
		}
	}
	report.DistinctEmotions = len(seen)

	s.observer.ObserveBatch("batch_save", report.Succeeded, report.Failed)
	s.logger.Info("batch_save_completed",
		"total_requested", report.Total,
		"successful_saves", report.Succeeded,
		"failed_saves", report.Failed,
		"success_rate", report.SuccessRate,
		"total_processing_time_ms", report.Elapsed.Milliseconds(),
	)
	return report, nil
}

// BatchSearch runs every query concurrently with the same top_k and user
// scope. Validation is all-or-nothing, item failures are isolated.
func (s *Service) BatchSearch(ctx context.Context, req BatchSearchRequest) (*BatchSearchReport, error) {
	if len(req.Queries) == 0 {
		return nil, memory.NewValidationError("batch_search", "no search queries")
	}
	if len(req.Queries) > memory.MaxBatchQuerySize {
		return nil, memory.NewValidationError("batch_search", "batch too large (max %d)", memory.MaxBatchQuerySize)
	}
	if req.TopK < 1 || req.TopK > memory.MaxBatchTopK {
		return nil, memory.NewValidationError("batch_search", "top_k must be between 1 and %d", memory.MaxBatchTopK)
	}
	for i, q := range req.Queries {
		if strings.TrimSpace(q) == "" {
			return nil, memory.NewValidationError("batch_search", "query %d is empty", i+1)
		}
		if utf8.RuneCountInString(q) > memory.MaxQueryLength {
			return nil, memory.NewValidationError("batch_search", "query %d exceeds %d characters", i+1, memory.MaxQueryLength)
		}
	}

	s.logger.Info("batch_search_started", "batch_size", len(req.Queries), "top_k", req.TopK, "user_id", req.UserID)
	start := time.Now()

	results := batch.Run(ctx, req.Queries, s.opts.SearchConcurrency,
		func(ctx context.Context, _ int, query string) (res []memory.SearchResult, err error) {
			itemStart := time.Now()
			defer func() { s.observer.ObserveOperation("search", err, time.Since(itemStart)) }()
			return s.search(ctx, memory.SearchQuery{
				Query:  query,
				TopK:   req.TopK,
				Filter: memory.Filter{UserID: req.UserID},
			}, memory.MaxBatchTopK)
		}, s.itemOptions()...)

	report := &BatchSearchReport{
		Summary: batch.Summarize(results, time.Since(start)),
		Queries: req.Queries,
		Results: results,
	}
	for i, r := range results {
		if r.Err != nil {
			s.logger.Error("batch_search_single_error", "index", i, "error", r.Err)
		}
	}

	s.observer.ObserveBatch("batch_search", report.Succeeded, report.Failed)
	s.logger.Info("batch_search_completed",
		"total_queries", report.Total,
		"successful_searches", report.Succeeded,
		"failed_searches", report.Failed,
		"total_processing_time_ms", report.Elapsed.Milliseconds(),
	)
	return report, nil
}

func (s *Service) itemOptions() []batch.Option {
	if s.opts.BatchItemTimeout <= 0 {
		return nil
	}
	return []batch.Option{batch.WithItemTimeout(s.opts.BatchItemTimeout)}
}
