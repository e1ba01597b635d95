// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package service implements the save and search pipelines on top of the
// providers, the candidate store and the recall engine.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
	"github.com/tejzpr/kioku/internal/provider"
	"github.com/tejzpr/kioku/internal/recall"
	"github.com/tejzpr/kioku/internal/store"
)

// Defaults applied when Options leaves a field unset
const (
	DefaultProviderTimeout   = 30 * time.Second
	DefaultSaveConcurrency   = 10
	DefaultSearchConcurrency = 5
)

// Observer receives operation metrics. *metrics.Metrics implements it.
type Observer interface {
	ObserveOperation(op string, err error, d time.Duration)
	ObserveBatch(op string, succeeded, failed int)
	ObserveEmotions(tags []emotion.Tag)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, error, time.Duration) {}
func (noopObserver) ObserveBatch(string, int, int)                 {}
func (noopObserver) ObserveEmotions([]emotion.Tag)                 {}

// Options configures a Service
type Options struct {
	// ProviderTimeout bounds each summarizer or embedder call
	ProviderTimeout time.Duration
	// SaveConcurrency caps parallel saves in a batch
	SaveConcurrency int
	// SearchConcurrency caps parallel searches in a batch
	SearchConcurrency int
	// BatchItemTimeout bounds each batch item; zero disables it
	BatchItemTimeout time.Duration
	Recall           recall.Options
	Logger           *slog.Logger
	Observer         Observer
	// Now overrides the clock used for created_at
	Now func() time.Time
}

// Service is the ingestion and query pipeline
type Service struct {
	summarizer provider.Summarizer
	embedder   provider.Embedder
	store      store.Store
	engine     *recall.Engine
	opts       Options
	logger     *slog.Logger
	observer   Observer
}

// New wires a service. Providers and store are required.
func New(summarizer provider.Summarizer, embedder provider.Embedder, st store.Store, opts Options) *Service {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.SaveConcurrency < 1 {
		opts.SaveConcurrency = DefaultSaveConcurrency
	}
	if opts.SearchConcurrency < 1 {
		opts.SearchConcurrency = DefaultSearchConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var observer Observer = noopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}

	logger.Info("memory_service_initialized",
		"summarizer", summarizer.Name(),
		"embedding_model", embedder.Model(),
		"embedding_dimensions", embedder.Dimensions(),
	)

	return &Service{
		summarizer: summarizer,
		embedder:   embedder,
		store:      st,
		engine:     recall.New(st, opts.Recall),
		opts:       opts,
		logger:     logger,
		observer:   observer,
	}
}

// Save summarizes, embeds and persists one dialogue turn. Validation
// failures never reach a provider, and nothing is persisted unless every
// stage succeeds.
func (s *Service) Save(ctx context.Context, turn memory.Turn) (rec *memory.Record, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("save", err, time.Since(start)) }()

	if err := turn.Validate(); err != nil {
		return nil, err
	}

	s.logger.Debug("memory_save_started",
		"user_id", turn.UserID,
		"session_id", turn.SessionID,
		"context_turns", len(turn.Context),
	)

	summary, err := s.summarize(ctx, turn)
	if err != nil {
		s.logger.Error("memory_save_llm_failed", "error", err, "error_type", memory.KindOf(err).String())
		return nil, err
	}

	vector, err := s.embed(ctx, memory.EmbeddingText(summary.Text, turn))
	if err != nil {
		s.logger.Error("memory_save_embedding_failed", "error", err, "error_type", memory.KindOf(err).String())
		return nil, err
	}

	rec = &memory.Record{
		ID:           uuid.New(),
		Summary:      summary.Text,
		Emotions:     summary.Emotions,
		OriginalUser: turn.UserMessage,
		OriginalAI:   turn.AIResponse,
		Embedding:    vector,
		UserID:       turn.UserID,
		SessionID:    turn.SessionID,
		AppName:      turn.AppName,
		CreatedAt:    s.opts.Now().UTC(),
	}

	// nothing has been written yet, so a caller that gave up can retry
	if err := ctx.Err(); err != nil {
		err = contextStoreError("save", err)
		s.logger.Error("memory_save_failed", "stage", "store", "error", err)
		return nil, err
	}
	if err := s.store.Add(ctx, rec); err != nil {
		err = asStoreError("save", "failed to persist memory", err)
		s.logger.Error("memory_save_failed", "memory_id", rec.ID, "error", err)
		return nil, err
	}

	s.observer.ObserveEmotions(rec.Emotions)
	s.logger.Info("memory_save_completed",
		"memory_id", rec.ID,
		"summary", rec.Summary,
		"emotions", emotion.Strings(rec.Emotions),
		"processing_time_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// summarize calls the summarizer and checks its output
func (s *Service) summarize(ctx context.Context, turn memory.Turn) (*provider.Summary, error) {
	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	out, err := s.summarizer.Summarize(pctx, turn)
	if err != nil {
		return nil, asProviderError(pctx, "summarize", "summarization failed", err)
	}
	if out == nil {
		return nil, memory.NewProviderError("summarize", "summarizer returned no output", nil)
	}

	text := strings.TrimSpace(out.Text)
	if err := memory.ValidateSummary(text, out.Emotions); err != nil {
		return nil, err
	}
	return &provider.Summary{Text: text, Emotions: emotion.Normalize(out.Emotions)}, nil
}

// embed calls the embedder and checks the vector dimension
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(pctx, text)
	if err != nil {
		return nil, asProviderError(pctx, "embed", "embedding failed", err)
	}
	if want := s.embedder.Dimensions(); len(vector) != want {
		return nil, memory.NewProviderError("embed", "embedding dimension mismatch", nil)
	}
	return vector, nil
}

// Search embeds the query and returns ranked matches. An empty result is a
// success.
func (s *Service) Search(ctx context.Context, q memory.SearchQuery) (results []memory.SearchResult, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("search", err, time.Since(start)) }()

	return s.search(ctx, q, memory.MaxTopK)
}

func (s *Service) search(ctx context.Context, q memory.SearchQuery, maxTopK int) ([]memory.SearchResult, error) {
	if err := q.Validate(maxTopK); err != nil {
		return nil, err
	}

	vector, err := s.embed(ctx, q.Query)
	if err != nil {
		s.logger.Error("memory_search_failed", "stage", "embed", "error", err)
		return nil, err
	}

	results, err := s.engine.Search(ctx, vector, q.Filter, q.TopK)
	if err != nil {
		s.logger.Error("memory_search_failed", "stage", "store", "error", err)
		return nil, err
	}

	s.logger.Info("memory_search_completed",
		"top_k", q.TopK,
		"user_id", q.UserID,
		"results_count", len(results),
	)
	return results, nil
}

// Get returns the memory with id
func (s *Service) Get(ctx context.Context, id string) (rec *memory.Record, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("get", err, time.Since(start)) }()

	uid, err := parseID("get", id)
	if err != nil {
		return nil, err
	}
	rec, err = s.store.Get(ctx, uid)
	if err != nil {
		return nil, asStoreError("get", "failed to load memory", err)
	}
	return rec, nil
}

// Delete removes the memory with id
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("delete", err, time.Since(start)) }()

	uid, err := parseID("delete", id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, uid); err != nil {
		return asStoreError("delete", "failed to delete memory", err)
	}
	s.logger.Info("memory_deleted", "memory_id", uid)
	return nil
}

// List returns memories matching the filter, newest first
func (s *Service) List(ctx context.Context, q memory.ListQuery) (records []*memory.Record, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("list", err, time.Since(start)) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.engine.List(ctx, q.Filter, q.Limit, q.Offset)
}

// Updatable metadata fields
var updatableFields = map[string]bool{
	"user_id":    true,
	"session_id": true,
	"app_name":   true,
}

// UpdateMetadata validates a metadata update and reports that it is not
// supported. Memory content is immutable.
func (s *Service) UpdateMetadata(ctx context.Context, id string, fields map[string]any) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("update", err, time.Since(start)) }()

	uid, err := parseID("update", id)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return memory.NewValidationError("update", "no fields to update")
	}
	for k := range fields {
		if !updatableFields[k] {
			return memory.NewValidationError("update", "field %q cannot be updated", k)
		}
	}
	if _, err := s.store.Get(ctx, uid); err != nil {
		return asStoreError("update", "failed to load memory", err)
	}
	return memory.NewNotImplementedError("update", "metadata update is not supported")
}

func parseID(op, id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, memory.NewValidationError(op, "invalid memory id: %s", id)
	}
	return uid, nil
}

// asProviderError keeps typed errors and classifies the rest
func asProviderError(ctx context.Context, op, message string, err error) error {
	var typed *memory.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return memory.NewCanceledError(op, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return memory.NewTimeoutError(op, err)
	}
	return memory.NewProviderError(op, message, err)
}

// asStoreError keeps typed errors and wraps the rest as store failures
func asStoreError(op, message string, err error) error {
	var typed *memory.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return memory.NewCanceledError(op, err)
	}
	return memory.NewStoreError(op, message, err)
}

// contextStoreError types a context that ended before the store was reached
func contextStoreError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return memory.NewCanceledError(op, err)
	}
	return memory.NewStoreError(op, "deadline passed before persisting", err)
}
