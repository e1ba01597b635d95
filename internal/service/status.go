// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tejzpr/kioku/internal/emotion"
)

// statsSampleSize is how many recent memories feed the emotion histogram
const statsSampleSize = 100

// ComponentHealth is the status of one dependency
type ComponentHealth struct {
	Healthy    bool   `json:"healthy"`
	Type       string `json:"type"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimension,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HealthReport aggregates component checks
type HealthReport struct {
	Healthy    bool                       `json:"healthy"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health checks the store, the embedder and the summarizer
func (s *Service) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Healthy:    true,
		Timestamp:  s.opts.Now().UTC(),
		Components: make(map[string]ComponentHealth, 3),
	}

	check := func(name string, c ComponentHealth, ping func(context.Context) error) {
		pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
		defer cancel()
		if err := ping(pctx); err != nil {
			c.Error = err.Error()
		} else {
			c.Healthy = true
		}
		report.Components[name] = c
		report.Healthy = report.Healthy && c.Healthy
	}

	check("memory_store", ComponentHealth{Type: fmt.Sprintf("%T", s.store)}, s.store.Ping)
	check("embedding_client", ComponentHealth{
		Type:       fmt.Sprintf("%T", s.embedder),
		Model:      s.embedder.Model(),
		Dimensions: s.embedder.Dimensions(),
	}, s.embedder.HealthCheck)
	check("llm_client", ComponentHealth{Type: s.summarizer.Name()}, s.summarizer.HealthCheck)

	if !report.Healthy {
		s.logger.Warn("health_check_degraded", "components", report.Components)
	}
	return report
}

// Stats summarizes what the store holds
type Stats struct {
	TotalMemories      int64          `json:"total_memories"`
	RecentEmotions     map[string]int `json:"recent_emotions"`
	ServiceStatus      string         `json:"service_status"`
	LLMProvider        string         `json:"llm_provider"`
	EmbeddingModel     string         `json:"embedding_model"`
	EmbeddingDimension int            `json:"embedding_dimension"`
}

// Stats counts memories and tallies the emotions of the most recent ones
func (s *Service) Stats(ctx context.Context) (st *Stats, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("stats", err, time.Since(start)) }()

	total, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Error("stats_retrieval_failed", "error", err)
		return nil, asStoreError("stats", "failed to count memories", err)
	}
	recent, err := s.store.Recent(ctx, statsSampleSize)
	if err != nil {
		s.logger.Error("stats_retrieval_failed", "error", err)
		return nil, asStoreError("stats", "failed to load recent memories", err)
	}

	counts := make(map[string]int)
	for _, rec := range recent {
		for _, tag := range rec.Emotions {
			if tag.Valid() {
				counts[tag.String()]++
			}
		}
	}

	return &Stats{
		TotalMemories:      total,
		RecentEmotions:     counts,
		ServiceStatus:      "active",
		LLMProvider:        s.summarizer.Name(),
		EmbeddingModel:     s.embedder.Model(),
		EmbeddingDimension: s.embedder.Dimensions(),
	}, nil
}

// EmotionVocabulary lists the accepted tags by group
func EmotionVocabulary() map[string][]string {
	return map[string][]string{
		"positive": emotion.Strings(emotion.Positive()),
		"negative": emotion.Strings(emotion.Negative()),
		"neutral":  emotion.Strings(emotion.Neutral()),
		"persona":  emotion.Strings(emotion.Persona()),
	}
}
