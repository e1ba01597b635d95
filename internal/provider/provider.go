// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package provider wraps the language model and embedding backends used
// to summarize and vectorize dialogue turns.
package provider

import (
	"context"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// Provider names accepted by the factory
const (
	NameClaude = "claude"
	NameOpenAI = "openai"
	NameMock   = "mock"
)

// DefaultEmbeddingDimensions matches text-embedding-3-small
const DefaultEmbeddingDimensions = 1536

// Summary is the summarizer output for one turn
type Summary struct {
	Text     string
	Emotions []emotion.Tag
}

// Summarizer derives a summary and emotion tags from a dialogue turn
type Summarizer interface {
	Summarize(ctx context.Context, turn memory.Turn) (*Summary, error)
	Name() string
	HealthCheck(ctx context.Context) error
}

// Embedder turns text into a fixed-dimension vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the length of every vector returned by Embed
	Dimensions() int
	Model() string
	HealthCheck(ctx context.Context) error
}

// dimensionsForModel returns the native size of known OpenAI embedding models
func dimensionsForModel(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return DefaultEmbeddingDimensions
	}
}
