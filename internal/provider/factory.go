// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package provider

import "fmt"

// Options selects and configures the providers
type Options struct {
	Summarizer string // "claude", "openai" or "mock"
	Embedder   string // "openai" or "mock"

	SummarizerModel string
	EmbeddingModel  string
	Dimensions      int
	MaxTokens       int

	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string

	// MaxRetries is passed to SDKs that retry internally
	MaxRetries int
	// RequestsPerSecond paces outbound calls; zero disables pacing
	RequestsPerSecond float64
	Burst             int
}

// NewSummarizer builds the configured summarizer
func NewSummarizer(opts Options) (Summarizer, error) {
	switch opts.Summarizer {
	case NameClaude:
		return NewClaudeSummarizer(opts)
	case NameOpenAI:
		return NewOpenAISummarizer(opts)
	case NameMock, "":
		return NewMockSummarizer(), nil
	default:
		return nil, fmt.Errorf("unsupported summarizer provider: %s", opts.Summarizer)
	}
}

// NewEmbedder builds the configured embedder
func NewEmbedder(opts Options) (Embedder, error) {
	switch opts.Embedder {
	case NameOpenAI:
		return NewOpenAIEmbedder(opts)
	case NameMock, "":
		return NewMockEmbedder(opts.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", opts.Embedder)
	}
}
