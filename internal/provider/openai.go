// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package provider

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tejzpr/kioku/internal/memory"
)

// Defaults for the OpenAI backends
const (
	DefaultOpenAIChatModel      = "gpt-4o-mini"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

func newOpenAIClient(opts Options) (*openai.Client, error) {
	if opts.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}
	return openai.NewClientWithConfig(cfg), nil
}

// OpenAISummarizer summarizes turns with the chat completions API
type OpenAISummarizer struct {
	client    *openai.Client
	model     string
	maxTokens int
	pacer     *pacer
}

// NewOpenAISummarizer creates an OpenAI summarizer
func NewOpenAISummarizer(opts Options) (*OpenAISummarizer, error) {
	client, err := newOpenAIClient(opts)
	if err != nil {
		return nil, err
	}
	model := opts.SummarizerModel
	if model == "" {
		model = DefaultOpenAIChatModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &OpenAISummarizer{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		pacer:     newPacer(opts.RequestsPerSecond, opts.Burst),
	}, nil
}

// Name returns the provider name
func (o *OpenAISummarizer) Name() string {
	return NameOpenAI
}

// Summarize sends the turn to the chat model and parses the reply
func (o *OpenAISummarizer) Summarize(ctx context.Context, turn memory.Turn) (*Summary, error) {
	if err := o.pacer.wait(ctx, "summarize"); err != nil {
		return nil, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(turn)},
		},
	})
	if err != nil {
		return nil, classify("summarize", NameOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return nil, memory.NewProviderError("summarize", "openai returned no choices", nil)
	}
	return ParseResponse(resp.Choices[0].Message.Content), nil
}

// HealthCheck lists models, which needs a valid key but no tokens
func (o *OpenAISummarizer) HealthCheck(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return classify("health", NameOpenAI, err)
	}
	return nil
}

// OpenAIEmbedder embeds text with the OpenAI embeddings API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	pacer      *pacer
}

// NewOpenAIEmbedder creates an OpenAI embedder
func NewOpenAIEmbedder(opts Options) (*OpenAIEmbedder, error) {
	client, err := newOpenAIClient(opts)
	if err != nil {
		return nil, err
	}
	model := opts.EmbeddingModel
	if model == "" {
		model = DefaultOpenAIEmbeddingModel
	}
	dims := opts.Dimensions
	if dims <= 0 {
		dims = dimensionsForModel(model)
	}
	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dims,
		pacer:      newPacer(opts.RequestsPerSecond, opts.Burst),
	}, nil
}

// Embed returns the embedding of text
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := o.pacer.wait(ctx, "embed"); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.model),
		Input: []string{text},
	}
	if o.dimensions != dimensionsForModel(o.model) {
		req.Dimensions = o.dimensions
	}

	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classify("embed", NameOpenAI, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, memory.NewProviderError("embed", "openai returned no embedding", nil)
	}
	vec := resp.Data[0].Embedding
	if len(vec) != o.dimensions {
		return nil, memory.NewProviderError("embed",
			fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(vec), o.dimensions), nil)
	}
	return vec, nil
}

// Dimensions returns the vector length
func (o *OpenAIEmbedder) Dimensions() int {
	return o.dimensions
}

// Model returns the embedding model name
func (o *OpenAIEmbedder) Model() string {
	return o.model
}

// HealthCheck embeds a short text and checks its dimension
func (o *OpenAIEmbedder) HealthCheck(ctx context.Context) error {
	_, err := o.Embed(ctx, "health check")
	return err
}
