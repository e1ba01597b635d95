// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package provider

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tejzpr/kioku/internal/memory"
)

// DefaultClaudeModel is used when no model is configured
const DefaultClaudeModel = "claude-3-5-haiku-latest"

// ClaudeSummarizer summarizes turns with the Anthropic Messages API
type ClaudeSummarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int
	pacer     *pacer
}

// NewClaudeSummarizer creates a Claude summarizer
func NewClaudeSummarizer(opts Options) (*ClaudeSummarizer, error) {
	if opts.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required for the claude summarizer")
	}

	clientOpts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(opts.AnthropicAPIKey),
		anthropicopt.WithMaxRetries(opts.MaxRetries),
	}
	if opts.AnthropicBaseURL != "" {
		clientOpts = append(clientOpts, anthropicopt.WithBaseURL(opts.AnthropicBaseURL))
	}

	model := opts.SummarizerModel
	if model == "" {
		model = DefaultClaudeModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	return &ClaudeSummarizer{
		client:    anthropic.NewClient(clientOpts...),
		model:     model,
		maxTokens: maxTokens,
		pacer:     newPacer(opts.RequestsPerSecond, opts.Burst),
	}, nil
}

// Name returns the provider name
func (c *ClaudeSummarizer) Name() string {
	return NameClaude
}

// Summarize sends the turn to Claude and parses the reply
func (c *ClaudeSummarizer) Summarize(ctx context.Context, turn memory.Turn) (*Summary, error) {
	if err := c.pacer.wait(ctx, "summarize"); err != nil {
		return nil, err
	}

	reply, err := c.complete(ctx, BuildPrompt(turn), c.maxTokens)
	if err != nil {
		return nil, err
	}
	return ParseResponse(reply), nil
}

// HealthCheck sends a minimal request
func (c *ClaudeSummarizer) HealthCheck(ctx context.Context) error {
	_, err := c.complete(ctx, "Hello", 10)
	return err
}

func (c *ClaudeSummarizer) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classify("summarize", NameClaude, err)
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String(), nil
}
