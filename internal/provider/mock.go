// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// mockMaxEmotions caps the tags the rule-based summarizer emits
const mockMaxEmotions = 3

// keywordEmotions drives the rule-based summarizer, in match order
var keywordEmotions = []struct {
	keyword string
	tags    []emotion.Tag
}{
	{"嬉しい", []emotion.Tag{emotion.Joy, emotion.Happiness}},
	{"悲しい", []emotion.Tag{emotion.Sadness}},
	{"不安", []emotion.Tag{emotion.Anxiety, emotion.Fear}},
	{"ありがとう", []emotion.Tag{emotion.Gratitude}},
	{"楽しい", []emotion.Tag{emotion.Amusement, emotion.Joy}},
	{"怒り", []emotion.Tag{emotion.Anger, emotion.Frustration}},
	{"驚き", []emotion.Tag{emotion.Surprise}},
	{"恥ずかしい", []emotion.Tag{emotion.Shyness, emotion.Shame}},
	{"会えて", []emotion.Tag{emotion.Reunion, emotion.Joy}},
	{"寂しい", []emotion.Tag{emotion.Loneliness, emotion.Sadness}},
}

// MockSummarizer is a deterministic rule-based summarizer for development
// and tests. It never calls the network.
type MockSummarizer struct{}

// NewMockSummarizer creates a mock summarizer
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// Name returns the provider name
func (m *MockSummarizer) Name() string {
	return NameMock
}

// Summarize derives a summary from keywords in the user message and tags
// from keywords anywhere in the turn.
func (m *MockSummarizer) Summarize(ctx context.Context, turn memory.Turn) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, memory.ProviderContextError("summarize", err)
	}

	text := turn.UserMessage + " " + turn.AIResponse
	var tags []emotion.Tag
	for _, ke := range keywordEmotions {
		if strings.Contains(text, ke.keyword) {
			tags = append(tags, ke.tags...)
		}
	}
	tags = emotion.Normalize(tags)
	if len(tags) > mockMaxEmotions {
		tags = tags[:mockMaxEmotions]
	}
	if len(tags) == 0 {
		all := emotion.All()
		tags = []emotion.Tag{all[hashString(text)%uint64(len(all))]}
	}

	return &Summary{Text: mockSummary(turn.UserMessage, turn.AIResponse), Emotions: tags}, nil
}

func mockSummary(user, ai string) string {
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(user, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("嬉しい", "楽しい"):
		return "ユーザーが喜びを表現し、AIが共感した会話"
	case has("悲しい", "不安"):
		return "ユーザーがネガティブな感情を表現し、AIが寄り添った会話"
	case has("ありがとう"):
		return "ユーザーが感謝を示し、AIが受け止めた会話"
	case has("質問", "？", "?"):
		return "ユーザーの質問にAIが回答した会話"
	case has("おはよう", "こんにちは"):
		return "ユーザーとAIが挨拶を交わした会話"
	default:
		return fmt.Sprintf("ユーザーとAIが%d文字程度の会話をした", utf8.RuneCountInString(user+ai)/10)
	}
}

// HealthCheck always succeeds
func (m *MockSummarizer) HealthCheck(ctx context.Context) error {
	return nil
}

// MockEmbedder returns a unit-length pseudo-random vector seeded by the
// text, so equal texts always embed identically.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder creates a mock embedder. Non-positive dims use the default.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}
	return &MockEmbedder{dimensions: dims}
}

// Embed returns the deterministic vector for text
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, memory.ProviderContextError("embed", err)
	}

	seed := hashString(text)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	vec := make([]float64, m.dimensions)
	var norm float64
	for i := range vec {
		vec[i] = rng.NormFloat64()
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)

	out := make([]float32, m.dimensions)
	for i, v := range vec {
		if norm > 0 {
			v /= norm
		}
		out[i] = float32(v)
	}
	return out, nil
}

// Dimensions returns the vector length
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// Model returns the mock model name
func (m *MockEmbedder) Model() string {
	return "mock-embedding"
}

// HealthCheck always succeeds
func (m *MockEmbedder) HealthCheck(ctx context.Context) error {
	return nil
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
