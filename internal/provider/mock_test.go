// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package provider

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

func TestMockSummarizer_Keywords(t *testing.T) {
	s := NewMockSummarizer()
	got, err := s.Summarize(context.Background(), memory.Turn{
		UserMessage: "久しぶり！元気だった？",
		AIResponse:  "わあ、久しぶり！会えて嬉しい！",
	})
	require.NoError(t, err)

	assert.Equal(t, []emotion.Tag{emotion.Joy, emotion.Happiness, emotion.Reunion}, got.Emotions)
	assert.Equal(t, "ユーザーの質問にAIが回答した会話", got.Text)
	assert.NoError(t, memory.ValidateSummary(got.Text, got.Emotions))
}

func TestMockSummarizer_FallbackIsDeterministic(t *testing.T) {
	s := NewMockSummarizer()
	turn := memory.Turn{UserMessage: "abc", AIResponse: "def"}

	first, err := s.Summarize(context.Background(), turn)
	require.NoError(t, err)
	require.Len(t, first.Emotions, 1)

	second, err := s.Summarize(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMockSummarizer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockSummarizer().Summarize(ctx, memory.Turn{UserMessage: "a", AIResponse: "b"})
	assert.Equal(t, memory.KindCanceled, memory.KindOf(err))
	assert.False(t, memory.IsTimeout(err))
}

func TestMockEmbedder_ExpiredContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	_, err := NewMockEmbedder(8).Embed(ctx, "a")
	assert.Equal(t, memory.KindProvider, memory.KindOf(err))
	assert.True(t, memory.IsTimeout(err))
}

func TestClassify_ContextErrors(t *testing.T) {
	deadline := classify("embed", NameMock, context.DeadlineExceeded)
	assert.True(t, memory.IsTimeout(deadline))

	canceled := classify("embed", NameMock, context.Canceled)
	assert.Equal(t, memory.KindCanceled, memory.KindOf(canceled))
	assert.False(t, memory.IsTimeout(canceled))
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(0)
	assert.Equal(t, DefaultEmbeddingDimensions, e.Dimensions())

	a, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	c, err := e.Embed(context.Background(), "goodbye")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, DefaultEmbeddingDimensions)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

func TestFactory(t *testing.T) {
	s, err := NewSummarizer(Options{Summarizer: NameMock})
	require.NoError(t, err)
	assert.Equal(t, NameMock, s.Name())

	_, err = NewSummarizer(Options{Summarizer: NameClaude})
	assert.Error(t, err, "claude requires an api key")

	_, err = NewSummarizer(Options{Summarizer: "gemini"})
	assert.Error(t, err)

	e, err := NewEmbedder(Options{Embedder: NameMock, Dimensions: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, e.Dimensions())

	_, err = NewEmbedder(Options{Embedder: NameOpenAI})
	assert.Error(t, err)
}
