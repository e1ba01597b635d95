// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

func TestBuildPrompt_IncludesTurnAndVocabulary(t *testing.T) {
	prompt := BuildPrompt(memory.Turn{UserMessage: "久しぶり！", AIResponse: "会えて嬉しい！"})

	assert.Contains(t, prompt, "ユーザー: 久しぶり！")
	assert.Contains(t, prompt, "AI: 会えて嬉しい！")
	assert.Contains(t, prompt, "いたずら心")
	assert.NotContains(t, prompt, "# 会話の文脈")
}

func TestBuildPrompt_UsesLastThreeContextTurns(t *testing.T) {
	turn := memory.Turn{
		UserMessage: "u",
		AIResponse:  "a",
		Context: []memory.ContextTurn{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "second"},
			{Role: "user", Content: "third"},
			{Role: "assistant", Content: "fourth"},
		},
	}
	prompt := BuildPrompt(turn)

	assert.NotContains(t, prompt, "first")
	assert.Contains(t, prompt, "前の会話1: AI: second")
	assert.Contains(t, prompt, "前の会話2: ユーザー: third")
	assert.Contains(t, prompt, "前の会話3: AI: fourth")
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		summary  string
		emotions []emotion.Tag
	}{
		{
			name:     "structured",
			reply:    "要約: 久しぶりの再会を喜んだ\n感情: 喜び、再会、安心",
			summary:  "久しぶりの再会を喜んだ",
			emotions: []emotion.Tag{emotion.Joy, emotion.Reunion, emotion.Relief},
		},
		{
			name:     "full width colon and continuation",
			reply:    "要約：ユーザーが不安を話した\nAIが励ました\n感情：\n不安\n励まし",
			summary:  "ユーザーが不安を話した AIが励ました",
			emotions: []emotion.Tag{emotion.Anxiety, emotion.Encouragement},
		},
		{
			name:     "markdown headings",
			reply:    "## 要約\n旅行の話\n## 感情\n楽しさ, 期待",
			summary:  "旅行の話",
			emotions: []emotion.Tag{emotion.Amusement, emotion.Anticipation},
		},
		{
			name:     "unstructured falls back",
			reply:    "とても感謝している会話でした",
			summary:  "とても感謝している会話でした",
			emotions: []emotion.Tag{emotion.Gratitude},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseResponse(tt.reply)
			assert.Equal(t, tt.summary, got.Text)
			assert.Equal(t, tt.emotions, got.Emotions)
		})
	}
}

func TestParseResponse_FallbackTruncates(t *testing.T) {
	got := ParseResponse(strings.Repeat("あ", 500))
	assert.Equal(t, 200, len([]rune(got.Text)))
	assert.Empty(t, got.Emotions)
}
