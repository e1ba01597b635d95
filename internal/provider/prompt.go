// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package provider

import (
	"fmt"
	"strings"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// fallbackSummaryRunes is how much of an unstructured reply is kept as the summary
const fallbackSummaryRunes = 200

const systemPrompt = `あなたはAI Vtuberの感情記憶システムです。
ユーザーとAI Vtuberの会話を分析し、感情的な文脈を理解して記憶として保存することが役目です。
日本語で自然な表現を心がけ、AI Vtuberらしい感情表現を適切に捉えてください。`

const memoryPromptTemplate = `あなたはAI Vtuberの記憶システムです。以下の会話を分析して、要約と感情タグを抽出してください。

# 会話内容
ユーザー: %s
AI: %s

%s
# 出力形式
以下の形式で出力してください：

要約: [この会話の内容を50文字以内で要約]
感情: [検出された感情を日本語で列挙（例：喜び、不安、感謝）]

# 感情タグ一覧
以下の感情タグから適切なものを選んでください（複数選択可、最大5個）：

【ポジティブ感情】
%s

【ネガティブ感情】
%s

【ニュートラル感情】
%s

【AI Vtuber特有感情】
%s

# 注意事項
- 要約は簡潔に、感情は正確に抽出してください
- 複数の感情が混在している場合は、主要なものを選んでください
- 文脈を考慮して適切な感情を判断してください`

// BuildPrompt renders the summarization prompt for a turn. Only the most
// recent context turns are included.
func BuildPrompt(turn memory.Turn) string {
	var ctxSection strings.Builder
	if recent := turn.RecentContext(); len(recent) > 0 {
		ctxSection.WriteString("# 会話の文脈\n")
		for i, c := range recent {
			speaker := "AI"
			if c.Role == "user" {
				speaker = "ユーザー"
			}
			fmt.Fprintf(&ctxSection, "前の会話%d: %s: %s\n", i+1, speaker, c.Content)
		}
		ctxSection.WriteString("\n")
	}

	return fmt.Sprintf(memoryPromptTemplate,
		turn.UserMessage,
		turn.AIResponse,
		ctxSection.String(),
		joinTags(emotion.Positive()),
		joinTags(emotion.Negative()),
		joinTags(emotion.Neutral()),
		joinTags(emotion.Persona()),
	)
}

func joinTags(tags []emotion.Tag) string {
	return strings.Join(emotion.Strings(tags), "、")
}

// ParseResponse extracts the summary and emotion lines from a model reply.
// Continuation lines are appended to the current section. A reply with no
// recognizable structure falls back to its leading text and any tags found
// anywhere in it.
func ParseResponse(reply string) *Summary {
	var (
		summary  []string
		tagText  []string
		section  string
		lines    = strings.Split(strings.TrimSpace(reply), "\n")
		cutLabel = func(line string, labels ...string) (string, bool) {
			for _, l := range labels {
				if rest, ok := strings.CutPrefix(line, l); ok {
					return strings.TrimSpace(rest), true
				}
			}
			return "", false
		}
	)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if rest, ok := cutLabel(line, "要約:", "要約：", "## 要約"); ok {
			section = "summary"
			if rest != "" {
				summary = append(summary, rest)
			}
			continue
		}
		if rest, ok := cutLabel(line, "感情:", "感情：", "## 感情"); ok {
			section = "emotions"
			if rest != "" {
				tagText = append(tagText, rest)
			}
			continue
		}
		if line == "" {
			continue
		}
		switch section {
		case "summary":
			summary = append(summary, line)
		case "emotions":
			tagText = append(tagText, line)
		}
	}

	out := &Summary{
		Text:     strings.TrimSpace(strings.Join(summary, " ")),
		Emotions: emotion.Extract(strings.Join(tagText, " ")),
	}
	if out.Text == "" && len(out.Emotions) == 0 {
		out.Text = truncateRunes(strings.TrimSpace(reply), fallbackSummaryRunes)
		out.Emotions = emotion.Extract(reply)
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
