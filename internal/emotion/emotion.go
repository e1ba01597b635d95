// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package emotion defines the closed emotion vocabulary attached to memories.
package emotion

import (
	"sort"
	"strings"
)

// MaxPerRecord is the maximum number of tags kept on a single memory
const MaxPerRecord = 5

// Tag is a single emotion from the closed vocabulary
type Tag string

// Positive emotions
const (
	Joy          Tag = "喜び"
	Happiness    Tag = "幸せ"
	Excitement   Tag = "興奮"
	Love         Tag = "愛情"
	Gratitude    Tag = "感謝"
	Hope         Tag = "希望"
	Pride        Tag = "誇り"
	Relief       Tag = "安心"
	Satisfaction Tag = "満足"
	Amusement    Tag = "楽しさ"
	Confidence   Tag = "自信"
	Inspiration  Tag = "感動"
)

// Negative emotions
const (
	Sadness        Tag = "悲しみ"
	Anger          Tag = "怒り"
	Fear           Tag = "恐れ"
	Anxiety        Tag = "不安"
	Frustration    Tag = "苛立ち"
	Disappointment Tag = "失望"
	Loneliness     Tag = "孤独"
	Guilt          Tag = "罪悪感"
	Shame          Tag = "恥"
	Regret         Tag = "後悔"
	Jealousy       Tag = "嫉妬"
)

// Neutral emotions
const (
	Surprise     Tag = "驚き"
	Curiosity    Tag = "好奇心"
	Confusion    Tag = "困惑"
	Nostalgia    Tag = "懐かしさ"
	Empathy      Tag = "共感"
	Sympathy     Tag = "同情"
	Anticipation Tag = "期待"
)

// Persona emotions used by character agents
const (
	Mischief      Tag = "いたずら心"
	Shyness       Tag = "恥ずかしさ"
	Determination Tag = "決意"
	Reunion       Tag = "再会"
	Farewell      Tag = "別れ"
	Encouragement Tag = "励まし"
	Support       Tag = "支え"
	Trust         Tag = "信頼"
)

var (
	positive = []Tag{Joy, Happiness, Excitement, Love, Gratitude, Hope, Pride, Relief, Satisfaction, Amusement, Confidence, Inspiration}
	negative = []Tag{Sadness, Anger, Fear, Anxiety, Frustration, Disappointment, Loneliness, Guilt, Shame, Regret, Jealousy}
	neutral  = []Tag{Surprise, Curiosity, Confusion, Nostalgia, Empathy, Sympathy, Anticipation}
	persona  = []Tag{Mischief, Shyness, Determination, Reunion, Farewell, Encouragement, Support, Trust}
)

// englishNames maps lowercase English names onto tags
var englishNames = map[string]Tag{
	"joy": Joy, "happiness": Happiness, "excitement": Excitement, "love": Love,
	"gratitude": Gratitude, "hope": Hope, "pride": Pride, "relief": Relief,
	"satisfaction": Satisfaction, "amusement": Amusement, "confidence": Confidence,
	"inspiration": Inspiration,
	"sadness":     Sadness, "anger": Anger, "fear": Fear, "anxiety": Anxiety,
	"frustration": Frustration, "disappointment": Disappointment, "loneliness": Loneliness,
	"guilt": Guilt, "shame": Shame, "regret": Regret, "jealousy": Jealousy,
	"surprise": Surprise, "curiosity": Curiosity, "confusion": Confusion,
	"nostalgia": Nostalgia, "empathy": Empathy, "sympathy": Sympathy,
	"anticipation": Anticipation,
	"mischief":     Mischief, "shyness": Shyness, "determination": Determination,
	"reunion": Reunion, "farewell": Farewell, "encouragement": Encouragement,
	"support": Support, "trust": Trust,
}

var (
	all   []Tag
	known map[Tag]bool
	// byLength holds the vocabulary sorted longest first for Extract
	byLength []Tag
)

func init() {
	all = make([]Tag, 0, len(positive)+len(negative)+len(neutral)+len(persona))
	all = append(all, positive...)
	all = append(all, negative...)
	all = append(all, neutral...)
	all = append(all, persona...)

	known = make(map[Tag]bool, len(all))
	for _, t := range all {
		known[t] = true
	}

	byLength = append([]Tag(nil), all...)
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i]) > len(byLength[j])
	})
}

// All returns the whole vocabulary in canonical order
func All() []Tag {
	return append([]Tag(nil), all...)
}

// Positive returns the positive emotions
func Positive() []Tag { return append([]Tag(nil), positive...) }

// Negative returns the negative emotions
func Negative() []Tag { return append([]Tag(nil), negative...) }

// Neutral returns the neutral emotions
func Neutral() []Tag { return append([]Tag(nil), neutral...) }

// Persona returns the persona-specific emotions
func Persona() []Tag { return append([]Tag(nil), persona...) }

// Valid reports whether t belongs to the vocabulary
func (t Tag) Valid() bool {
	return known[t]
}

// String returns the tag value
func (t Tag) String() string {
	return string(t)
}

// Parse resolves a Japanese tag value or its English name
func Parse(s string) (Tag, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if t := Tag(s); known[t] {
		return t, true
	}
	if t, ok := englishNames[strings.ToLower(s)]; ok {
		return t, true
	}
	return "", false
}

// Normalize drops unknown tags, collapses duplicates keeping the first
// occurrence, and truncates to MaxPerRecord.
func Normalize(tags []Tag) []Tag {
	out := make([]Tag, 0, MaxPerRecord)
	seen := make(map[Tag]bool, len(tags))
	for _, t := range tags {
		if !known[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == MaxPerRecord {
			break
		}
	}
	return out
}

// Extract finds vocabulary tags in free text in order of first appearance.
// At each position the longest tag wins, so 恥ずかしさ is not read as 恥.
func Extract(text string) []Tag {
	var found []Tag
	for i := 0; i < len(text); {
		matched := false
		for _, t := range byLength {
			if strings.HasPrefix(text[i:], string(t)) {
				found = append(found, t)
				i += len(t)
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
	return Normalize(found)
}

// Strings converts tags to their string values
func Strings(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

// ParseAll resolves every value, returning the values that could not be parsed
func ParseAll(values []string) ([]Tag, []string) {
	tags := make([]Tag, 0, len(values))
	var unknown []string
	for _, v := range values {
		t, ok := Parse(v)
		if !ok {
			unknown = append(unknown, v)
			continue
		}
		tags = append(tags, t)
	}
	return tags, unknown
}

// Intersects reports whether any tag in filter appears in tags.
// An empty filter imposes no constraint.
func Intersects(tags, filter []Tag) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		for _, t := range tags {
			if t == f {
				return true
			}
		}
	}
	return false
}
