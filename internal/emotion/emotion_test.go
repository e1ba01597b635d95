// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVocabularySize(t *testing.T) {
	assert.Len(t, All(), 38)
	assert.Len(t, Positive(), 12)
	assert.Len(t, Negative(), 11)
	assert.Len(t, Neutral(), 7)
	assert.Len(t, Persona(), 8)

	seen := map[Tag]bool{}
	for _, tag := range All() {
		assert.False(t, seen[tag], "duplicate tag %s", tag)
		seen[tag] = true
		assert.True(t, tag.Valid())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Tag
		ok   bool
	}{
		{"喜び", Joy, true},
		{" 不安 ", Anxiety, true},
		{"joy", Joy, true},
		{"GRATITUDE", Gratitude, true},
		{"boredom", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Parse(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_DedupesAndCaps(t *testing.T) {
	in := []Tag{Joy, Joy, "unknown", Sadness, Hope, Fear, Trust, Love, Anger}
	got := Normalize(in)

	assert.Equal(t, []Tag{Joy, Sadness, Hope, Fear, Trust}, got)
}

func TestNormalize_Deterministic(t *testing.T) {
	in := []Tag{Trust, Love, Anger, Joy, Hope, Fear, Sadness}
	first := Normalize(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Normalize(in))
	}
}

func TestExtract_LongestMatchWins(t *testing.T) {
	got := Extract("感情: 恥ずかしさ、喜び")
	assert.Equal(t, []Tag{Shyness, Joy}, got)

	got = Extract("恥と後悔")
	assert.Equal(t, []Tag{Shame, Regret}, got)
}

func TestExtract_OrderOfAppearance(t *testing.T) {
	got := Extract("安心、喜び、感謝、喜び")
	assert.Equal(t, []Tag{Relief, Joy, Gratitude}, got)
}

func TestExtract_NoTags(t *testing.T) {
	assert.Empty(t, Extract("nothing to see here"))
}

func TestIntersects(t *testing.T) {
	assert.True(t, Intersects([]Tag{Joy, Hope}, []Tag{Joy}))
	assert.False(t, Intersects([]Tag{Sadness}, []Tag{Joy}))
	assert.True(t, Intersects([]Tag{Sadness}, nil))
}

func TestParseAll(t *testing.T) {
	tags, unknown := ParseAll([]string{"joy", "喜び", "nope"})
	assert.Equal(t, []Tag{Joy, Joy}, tags)
	assert.Equal(t, []string{"nope"}, unknown)
}
