// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package memory holds the domain types shared by the recall pipeline.
package memory

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tejzpr/kioku/internal/emotion"
)

// Limits applied to records and queries
const (
	MaxSummaryLength  = 300
	MaxMessageLength  = 10000
	MaxQueryLength    = 1000
	MaxTopK           = 100
	DefaultTopK       = 5
	MaxBatchTopK      = 20
	DefaultListLimit  = 50
	MaxListLimit      = 500
	ContextTurnsUsed  = 3
	MaxBatchSaveSize  = 100
	MaxBatchQuerySize = 50
)

// Record is a persisted memory
type Record struct {
	ID           uuid.UUID     `json:"id"`
	Summary      string        `json:"summary"`
	Emotions     []emotion.Tag `json:"emotions"`
	OriginalUser string        `json:"original_user"`
	OriginalAI   string        `json:"original_ai"`
	Embedding    []float32     `json:"-"`
	UserID       string        `json:"user_id,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	AppName      string        `json:"app_name,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ContextTurn is a prior utterance supplied to the summarizer
type ContextTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is a single dialogue exchange submitted for saving
type Turn struct {
	UserMessage string        `json:"user_message"`
	AIResponse  string        `json:"ai_message"`
	UserID      string        `json:"user_id,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
	AppName     string        `json:"app_name,omitempty"`
	Context     []ContextTurn `json:"context_window,omitempty"`
}

// RecentContext returns the last ContextTurnsUsed turns
func (t Turn) RecentContext() []ContextTurn {
	if len(t.Context) <= ContextTurnsUsed {
		return t.Context
	}
	return t.Context[len(t.Context)-ContextTurnsUsed:]
}

// Validate checks the turn before any provider is called
func (t Turn) Validate() error {
	if strings.TrimSpace(t.UserMessage) == "" {
		return NewValidationError("save", "user_message is required")
	}
	if strings.TrimSpace(t.AIResponse) == "" {
		return NewValidationError("save", "ai_message is required")
	}
	if utf8.RuneCountInString(t.UserMessage) > MaxMessageLength {
		return NewValidationError("save", "user_message exceeds %d characters", MaxMessageLength)
	}
	if utf8.RuneCountInString(t.AIResponse) > MaxMessageLength {
		return NewValidationError("save", "ai_message exceeds %d characters", MaxMessageLength)
	}
	return nil
}

// EmbeddingText is the text embedded for a saved memory
func EmbeddingText(summary string, t Turn) string {
	return summary + " " + t.UserMessage + " " + t.AIResponse
}

// ValidateSummary checks summarizer output before anything is persisted
func ValidateSummary(summary string, emotions []emotion.Tag) error {
	if strings.TrimSpace(summary) == "" {
		return NewProviderError("summarize", "summarizer returned an empty summary", nil)
	}
	if utf8.RuneCountInString(summary) > MaxSummaryLength {
		return NewProviderError("summarize", "summarizer returned a summary over 300 characters", nil)
	}
	if len(emotion.Normalize(emotions)) == 0 {
		return NewProviderError("summarize", "summarizer returned no recognized emotions", nil)
	}
	return nil
}

// Filter is the exact metadata predicate applied after vector retrieval.
// DateFrom is inclusive and DateTo is exclusive.
type Filter struct {
	UserID   string
	Emotions []emotion.Tag
	DateFrom *time.Time
	DateTo   *time.Time
}

// IsZero reports whether the filter imposes no constraint
func (f Filter) IsZero() bool {
	return f.UserID == "" && len(f.Emotions) == 0 && f.DateFrom == nil && f.DateTo == nil
}

// Match applies user scoping, then emotion intersection, then the date range
func (f Filter) Match(r *Record) bool {
	if r == nil {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if !emotion.Intersects(r.Emotions, f.Emotions) {
		return false
	}
	if f.DateFrom != nil && r.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && !r.CreatedAt.Before(*f.DateTo) {
		return false
	}
	return true
}

// SearchQuery is a semantic search request
type SearchQuery struct {
	Query string
	TopK  int
	Filter
}

// Validate checks the query against maxTopK
func (q SearchQuery) Validate(maxTopK int) error {
	if strings.TrimSpace(q.Query) == "" {
		return NewValidationError("search", "query is required")
	}
	if utf8.RuneCountInString(q.Query) > MaxQueryLength {
		return NewValidationError("search", "query exceeds %d characters", MaxQueryLength)
	}
	if q.TopK < 1 || q.TopK > maxTopK {
		return NewValidationError("search", "top_k must be between 1 and %d", maxTopK)
	}
	return validateRange(q.DateFrom, q.DateTo)
}

// ListQuery is a filtered listing request
type ListQuery struct {
	Limit  int
	Offset int
	Filter
}

// Validate checks the listing bounds
func (q ListQuery) Validate() error {
	if q.Limit < 1 || q.Limit > MaxListLimit {
		return NewValidationError("list", "limit must be between 1 and %d", MaxListLimit)
	}
	if q.Offset < 0 {
		return NewValidationError("list", "offset must be non-negative")
	}
	return validateRange(q.DateFrom, q.DateTo)
}

func validateRange(from, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return NewValidationError("filter", "date_from must not be after date_to")
	}
	return nil
}

// SearchResult is a ranked match
type SearchResult struct {
	Record *Record
	Score  float64
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate reads a date filter bound. RFC 3339 and the naive ISO forms are
// accepted, naive forms as UTC. An empty string is no bound.
func ParseDate(op, field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, NewValidationError(op, "%s must be an ISO-8601 date", field)
}
