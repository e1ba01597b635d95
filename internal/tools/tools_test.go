// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/tejzpr/kioku/internal/database"
	"github.com/tejzpr/kioku/internal/memory"
	"github.com/tejzpr/kioku/internal/provider"
	"github.com/tejzpr/kioku/internal/ratelimit"
	"github.com/tejzpr/kioku/internal/service"
	"github.com/tejzpr/kioku/internal/store"
)

func setupToolContext(t *testing.T, user string, limiter Admitter) *ToolContext {
	t.Helper()
	db, err := database.Connect(&database.Config{
		Type:       database.TypeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "tools.db"),
		LogLevel:   logger.Silent,
	})
	require.NoError(t, err)
	st, err := store.NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(provider.NewMockSummarizer(), provider.NewMockEmbedder(32), st, service.Options{Logger: log})
	return NewToolContext(svc, limiter, user, log)
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	result, err := h(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func getResultText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if textContent, ok := result.Content[0].(mcp.TextContent); ok {
		return textContent.Text
	}
	return ""
}

func saveDirect(t *testing.T, tc *ToolContext, user, userMsg, aiMsg string) *memory.Record {
	t.Helper()
	rec, err := tc.Service.Save(context.Background(), memory.Turn{UserMessage: userMsg, AIResponse: aiMsg, UserID: user})
	require.NoError(t, err)
	return rec
}

func TestToolDefinitions(t *testing.T) {
	for name, tool := range map[string]mcp.Tool{
		ToolSave:   NewSaveTool(),
		ToolSearch: NewSearchTool(),
		ToolRecent: NewRecentTool(),
		ToolGet:    NewGetTool(),
		ToolForget: NewForgetTool(),
	} {
		assert.Equal(t, name, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.ElementsMatch(t, []string{"user_message", "ai_message"}, NewSaveTool().InputSchema.Required)
	assert.Equal(t, []string{"query"}, NewSearchTool().InputSchema.Required)
}

func TestSaveHandler(t *testing.T) {
	tc := setupToolContext(t, "alice", nil)

	result := call(t, SaveHandler(tc), map[string]interface{}{
		"user_message": "久しぶり！元気だった？",
		"ai_message":   "わあ、久しぶり！会えて嬉しい！",
		"session_id":   "s1",
		"context_window": []interface{}{
			map[string]interface{}{"role": "user", "content": "こんにちは"},
			"not an object",
		},
	})
	require.False(t, result.IsError, getResultText(result))
	text := getResultText(result)
	assert.Contains(t, text, "Memory saved.")
	assert.Contains(t, text, "再会")

	records, err := tc.Service.List(context.Background(), memory.ListQuery{Limit: 10, Filter: memory.Filter{UserID: "alice"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].SessionID)
}

func TestSaveHandler_Validation(t *testing.T) {
	tc := setupToolContext(t, "alice", nil)

	result := call(t, SaveHandler(tc), map[string]interface{}{"user_message": "hi"})
	assert.True(t, result.IsError)

	result = call(t, SaveHandler(tc), map[string]interface{}{"user_message": "hi", "ai_message": "   "})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "validation_error")
}

func TestSearchHandler_ScopedToUser(t *testing.T) {
	tc := setupToolContext(t, "alice", nil)
	mine := saveDirect(t, tc, "alice", "久しぶり！元気だった？", "会えて嬉しい！")
	saveDirect(t, tc, "bob", "久しぶり！元気だった？", "会えて嬉しい！")

	result := call(t, SearchHandler(tc), map[string]interface{}{"query": "再会", "top_k": float64(10)})
	require.False(t, result.IsError, getResultText(result))
	text := getResultText(result)
	assert.Contains(t, text, "Found 1 memories")
	assert.Contains(t, text, mine.ID.String())
}

func TestSearchHandler_Filters(t *testing.T) {
	tc := setupToolContext(t, "alice", nil)
	saveDirect(t, tc, "alice", "久しぶり！元気だった？", "会えて嬉しい！")

	result := call(t, SearchHandler(tc), map[string]interface{}{
		"query":    "再会",
		"emotions": []interface{}{"farewell"},
	})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "No memories found")

	result = call(t, SearchHandler(tc), map[string]interface{}{
		"query":    "再会",
		"emotions": []interface{}{"reunion"},
	})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Found 1 memories")

	result = call(t, SearchHandler(tc), map[string]interface{}{
		"query":    "再会",
		"emotions": []interface{}{"boredom"},
	})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "unknown emotion: boredom")

	result = call(t, SearchHandler(tc), map[string]interface{}{"query": "再会", "date_from": "yesterday"})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "date_from")

	// same layouts as the HTTP API
	result = call(t, SearchHandler(tc), map[string]interface{}{
		"query":     "再会",
		"date_from": "2000-01-01 00:00:00",
		"date_to":   "2999-01-01T00:00:00.5",
	})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Found 1 memories")

	result = call(t, SearchHandler(tc), map[string]interface{}{"query": "再会", "top_k": float64(500)})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "top_k")
}

func TestRecentHandler(t *testing.T) {
	tc := setupToolContext(t, "alice", nil)
	for i := 0; i < 3; i++ {
		saveDirect(t, tc, "alice", "ありがとう", "どういたしまして")
	}

	result := call(t, RecentHandler(tc), map[string]interface{}{"limit": float64(2)})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "2 memories (offset 0)")

	result = call(t, RecentHandler(tc), map[string]interface{}{"limit": float64(2), "offset": float64(2)})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "1 memories (offset 2)")

	other := setupToolContext(t, "carol", nil)
	result = call(t, RecentHandler(other), map[string]interface{}{})
	require.False(t, result.IsError)
	assert.Equal(t, "No memories found.", getResultText(result))
}

func TestGetAndForgetHandlers(t *testing.T) {
	tc := setupToolContext(t, "alice", nil)
	rec := saveDirect(t, tc, "alice", "久しぶり！", "会えて嬉しい！")

	result := call(t, GetHandler(tc), map[string]interface{}{"memory_id": rec.ID.String()})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), rec.Summary)

	result = call(t, GetHandler(tc), map[string]interface{}{"memory_id": "not-a-uuid"})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "validation_error")

	result = call(t, ForgetHandler(tc), map[string]interface{}{"memory_id": rec.ID.String()})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Forgot memory")

	_, err := tc.Service.Get(context.Background(), rec.ID.String())
	assert.True(t, memory.IsKind(err, memory.KindNotFound))

	result = call(t, ForgetHandler(tc), map[string]interface{}{"memory_id": rec.ID.String()})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "not_found")
}

func TestForgetHandler_OtherUsersMemory(t *testing.T) {
	tc := setupToolContext(t, "alice", nil)
	theirs := saveDirect(t, tc, "bob", "秘密", "わかった")

	result := call(t, ForgetHandler(tc), map[string]interface{}{"memory_id": theirs.ID.String()})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "not_found")

	_, err := tc.Service.Get(context.Background(), theirs.ID.String())
	assert.NoError(t, err)
}

func TestRateLimitedTools(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(ratelimit.Policies{
		Default:   ratelimit.Policy{Burst: 1},
		Endpoints: map[string]ratelimit.Policy{},
	}, ratelimit.WithClock(func() time.Time { return now }))
	tc := setupToolContext(t, "alice", limiter)

	result := call(t, RecentHandler(tc), map[string]interface{}{})
	require.False(t, result.IsError, getResultText(result))

	result = call(t, RecentHandler(tc), map[string]interface{}{})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "rate limit exceeded (burst_limit_exceeded)")
	assert.Contains(t, getResultText(result), "retry after 1 seconds")

	usage := limiter.Usage("local:alice")
	assert.Equal(t, 1, usage.MinuteCount)
}

type faultyLimiter struct{ panics bool }

func (f faultyLimiter) Allow(string, string) (ratelimit.Decision, error) {
	if f.panics {
		panic("boom")
	}
	return ratelimit.Decision{}, errors.New("limiter unavailable")
}

func TestRateLimitFaultFailsOpen(t *testing.T) {
	for _, l := range []faultyLimiter{{}, {panics: true}} {
		tc := setupToolContext(t, "alice", l)
		result := call(t, RecentHandler(tc), map[string]interface{}{})
		assert.False(t, result.IsError, getResultText(result))
	}
}
