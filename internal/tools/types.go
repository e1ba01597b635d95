// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tools exposes the memory service as MCP tools.
package tools

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tejzpr/kioku/internal/auth"
	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
	"github.com/tejzpr/kioku/internal/ratelimit"
	"github.com/tejzpr/kioku/internal/service"
)

// Tool names
const (
	ToolSave   = "kioku_save"
	ToolSearch = "kioku_search"
	ToolRecent = "kioku_recent"
	ToolGet    = "kioku_get"
	ToolForget = "kioku_forget"
)

// toolEndpoints maps tools to the rate limit policy they share with HTTP
var toolEndpoints = map[string]string{
	ToolSave:   "/save",
	ToolSearch: "/search",
	ToolRecent: "/memories",
	ToolGet:    "/memory",
	ToolForget: "/memory",
}

// Admitter gates tool calls. *ratelimit.Limiter implements it.
type Admitter interface {
	Allow(identity, endpoint string) (ratelimit.Decision, error)
}

// ToolContext holds shared dependencies for all tools
type ToolContext struct {
	Service *service.Service
	// Limiter may be nil to disable rate limiting
	Limiter Admitter
	// User scopes every tool call: saves are labelled with it and reads
	// only see its memories
	User   string
	Logger *slog.Logger
}

// NewToolContext creates a tool context for user
func NewToolContext(svc *service.Service, limiter Admitter, user string, logger *slog.Logger) *ToolContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolContext{Service: svc, Limiter: limiter, User: user, Logger: logger}
}

// Identity is the rate limit identity of the local caller
func (tc *ToolContext) Identity() string {
	return auth.LocalIdentity(tc.User)
}

// admit returns a tool error when the call is rate limited. A limiter
// fault lets the call through.
func (tc *ToolContext) admit(tool string) *mcp.CallToolResult {
	if tc.Limiter == nil {
		return nil
	}
	d, err := safeAllow(tc.Limiter, tc.Identity(), toolEndpoints[tool])
	if err != nil {
		tc.Logger.Error("rate_limit_check_failed", "tool", tool, "error", err)
		return nil
	}
	if d.Allowed {
		return nil
	}
	tc.Logger.Warn("rate_limit_exceeded", "tool", tool, "reason", d.Reason)
	retry := max(1, int(math.Ceil(d.RetryAfter.Seconds())))
	return mcp.NewToolResultError(fmt.Sprintf("rate limit exceeded (%s): retry after %d seconds", d.Reason, retry))
}

func safeAllow(l Admitter, identity, endpoint string) (d ratelimit.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rate limiter panic: %v", r)
		}
	}()
	return l.Allow(identity, endpoint)
}

// toolError renders err for the model. Internal detail stays in the log.
func (tc *ToolContext) toolError(tool string, err error) *mcp.CallToolResult {
	kind := memory.KindOf(err)
	if kind == memory.KindInternal {
		tc.Logger.Error("tool_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", kind, memory.Message(err)))
}

// owned reports whether rec belongs to the tool user
func (tc *ToolContext) owned(rec *memory.Record) bool {
	return tc.User == "" || rec.UserID == tc.User
}

// parseEmotions resolves tag names given to a tool
func parseEmotions(values []string) ([]emotion.Tag, error) {
	tags, unknown := emotion.ParseAll(values)
	if len(unknown) > 0 {
		return nil, memory.NewValidationError("tool", "unknown emotion: %s", strings.Join(unknown, ", "))
	}
	return tags, nil
}

func formatRecord(sb *strings.Builder, rec *memory.Record) {
	sb.WriteString(fmt.Sprintf("**ID**: `%s` | **Created**: %s\n", rec.ID, rec.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Emotions**: %s\n\n", strings.Join(emotion.Strings(rec.Emotions), ", ")))
	sb.WriteString(rec.Summary)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("> user: %s\n>\n> ai: %s\n", truncate(rec.OriginalUser, 500), truncate(rec.OriginalAI, 500)))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
