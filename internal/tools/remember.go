// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// NewSaveTool creates the kioku_save tool definition
func NewSaveTool() mcp.Tool {
	return mcp.NewTool(ToolSave,
		mcp.WithDescription("Remember a conversation turn. The turn is summarized, tagged with emotions and stored for later recall."),
		mcp.WithString("user_message",
			mcp.Required(),
			mcp.Description("What the user said"),
		),
		mcp.WithString("ai_message",
			mcp.Required(),
			mcp.Description("What the assistant replied"),
		),
		mcp.WithString("session_id",
			mcp.Description("Conversation session label"),
		),
		mcp.WithString("app_name",
			mcp.Description("Application label"),
		),
		mcp.WithArray("context_window",
			mcp.Description("Earlier turns for context. Array of objects: [{\"role\": \"user|assistant\", \"content\": \"...\"}]. Only the last 3 are used."),
		),
	)
}

// SaveHandler handles the kioku_save tool
func SaveHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if denied := tc.admit(ToolSave); denied != nil {
			return denied, nil
		}

		userMessage, err := request.RequireString("user_message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		aiMessage, err := request.RequireString("ai_message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		turn := memory.Turn{
			UserMessage: userMessage,
			AIResponse:  aiMessage,
			UserID:      tc.User,
			SessionID:   request.GetString("session_id", ""),
			AppName:     request.GetString("app_name", ""),
			Context:     contextWindow(request.GetArguments()["context_window"]),
		}

		rec, err := tc.Service.Save(c, turn)
		if err != nil {
			return tc.toolError(ToolSave, err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Memory saved.\n\n**ID**: `%s`\n**Summary**: %s\n**Emotions**: %s",
			rec.ID, rec.Summary, strings.Join(emotion.Strings(rec.Emotions), ", "))), nil
	}
}

// contextWindow reads the optional context_window argument. Malformed
// entries are skipped.
func contextWindow(raw any) []memory.ContextTurn {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var turns []memory.ContextTurn
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		if strings.TrimSpace(content) == "" {
			continue
		}
		turns = append(turns, memory.ContextTurn{Role: role, Content: content})
	}
	return turns
}
