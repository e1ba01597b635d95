// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// NewForgetTool creates the kioku_forget tool definition
func NewForgetTool() mcp.Tool {
	return mcp.NewTool(ToolForget,
		mcp.WithDescription("Permanently delete a memory. Use when the user asks to forget something."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Memory to delete"),
		),
	)
}

// ForgetHandler handles the kioku_forget tool
func ForgetHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if denied := tc.admit(ToolForget); denied != nil {
			return denied, nil
		}

		id, err := request.RequireString("memory_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		rec, err := tc.lookup(c, id)
		if err != nil {
			return tc.toolError(ToolForget, err), nil
		}
		if err := tc.Service.Delete(c, rec.ID.String()); err != nil {
			return tc.toolError(ToolForget, err), nil
		}

		tc.Logger.Info("memory_forgotten", "memory_id", rec.ID.String())
		return mcp.NewToolResultText(fmt.Sprintf("Forgot memory `%s`: %s", rec.ID, rec.Summary)), nil
	}
}
