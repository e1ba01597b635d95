// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tejzpr/kioku/internal/memory"
)

// NewGetTool creates the kioku_get tool definition
func NewGetTool() mcp.Tool {
	return mcp.NewTool(ToolGet,
		mcp.WithDescription("Read one memory in full by its ID."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Memory ID as returned by kioku_save or kioku_search"),
		),
	)
}

// GetHandler handles the kioku_get tool
func GetHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if denied := tc.admit(ToolGet); denied != nil {
			return denied, nil
		}

		id, err := request.RequireString("memory_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		rec, err := tc.lookup(c, id)
		if err != nil {
			return tc.toolError(ToolGet, err), nil
		}

		var sb strings.Builder
		formatRecord(&sb, rec)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// lookup fetches a memory owned by the tool user. Memories of other
// users are reported as not found.
func (tc *ToolContext) lookup(ctx context.Context, id string) (*memory.Record, error) {
	rec, err := tc.Service.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tc.owned(rec) {
		return nil, memory.NewNotFoundError("get", id)
	}
	return rec, nil
}
