// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tejzpr/kioku/internal/memory"
)

// NewRecentTool creates the kioku_recent tool definition
func NewRecentTool() mcp.Tool {
	return mcp.NewTool(ToolRecent,
		mcp.WithDescription("List saved memories, newest first. Use to answer what was talked about recently or during a period."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum memories to return. Default: 10"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of memories to skip. Default: 0"),
		),
		mcp.WithArray("emotions",
			mcp.Description("Only memories tagged with any of these emotions"),
		),
		mcp.WithString("date_from",
			mcp.Description("Earliest creation time, inclusive (ISO-8601)"),
		),
		mcp.WithString("date_to",
			mcp.Description("Latest creation time, exclusive (ISO-8601)"),
		),
	)
}

// RecentHandler handles the kioku_recent tool
func RecentHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if denied := tc.admit(ToolRecent); denied != nil {
			return denied, nil
		}

		filter, err := toolFilter(tc, request)
		if err != nil {
			return tc.toolError(ToolRecent, err), nil
		}
		q := memory.ListQuery{
			Limit:  int(request.GetFloat("limit", 10)),
			Offset: int(request.GetFloat("offset", 0)),
			Filter: filter,
		}

		records, err := tc.Service.List(c, q)
		if err != nil {
			return tc.toolError(ToolRecent, err), nil
		}
		if len(records) == 0 {
			return mcp.NewToolResultText("No memories found."), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%d memories (offset %d):\n\n", len(records), q.Offset))
		for i, rec := range records {
			sb.WriteString(fmt.Sprintf("## %d.\n", q.Offset+i+1))
			formatRecord(&sb, rec)
			sb.WriteString("\n---\n\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
