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

// NewSearchTool creates the kioku_search tool definition
func NewSearchTool() mcp.Tool {
	return mcp.NewTool(ToolSearch,
		mcp.WithDescription("Recall past conversations by meaning. Optionally narrow by emotion tags (any match) and a date range. Results are ranked by similarity."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for. Example: '久しぶりの再会'"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Max results, 1-100. Default: 5"),
		),
		mcp.WithArray("emotions",
			mcp.Description("Only memories tagged with any of these emotions. Japanese or English names, e.g. '喜び' or 'joy'"),
		),
		mcp.WithString("date_from",
			mcp.Description("Earliest creation time, inclusive (ISO-8601)"),
		),
		mcp.WithString("date_to",
			mcp.Description("Latest creation time, exclusive (ISO-8601)"),
		),
	)
}

// SearchHandler handles the kioku_search tool
func SearchHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if denied := tc.admit(ToolSearch); denied != nil {
			return denied, nil
		}

		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter, err := toolFilter(tc, request)
		if err != nil {
			return tc.toolError(ToolSearch, err), nil
		}

		results, err := tc.Service.Search(c, memory.SearchQuery{
			Query:  query,
			TopK:   int(request.GetFloat("top_k", float64(memory.DefaultTopK))),
			Filter: filter,
		})
		if err != nil {
			return tc.toolError(ToolSearch, err), nil
		}

		if len(results) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No memories found for: '%s'", query)), nil
		}
		return mcp.NewToolResultText(formatSearchResults(results)), nil
	}
}

// toolFilter builds the filter shared by search and recent
func toolFilter(tc *ToolContext, request mcp.CallToolRequest) (memory.Filter, error) {
	f := memory.Filter{UserID: tc.User}

	tags, err := parseEmotions(request.GetStringSlice("emotions", nil))
	if err != nil {
		return f, err
	}
	f.Emotions = tags

	if f.DateFrom, err = memory.ParseDate("tool", "date_from", request.GetString("date_from", "")); err != nil {
		return f, err
	}
	if f.DateTo, err = memory.ParseDate("tool", "date_to", request.GetString("date_to", "")); err != nil {
		return f, err
	}
	return f, nil
}

func formatSearchResults(results []memory.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d memories:\n\n", len(results)))
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("## %d. score %.3f\n", i+1, r.Score))
		formatRecord(&sb, r.Record)
		sb.WriteString("\n---\n\n")
	}
	return sb.String()
}
