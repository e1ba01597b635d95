// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tejzpr/kioku/internal/service"
	"github.com/tejzpr/kioku/internal/tools"
)

// MCPServer wraps the mcp-go server with the memory tools
type MCPServer struct {
	mcpServer *mcpserver.MCPServer
	toolCtx   *tools.ToolContext
}

// NewMCPServer creates an MCP server whose tools act on behalf of user
func NewMCPServer(svc *service.Service, limiter Admitter, user, version string, logger *slog.Logger) *MCPServer {
	mcpServer := mcpserver.NewMCPServer(
		"Kioku",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	srv := &MCPServer{
		mcpServer: mcpServer,
		toolCtx:   tools.NewToolContext(svc, limiter, user, logger),
	}
	srv.RegisterTools()
	return srv
}

// RegisterTools registers all MCP tools
func (s *MCPServer) RegisterTools() {
	tc := s.toolCtx

	// kioku_save: "Remember this conversation"
	s.mcpServer.AddTool(tools.NewSaveTool(), tools.SaveHandler(tc))

	// kioku_search: "When did we talk about X?"
	s.mcpServer.AddTool(tools.NewSearchTool(), tools.SearchHandler(tc))

	// kioku_recent: "What did we talk about lately?"
	s.mcpServer.AddTool(tools.NewRecentTool(), tools.RecentHandler(tc))

	s.mcpServer.AddTool(tools.NewGetTool(), tools.GetHandler(tc))
	s.mcpServer.AddTool(tools.NewForgetTool(), tools.ForgetHandler(tc))
}

// ServeStdio serves the tools over stdin and stdout until EOF
func (s *MCPServer) ServeStdio() error {
	s.toolCtx.Logger.Info("mcp_server_started", "transport", "stdio", "user", s.toolCtx.User)
	return mcpserver.ServeStdio(s.mcpServer)
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
