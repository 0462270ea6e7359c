package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/txinsight/internal/apiclient"
)

// NewMCPServer creates a configured MCP server with all insight tools registered.
func NewMCPServer(cfg apiclient.Config, version string) *server.MCPServer {
	s := server.NewMCPServer("txinsight", version)
	h := NewHandlers(apiclient.New(cfg))

	s.AddTool(ToolScreenTransaction, h.HandleScreenTransaction)
	s.AddTool(ToolScreenSignature, h.HandleScreenSignature)
	s.AddTool(ToolListChains, h.HandleListChains)
	s.AddTool(ToolKeyStatus, h.HandleKeyStatus)

	return s
}
