package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all vault tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("sessionvault", version)
	h := NewHandlers(NewVaultClient(cfg))

	s.AddTool(ToolGetVaultConfig, h.HandleGetVaultConfig)
	s.AddTool(ToolGetBooking, h.HandleGetBooking)
	s.AddTool(ToolListBookings, h.HandleListBookings)
	s.AddTool(ToolGetBalance, h.HandleGetBalance)
	s.AddTool(ToolGetExpertStatus, h.HandleGetExpertStatus)

	return s
}
