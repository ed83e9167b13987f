package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type tool struct {
	def     mcp.Tool
	handler server.ToolHandlerFunc
}

// NewMCPServer creates an MCP server exposing the oracle's tools. update_risk
// is only registered when cfg carries a signing key.
func NewMCPServer(cfg Config, version string) (*server.MCPServer, error) {
	client, err := NewOracleClient(cfg)
	if err != nil {
		return nil, err
	}

	s := server.NewMCPServer("riskoracle", version)
	for _, t := range tools(NewHandlers(client), client.Signer() != nil) {
		s.AddTool(t.def, t.handler)
	}
	return s, nil
}

func tools(h *Handlers, writable bool) []tool {
	ts := []tool{
		{ToolGetRisk, h.HandleGetRisk},
		{ToolListRisks, h.HandleListRisks},
		{ToolOracleStatus, h.HandleOracleStatus},
	}
	if writable {
		ts = append(ts, tool{ToolUpdateRisk, h.HandleUpdateRisk})
	}
	return ts
}
