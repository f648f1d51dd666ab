package schema

import (
	mcpschema "github.com/viant/mcp-protocol/schema"
)

// ProtocolVersion is the negotiated MCP protocol version tag
const ProtocolVersion = "2024-11-05"

type (
	// InitializeResult represents initialize result
	InitializeResult struct {
		ProtocolVersion string                   `json:"protocolVersion"`
		Capabilities    ServerCapabilities       `json:"capabilities"`
		ServerInfo      mcpschema.Implementation `json:"serverInfo"`
	}

	// ServerCapabilities lists advertised capabilities
	ServerCapabilities struct {
		Tools map[string]interface{} `json:"tools"`
	}

	// PingResult represents ping result
	PingResult struct{}
)

// NewInitializeResult returns capability negotiation response for the supplied server info
func NewInitializeResult(info mcpschema.Implementation) *InitializeResult {
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: map[string]interface{}{}},
		ServerInfo:      info,
	}
}
