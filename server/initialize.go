package server

import (
	"context"
	"encoding/json"

	"github.com/viant/idebridge/schema"
	"github.com/viant/jsonrpc"
	mcpschema "github.com/viant/mcp-protocol/schema"
)

// Initialize handles the initialize method; client capabilities are not negotiated
func (h *Handler) Initialize(ctx context.Context, request *jsonrpc.Request) *schema.InitializeResult {
	params := &mcpschema.InitializeRequestParams{}
	if hasParams(request.Params) {
		if err := json.Unmarshal(request.Params, params); err != nil {
			h.logger.Debug("initialize params not decoded", "error", err)
		}
	}
	h.logger.Info("client initialized session", "client", params.ClientInfo.Name, "clientVersion", params.ClientInfo.Version, "protocolVersion", params.ProtocolVersion)
	return schema.NewInitializeResult(h.info)
}

// Ping handles the ping method
func (h *Handler) Ping(ctx context.Context, request *jsonrpc.Request) *schema.PingResult {
	return &schema.PingResult{}
}
