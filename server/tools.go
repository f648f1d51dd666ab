package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/idebridge/host"
	"github.com/viant/idebridge/schema"
	"github.com/viant/jsonrpc"
)

// ListTools handles the tools/list method
func (h *Handler) ListTools(ctx context.Context, request *jsonrpc.Request) *schema.ListToolsResult {
	return schema.NewListToolsResult()
}

// CallTool handles the tools/call method: it hands the invocation to the host and
// waits for Respond, the tool timeout or the session going away, whichever comes first.
func (h *Handler) CallTool(ctx context.Context, request *jsonrpc.Request) (*schema.CallToolResult, *jsonrpc.Error) {
	if !hasParams(request.Params) {
		return nil, schema.NewMissingParams("")
	}
	params := &schema.CallToolRequestParams{}
	if err := json.Unmarshal(request.Params, params); err != nil {
		return nil, schema.NewMissingParams(fmt.Sprintf("Invalid params: %v", err))
	}
	if params.Name == "" {
		return nil, schema.NewMissingParams("Missing tool name")
	}
	arguments := params.Arguments
	if !hasParams(arguments) {
		arguments = json.RawMessage(`{}`)
	}

	call := h.pending.Create(params.Name)
	h.logger.Debug("tool call", "tool", params.Name, "callId", call.ID)
	h.host.OnToolCall(ctx, &host.ToolInvocation{CallID: call.ID, Tool: params.Name, Arguments: arguments})

	timer := time.NewTimer(h.toolTimeout)
	defer timer.Stop()
	select {
	case result, ok := <-call.Done():
		return completed(result, ok)
	case <-timer.C:
		if h.pending.Remove(call.ID) {
			h.logger.Warn("tool call timed out", "tool", params.Name, "callId", call.ID, "timeout", h.toolTimeout)
			return nil, schema.NewToolResponseTimeout()
		}
	case <-ctx.Done():
		if h.pending.Remove(call.ID) {
			return nil, schema.NewToolHandlerDisconnected()
		}
	}
	// the call was taken by a resolver racing the timer, its slot is already signaled
	result, ok := <-call.Done()
	return completed(result, ok)
}

func completed(result json.RawMessage, ok bool) (*schema.CallToolResult, *jsonrpc.Error) {
	if !ok {
		return nil, schema.NewToolHandlerDisconnected()
	}
	return schema.NewTextResult(result), nil
}
