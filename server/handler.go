package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/viant/idebridge/host"
	"github.com/viant/idebridge/pending"
	"github.com/viant/idebridge/schema"
	"github.com/viant/jsonrpc"
	mcpschema "github.com/viant/mcp-protocol/schema"
)

// Handler serves JSON-RPC requests; it is shared by both transports
type Handler struct {
	info        mcpschema.Implementation
	pending     *pending.Table
	host        host.Host
	toolTimeout time.Duration
	logger      *slog.Logger
}

// Dispatch decodes one inbound WebSocket message, serves it and sends the reply, if any, to out.
// Malformed messages and notifications produce no reply.
func (h *Handler) Dispatch(ctx context.Context, data []byte, out Outbound) {
	request, err := decodeRequest(data)
	if err != nil {
		h.logger.Warn("dropping invalid JSON-RPC message", "error", err)
		return
	}
	if request.Id == nil {
		h.OnNotification(ctx, &jsonrpc.Notification{Jsonrpc: request.Jsonrpc, Method: request.Method, Params: request.Params})
		return
	}
	response := &jsonrpc.Response{Id: request.Id, Jsonrpc: jsonrpc.Version}
	h.Serve(ctx, request, response)
	payload, err := json.Marshal(response)
	if err != nil {
		h.logger.Error("failed to encode response", "method", request.Method, "error", err)
		return
	}
	if err = out.Send(payload); err != nil {
		h.logger.Debug("session closed before response", "method", request.Method, "error", err)
	}
}

// Serve handles a request, filling response with its result or error
func (h *Handler) Serve(ctx context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	switch request.Method {
	case mcpschema.MethodInitialize:
		schema.SetResult(response, h.Initialize(ctx, request))
	case mcpschema.MethodPing:
		schema.SetResult(response, h.Ping(ctx, request))
	case mcpschema.MethodToolsList:
		schema.SetResult(response, h.ListTools(ctx, request))
	case mcpschema.MethodToolsCall:
		result, rpcError := h.CallTool(ctx, request)
		if rpcError != nil {
			response.Error = rpcError
			return
		}
		schema.SetResult(response, result)
	default:
		response.Error = schema.NewMethodNotFound(request.Method)
	}
}

// OnNotification handles messages without an id; they are never answered
func (h *Handler) OnNotification(ctx context.Context, notification *jsonrpc.Notification) {
	switch notification.Method {
	case mcpschema.MethodNotificationInitialized:
		h.logger.Debug("client finished initialization")
	default:
		h.logger.Debug("ignoring notification", "method", notification.Method)
	}
}

// message is the inbound wire shape; id stays untyped so that it is echoed verbatim
type message struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// decodeRequest parses a JSON-RPC message keeping numeric ids verbatim
func decodeRequest(data []byte) (*jsonrpc.Request, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	msg := &message{}
	if err := decoder.Decode(msg); err != nil {
		return nil, err
	}
	if msg.Method == "" {
		return nil, errors.New("message has no method")
	}
	return &jsonrpc.Request{Id: msg.Id, Jsonrpc: msg.Jsonrpc, Method: msg.Method, Params: msg.Params}, nil
}

func hasParams(params json.RawMessage) bool {
	trimmed := bytes.TrimSpace(params)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func newHandler(info mcpschema.Implementation, table *pending.Table, aHost host.Host, toolTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{info: info, pending: table, host: aHost, toolTimeout: toolTimeout, logger: logger}
}
