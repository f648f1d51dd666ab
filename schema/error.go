package schema

import "github.com/viant/jsonrpc"

// JSON-RPC error codes
const (
	ParseErrorCode     = -32700
	InvalidRequestCode = -32600
	MethodNotFoundCode = -32601
	InvalidParamsCode  = -32602
	InternalErrorCode  = -32603
)

// NewMethodNotFound creates a method not found error
func NewMethodNotFound(method string) *jsonrpc.Error {
	return jsonrpc.NewError(MethodNotFoundCode, "Method not found: "+method, nil)
}

// NewMissingParams creates an invalid params error
func NewMissingParams(message string) *jsonrpc.Error {
	if message == "" {
		message = "Missing params"
	}
	return jsonrpc.NewError(InvalidParamsCode, message, nil)
}

// NewToolHandlerDisconnected is returned when the host drops a pending call without a value
func NewToolHandlerDisconnected() *jsonrpc.Error {
	return jsonrpc.NewError(InternalErrorCode, "Tool handler disconnected", nil)
}

// NewToolResponseTimeout is returned when the host does not answer in time
func NewToolResponseTimeout() *jsonrpc.Error {
	return jsonrpc.NewError(InternalErrorCode, "Tool response timeout", nil)
}
