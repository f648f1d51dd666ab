// Package host defines the boundary between the bridge and the hosting application.
//
// The bridge emits exactly two kinds of events toward the application: a tool
// invocation that must later be resolved by call id, and a connectivity change.
// Results flow back through bridge.Service.Respond and unsolicited pushes through
// bridge.Service.Notify.
package host

import (
	"context"
	"encoding/json"
)

// ToolInvocation is emitted for every tools/call request
type ToolInvocation struct {
	CallID    string          `json:"request_id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// Host receives bridge events; implementations must not block
type Host interface {
	OnToolCall(ctx context.Context, invocation *ToolInvocation)
	// OnConnectionChanged reports true on every session open and false once no session is left
	OnConnectionChanged(connected bool)
}

// Funcs adapts plain functions to Host; nil functions are ignored
type Funcs struct {
	ToolCall          func(ctx context.Context, invocation *ToolInvocation)
	ConnectionChanged func(connected bool)
}

func (f *Funcs) OnToolCall(ctx context.Context, invocation *ToolInvocation) {
	if f.ToolCall != nil {
		f.ToolCall(ctx, invocation)
	}
}

func (f *Funcs) OnConnectionChanged(connected bool) {
	if f.ConnectionChanged != nil {
		f.ConnectionChanged(connected)
	}
}
