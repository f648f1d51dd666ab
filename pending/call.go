package pending

import (
	"encoding/json"
	"time"
)

// Call represents an in-flight tool invocation
type Call struct {
	ID        string
	Tool      string
	CreatedAt time.Time
	done      chan json.RawMessage
}

// Done returns the completion slot; it is closed without a value when the call is cancelled
func (c *Call) Done() <-chan json.RawMessage {
	return c.done
}

func newCall(id, tool string) *Call {
	return &Call{ID: id, Tool: tool, CreatedAt: time.Now(), done: make(chan json.RawMessage, 1)}
}
