package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/viant/idebridge/host"
)

// stdio event and command types
const (
	EventToolCall   = "tool_call"
	EventConnection = "connection"

	CommandRespond = "respond"
	CommandNotify  = "notify"

	maxCommandSize = 32 << 20
)

// Event is one JSON line written by StdioHost
type Event struct {
	Event string `json:"event"`
	*host.ToolInvocation
	Connected *bool `json:"connected,omitempty"`
}

// Command is one JSON line read by ServeCommands
type Command struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Responder is the host-facing side of the bridge
type Responder interface {
	Respond(callID string, result json.RawMessage) error
	Notify(payload json.RawMessage) error
}

// StdioHost writes bridge events as JSON lines, standing in for a GUI host
type StdioHost struct {
	mux     sync.Mutex
	encoder *json.Encoder
	logger  *slog.Logger
}

func (h *StdioHost) OnToolCall(ctx context.Context, invocation *host.ToolInvocation) {
	h.emit(&Event{Event: EventToolCall, ToolInvocation: invocation})
}

func (h *StdioHost) OnConnectionChanged(connected bool) {
	h.emit(&Event{Event: EventConnection, Connected: &connected})
}

func (h *StdioHost) emit(event *Event) {
	h.mux.Lock()
	defer h.mux.Unlock()
	if err := h.encoder.Encode(event); err != nil {
		h.logger.Warn("failed to write event", "event", event.Event, "error", err)
	}
}

// NewStdioHost creates a host writing to writer
func NewStdioHost(writer io.Writer, logger *slog.Logger) *StdioHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioHost{encoder: json.NewEncoder(writer), logger: logger}
}

// ServeCommands applies JSON line commands from reader to responder until EOF or ctx is done.
// A failing command is logged and does not stop the loop.
func ServeCommands(ctx context.Context, reader io.Reader, responder Responder, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxCommandSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := applyCommand(line, responder); err != nil {
			logger.Warn("command failed", "error", err)
		}
	}
	return scanner.Err()
}

func applyCommand(line []byte, responder Responder) error {
	command := &Command{}
	if err := json.Unmarshal(line, command); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}
	switch command.Type {
	case CommandRespond:
		if command.RequestID == "" {
			return fmt.Errorf("respond command has no request_id")
		}
		result := command.Result
		if len(result) == 0 {
			result = json.RawMessage(`null`)
		}
		return responder.Respond(command.RequestID, result)
	case CommandNotify:
		if len(command.Payload) == 0 {
			return fmt.Errorf("notify command has no payload")
		}
		return responder.Notify(command.Payload)
	}
	return fmt.Errorf("unsupported command type: %q", command.Type)
}
