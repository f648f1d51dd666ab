package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/pretty"
	"github.com/viant/idebridge/host"
	"github.com/viant/idebridge/pending"
	"github.com/viant/jsonrpc/transport/server/http/sse"
	mcpschema "github.com/viant/mcp-protocol/schema"
)

const (
	defaultToolTimeout      = 120 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultSSEWatchInterval = 15 * time.Second
	writeWait               = 10 * time.Second
	maxMessageSize          = 16 << 20
)

// Server accepts tool-invocation sessions over WebSocket and SSE and dispatches them to a host
type Server struct {
	info             mcpschema.Implementation
	token            string
	host             host.Host
	pending          *pending.Table
	logger           *slog.Logger
	toolTimeout      time.Duration
	pingInterval     time.Duration
	sseWatchInterval time.Duration
	allowedOrigins   []string
	wsURI            string
	sseURI           string
	sseMessageURI    string

	handler     *Handler
	state       *connectionState
	sseSessions *sessionStore
	sseHandler  *sse.Handler
	upgrader    websocket.Upgrader

	ctx        context.Context
	cancel     context.CancelFunc
	mux        sync.Mutex
	httpServer *http.Server
}

// Token returns the shared secret required on every request
func (s *Server) Token() string {
	return s.token
}

// Connected reports whether at least one session is live
func (s *Server) Connected() bool {
	return s.state.connected()
}

// Sessions returns number of live sessions
func (s *Server) Sessions() int {
	return s.state.sessions()
}

// Respond resolves a pending tool call with an opaque result
func (s *Server) Respond(callID string, result json.RawMessage) error {
	return s.pending.Resolve(callID, result)
}

// Notify pushes a pre-serialized JSON-RPC notification to the most recently opened session.
// Without a live session the payload is dropped.
func (s *Server) Notify(payload json.RawMessage) error {
	if !json.Valid(payload) {
		return errors.New("notification payload is not valid JSON")
	}
	return s.state.notify(pretty.Ugly(payload))
}

// Serve accepts connections on listener until Shutdown is called
func (s *Server) Serve(listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeWait,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	s.mux.Lock()
	if s.ctx.Err() != nil {
		s.mux.Unlock()
		_ = listener.Close()
		return nil
	}
	s.httpServer = httpServer
	s.mux.Unlock()
	err := httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown tears down live sessions, cancels pending calls and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if cancelled := s.pending.CancelAll(); cancelled > 0 {
		s.logger.Info("cancelled pending tool calls", "count", cancelled)
	}
	s.closeSSESessions()
	s.mux.Lock()
	httpServer := s.httpServer
	s.mux.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// New creates a server
func New(options ...Option) (*Server, error) {
	s := &Server{
		info: mcpschema.Implementation{
			Name:    "aiTerm",
			Version: "0.1",
		},
		pending:          pending.NewTable(),
		logger:           slog.Default(),
		toolTimeout:      defaultToolTimeout,
		pingInterval:     defaultPingInterval,
		sseWatchInterval: defaultSSEWatchInterval,
		wsURI:            "/",
		sseURI:           "/sse",
		sseMessageURI:    "/message",
		sseSessions:      newSessionStore(),
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	if s.host == nil {
		s.host = &host.Funcs{}
	}
	if s.token == "" {
		token, err := NewToken()
		if err != nil {
			return nil, err
		}
		s.token = token
	}
	s.logger = s.logger.With("component", "server")
	s.state = newConnectionState(s.host)
	s.handler = newHandler(s.info, s.pending, s.host, s.toolTimeout, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// origin is validated by middleware before the upgrade
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sseHandler = s.newSSEHandler()
	return s, nil
}
