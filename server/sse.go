package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/viant/idebridge/internal/collection"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/jsonrpc/transport/server/base"
	"github.com/viant/jsonrpc/transport/server/http/session"
	"github.com/viant/jsonrpc/transport/server/http/sse"
)

const sseSessionParam = "sessionId"

// sseSession is the handler of one SSE stream; it is also the stream's notification target
type sseSession struct {
	*Handler
	ctx      context.Context
	notifier transport.Notifier
	once     sync.Once
}

// Send pushes a serialized JSON-RPC notification down the stream
func (s *sseSession) Send(data []byte) error {
	push := &message{}
	if err := json.Unmarshal(data, push); err != nil {
		return err
	}
	if push.Method == "" {
		return errors.New("stream push has no method")
	}
	return s.notifier.Notify(s.ctx, &jsonrpc.Notification{Jsonrpc: jsonrpc.Version, Method: push.Method, Params: push.Params})
}

// NewHandler creates the handler of a new SSE session
func (s *Server) NewHandler(ctx context.Context, aTransport transport.Transport) transport.Handler {
	ret := &sseSession{Handler: s.handler, ctx: ctx, notifier: aTransport}
	s.state.open(ret)
	s.logger.Info("session opened", "transport", "sse")
	return ret
}

// closeSSESession releases a session dropped by the transport or by shutdown
func (s *Server) closeSSESession(aSession *base.Session) {
	handler, ok := aSession.Handler.(*sseSession)
	if !ok {
		return
	}
	handler.once.Do(func() {
		s.state.close(handler)
		s.logger.Info("session closed", "transport", "sse", "session", aSession.Id)
	})
}

// closeSSESessions releases every SSE session
func (s *Server) closeSSESessions() {
	s.sseSessions.Range(func(id string, aSession *base.Session) bool {
		s.closeSSESession(aSession)
		s.sseSessions.Delete(id)
		return true
	})
}

// sseMessageMiddleware only lets message posts through for attached sessions
func (s *Server) sseMessageMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		aSession, ok := s.sseSessions.Get(r.URL.Query().Get(sseSessionParam))
		if !ok || !attached(aSession) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxMessageSize)
		next.ServeHTTP(w, r)
	})
}

func attached(aSession *base.Session) bool {
	aSession.Lock()
	defer aSession.Unlock()
	return aSession.State == base.SessionStateActive
}

// newSSEHandler mounts the SSE transport: sessions are dropped as soon as their stream ends
// and are never resumed
func (s *Server) newSSEHandler() *sse.Handler {
	return sse.New(s.NewHandler,
		sse.WithURI(s.sseURI),
		sse.WithMessageURI(s.sseMessageURI),
		sse.WithSseSessionLocation(session.NewQueryLocation(sseSessionParam)),
		sse.WithSessionStore(s.sseSessions),
		sse.WithKeepAliveInterval(s.pingInterval),
		sse.WithCleanupInterval(s.sseWatchInterval),
		sse.WithRemovalPolicy(base.RemovalOnDisconnect),
		sse.WithReconnectGrace(0),
		sse.WithIdleTTL(0),
		sse.WithMaxLifetime(0),
		sse.WithMaxEventBuffer(0),
		sse.WithOnSessionClose(s.closeSSESession),
	)
}

// sessionStore keeps SSE sessions; Range walks a snapshot so the sweeper may delete while ranging
type sessionStore struct {
	sessions *collection.SyncMap[string, *base.Session]
}

func (s *sessionStore) Get(id string) (*base.Session, bool) {
	return s.sessions.Get(id)
}

func (s *sessionStore) Put(id string, aSession *base.Session) {
	s.sessions.Put(id, aSession)
}

func (s *sessionStore) Delete(id string) {
	s.sessions.Delete(id)
}

func (s *sessionStore) Range(f func(id string, aSession *base.Session) bool) {
	s.sessions.Range(f)
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: collection.NewSyncMap[string, *base.Session]()}
}
