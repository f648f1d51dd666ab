package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// handleWebSocket upgrades an authorized request and serves the session until it ends
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.serveWebSocket(s.ctx, conn)
}

// serveWebSocket runs the reader, keepalive and relay duties; the first to end tears the session down
func (s *Server) serveWebSocket(parent context.Context, conn *websocket.Conn) {
	sessionID := uuid.NewString()
	logger := s.logger.With("transport", "ws", "session", sessionID)
	outbox := NewOutbox()
	s.state.open(outbox)
	logger.Info("session opened", "remote", conn.RemoteAddr().String())

	group, ctx := errgroup.WithContext(parent)
	group.Go(func() error {
		<-ctx.Done()
		outbox.Close()
		return conn.Close()
	})
	group.Go(func() error {
		conn.SetReadLimit(maxMessageSize)
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			if messageType != websocket.TextMessage {
				continue
			}
			go s.handler.Dispatch(ctx, data, outbox)
		}
	})
	group.Go(func() error {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return err
				}
			}
		}
	})
	group.Go(func() error {
		for {
			data, err := outbox.Next(ctx)
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
	})

	err := group.Wait()
	s.state.close(outbox)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, ErrOutboxClosed),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Info("session closed")
	default:
		logger.Info("session closed", "reason", err)
	}
}
