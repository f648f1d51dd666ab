package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/viant/idebridge/host"
	mcpschema "github.com/viant/mcp-protocol/schema"
)

// Option is a function that configures the server.
type Option func(s *Server) error

// WithImplementation sets the server identity reported by initialize.
func WithImplementation(implementation mcpschema.Implementation) Option {
	return func(s *Server) error {
		s.info = implementation
		return nil
	}
}

// WithHost sets the receiver of tool invocations and connectivity changes.
func WithHost(aHost host.Host) Option {
	return func(s *Server) error {
		s.host = aHost
		return nil
	}
}

// WithToolTimeout sets how long tools/call waits for the host.
func WithToolTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		if timeout <= 0 {
			return errors.New("tool timeout must be positive")
		}
		s.toolTimeout = timeout
		return nil
	}
}

// WithPingInterval sets the WebSocket ping and SSE keepalive interval.
func WithPingInterval(interval time.Duration) Option {
	return func(s *Server) error {
		if interval <= 0 {
			return errors.New("ping interval must be positive")
		}
		s.pingInterval = interval
		return nil
	}
}

// WithSSEWatchInterval sets how often ended SSE sessions are released.
func WithSSEWatchInterval(interval time.Duration) Option {
	return func(s *Server) error {
		if interval <= 0 {
			return errors.New("sse watch interval must be positive")
		}
		s.sseWatchInterval = interval
		return nil
	}
}

// WithAllowedOrigins adds browser origins accepted besides loopback ones.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) error {
		s.allowedOrigins = append(s.allowedOrigins, origins...)
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}
