package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/viant/idebridge/discovery"
	"github.com/viant/idebridge/host"
	"github.com/viant/idebridge/pending"
	"github.com/viant/idebridge/server"
	mcpschema "github.com/viant/mcp-protocol/schema"
)

// Service owns the bridge lifecycle: discovery registration, the listening server and the host contract
type Service struct {
	options  *Options
	host     host.Host
	registry *discovery.Registry
	logger   *slog.Logger

	mux    sync.Mutex
	server *server.Server
	port   int
	done   chan error
}

// Start sweeps stale lock files and, unless disabled, binds a port, registers and starts serving.
// Discovery write failures are logged and do not prevent serving.
func (s *Service) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.server != nil {
		return errors.New("bridge already started")
	}
	if removed, err := s.registry.Sweep(ctx); err != nil {
		s.logger.Warn("failed to sweep lock files", "error", err)
	} else if len(removed) > 0 {
		s.logger.Info("removed stale lock files", "count", len(removed))
	}
	if s.options.Disabled {
		s.logger.Info("bridge disabled")
		return nil
	}

	listener, err := server.Listen(s.options.Host, s.options.PortMin, s.options.PortMax, s.options.PortAttempts)
	if err != nil {
		return fmt.Errorf("bridge not started: %w", err)
	}
	srv, err := server.New(
		server.WithImplementation(mcpschema.Implementation{Name: s.options.AppName, Version: s.options.AppVersion}),
		server.WithHost(s.host),
		server.WithToolTimeout(s.options.ToolTimeout),
		server.WithPingInterval(s.options.PingInterval),
		server.WithSSEWatchInterval(s.options.SSEWatchInterval),
		server.WithAllowedOrigins(s.options.AllowedOrigins...),
		server.WithLogger(s.logger),
	)
	if err != nil {
		_ = listener.Close()
		return err
	}
	port := server.Port(listener)
	if err = s.registry.Register(ctx, port, srv.Token(), s.options.WorkspaceFolders); err != nil {
		s.logger.Error("failed to register bridge", "port", port, "error", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(listener)
	}()
	s.server, s.port, s.done = srv, port, done
	s.logger.Info("bridge listening", "port", port)
	return nil
}

// Stop unregisters, cancels pending calls and shuts the server down; it is a no-op when not started
func (s *Service) Stop(ctx context.Context) error {
	s.mux.Lock()
	srv, port, done := s.server, s.port, s.done
	s.server, s.port, s.done = nil, 0, nil
	s.mux.Unlock()
	if srv == nil {
		return nil
	}
	sessions := srv.Sessions()
	var errs []error
	if err := s.registry.Unregister(ctx, port); err != nil {
		errs = append(errs, err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	s.logger.Info("bridge stopped", "port", port, "sessions", sessions)
	return errors.Join(errs...)
}

// Done is signaled when the server stops serving; nil when not started
func (s *Service) Done() <-chan error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.done
}

// Respond completes a pending tool call; unknown or stale ids report pending.ErrNotFound
func (s *Service) Respond(callID string, result json.RawMessage) error {
	srv := s.current()
	if srv == nil {
		return fmt.Errorf("%w with id: %v", pending.ErrNotFound, callID)
	}
	return srv.Respond(callID, result)
}

// Notify pushes an unsolicited JSON-RPC message to the most recent session; without one it is dropped
func (s *Service) Notify(payload json.RawMessage) error {
	srv := s.current()
	if srv == nil {
		return nil
	}
	return srv.Notify(payload)
}

// Port returns the bound port, 0 when not running
func (s *Service) Port() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.port
}

// Token returns the shared secret, empty when not running
func (s *Service) Token() string {
	if srv := s.current(); srv != nil {
		return srv.Token()
	}
	return ""
}

// Connected reports whether any client session is live
func (s *Service) Connected() bool {
	if srv := s.current(); srv != nil {
		return srv.Connected()
	}
	return false
}

// Registry returns discovery registry
func (s *Service) Registry() *discovery.Registry {
	return s.registry
}

func (s *Service) current() *server.Server {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.server
}

// New creates a bridge service delivering events to aHost
func New(options *Options, aHost host.Host, logger *slog.Logger) (*Service, error) {
	if options == nil {
		options = &Options{}
	}
	options.Init()
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if aHost == nil {
		aHost = &host.Funcs{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	registryOptions := []discovery.Option{
		discovery.WithServerKey(options.ServerKey),
		discovery.WithIDE(options.AppName, options.AppVersion),
		discovery.WithLogger(logger.With("component", "discovery")),
		discovery.WithSSEURL(func(port int) string {
			return "http://" + net.JoinHostPort(options.Host, strconv.Itoa(port)) + "/sse"
		}),
	}
	if options.LockDir != "" {
		registryOptions = append(registryOptions, discovery.WithLockDir(options.LockDir))
	}
	if options.SettingsPath != "" {
		registryOptions = append(registryOptions, discovery.WithSettingsPath(options.SettingsPath))
	}
	registry, err := discovery.New(registryOptions...)
	if err != nil {
		return nil, err
	}
	return &Service{options: options, host: aHost, registry: registry, logger: logger}, nil
}
