package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/tidwall/pretty"
	"github.com/viant/idebridge/discovery"
)

const shutdownTimeout = 5 * time.Second

// ParseOptions parses args, loading --config first so that explicit flags override it
func ParseOptions(ctx context.Context, args []string) (*Options, error) {
	options := &Options{}
	if _, err := flags.ParseArgs(options, args); err != nil {
		return nil, err
	}
	if options.ConfigURL == "" {
		return options, nil
	}
	loaded, err := LoadOptions(ctx, options.ConfigURL)
	if err != nil {
		return nil, err
	}
	loaded.ConfigURL = options.ConfigURL
	if _, err = flags.ParseArgs(loaded, args); err != nil {
		return nil, err
	}
	return loaded, nil
}

// Run starts the bridge with a stdio host and serves until interrupted
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	options, err := ParseOptions(ctx, args)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if options.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	service, err := New(options, NewStdioHost(os.Stdout, logger), logger)
	if err != nil {
		return err
	}
	if options.List {
		return ListDescriptors(ctx, service.Registry(), os.Stdout)
	}
	if err = service.Start(ctx); err != nil {
		return err
	}
	done := service.Done()
	if done == nil {
		return nil
	}
	go func() {
		if err := ServeCommands(ctx, os.Stdin, service, logger); err != nil {
			logger.Warn("command input closed", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-done:
		if err != nil {
			logger.Error("server stopped", "error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return service.Stop(shutdownCtx)
}

// ListDescriptors sweeps stale lock files and writes the remaining descriptors as a JSON array
func ListDescriptors(ctx context.Context, registry *discovery.Registry, w io.Writer) error {
	if _, err := registry.Sweep(ctx); err != nil {
		return err
	}
	descriptors, err := registry.Descriptors(ctx)
	if err != nil {
		return err
	}
	if descriptors == nil {
		descriptors = []*discovery.Descriptor{}
	}
	data, err := json.Marshal(descriptors)
	if err != nil {
		return err
	}
	_, err = w.Write(pretty.Pretty(data))
	return err
}
