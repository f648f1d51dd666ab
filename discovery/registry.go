package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/viant/afs"
)

const (
	// DefaultServerKey names the registration entry in the shared settings document
	DefaultServerKey = "aiterm"
	// TransportWebSocket is the transport advertised in lock descriptors
	TransportWebSocket = "ws"

	lockExt   = ".lock"
	lockMode  = 0o600
	tmpSuffix = ".idebridge-tmp"
)

// Descriptor is the content of a per-port lock file
type Descriptor struct {
	PID              int      `json:"pid"`
	WorkspaceFolders []string `json:"workspaceFolders"`
	IDEName          string   `json:"ideName"`
	IDEVersion       string   `json:"ideVersion"`
	Transport        string   `json:"transport"`
	AuthToken        string   `json:"authToken"`
	ServerPort       int      `json:"serverPort"`
}

// Registry manages lock descriptors and the shared registration entry
type Registry struct {
	fs           afs.Service
	lockDir      string
	settingsPath string
	serverKey    string
	ideName      string
	ideVersion   string
	sseURL       func(port int) string
	alive        func(pid int) bool
	logger       *slog.Logger
}

// LockDir returns lock descriptor directory
func (r *Registry) LockDir() string {
	return r.lockDir
}

// SettingsPath returns the shared settings document location
func (r *Registry) SettingsPath() string {
	return r.settingsPath
}

// LockPath returns lock file location for a port
func (r *Registry) LockPath(port int) string {
	return filepath.Join(r.lockDir, strconv.Itoa(port)+lockExt)
}

// Register writes the lock descriptor for port and upserts the shared registration entry.
// Both writes are attempted; their errors are joined.
func (r *Registry) Register(ctx context.Context, port int, token string, workspaceFolders []string) error {
	var errs []error
	if err := r.writeLock(ctx, port, token, workspaceFolders); err != nil {
		errs = append(errs, err)
	} else {
		r.logger.Info("wrote lock file", "path", r.LockPath(port))
	}
	if err := r.upsertSettings(ctx, port, token); err != nil {
		errs = append(errs, err)
	} else {
		r.logger.Info("registered server entry", "path", r.settingsPath, "key", r.serverKey, "port", port)
	}
	return errors.Join(errs...)
}

// Unregister removes the lock descriptor for port and the shared registration entry.
// Calling it when nothing was registered is a no-op.
func (r *Registry) Unregister(ctx context.Context, port int) error {
	var errs []error
	lockPath := r.LockPath(port)
	if ok, _ := r.fs.Exists(ctx, lockPath); ok {
		if err := r.fs.Delete(ctx, lockPath); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete lock file %v: %w", lockPath, err))
		} else {
			r.logger.Info("deleted lock file", "path", lockPath)
		}
	}
	if err := r.removeSettings(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Sweep removes lock descriptors that cannot be parsed or whose process is gone.
// It returns the URLs of removed files.
func (r *Registry) Sweep(ctx context.Context) ([]string, error) {
	if ok, _ := r.fs.Exists(ctx, r.lockDir); !ok {
		return nil, nil
	}
	objects, err := r.fs.List(ctx, r.lockDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list lock dir %v: %w", r.lockDir, err)
	}
	var removed []string
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), lockExt) {
			continue
		}
		URL := object.URL()
		data, err := r.fs.DownloadWithURL(ctx, URL)
		if err != nil {
			continue
		}
		pid, valid := lockPID(data)
		switch {
		case !valid:
			r.logger.Info("removing unparsable lock file", "path", URL)
		case pid > 0 && !r.alive(pid):
			r.logger.Info("removing stale lock file", "path", URL, "pid", pid)
		default:
			continue
		}
		if err := r.fs.Delete(ctx, URL); err != nil {
			r.logger.Warn("failed to remove lock file", "path", URL, "error", err)
			continue
		}
		removed = append(removed, URL)
	}
	return removed, nil
}

// Descriptors returns parsed lock descriptors
func (r *Registry) Descriptors(ctx context.Context) ([]*Descriptor, error) {
	if ok, _ := r.fs.Exists(ctx, r.lockDir); !ok {
		return nil, nil
	}
	objects, err := r.fs.List(ctx, r.lockDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list lock dir %v: %w", r.lockDir, err)
	}
	var result []*Descriptor
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), lockExt) {
			continue
		}
		data, err := r.fs.DownloadWithURL(ctx, object.URL())
		if err != nil {
			continue
		}
		descriptor := &Descriptor{}
		if err = json.Unmarshal(data, descriptor); err != nil {
			continue
		}
		result = append(result, descriptor)
	}
	return result, nil
}

func (r *Registry) writeLock(ctx context.Context, port int, token string, workspaceFolders []string) error {
	if workspaceFolders == nil {
		workspaceFolders = []string{}
	}
	descriptor := &Descriptor{
		PID:              os.Getpid(),
		WorkspaceFolders: workspaceFolders,
		IDEName:          r.ideName,
		IDEVersion:       r.ideVersion,
		Transport:        TransportWebSocket,
		AuthToken:        token,
		ServerPort:       port,
	}
	data, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return err
	}
	lockPath := r.LockPath(port)
	if err = r.fs.Upload(ctx, lockPath, lockMode, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("failed to write lock file %v: %w", lockPath, err)
	}
	return nil
}

// New creates a registry rooted in the user home directory unless overridden by options
func New(options ...Option) (*Registry, error) {
	ret := &Registry{
		fs:        afs.New(),
		serverKey: DefaultServerKey,
		alive:     processAlive,
		logger:    slog.Default(),
	}
	ret.sseURL = func(port int) string {
		return fmt.Sprintf("http://127.0.0.1:%d/sse", port)
	}
	for _, option := range options {
		option(ret)
	}
	if ret.lockDir == "" || ret.settingsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		if ret.lockDir == "" {
			ret.lockDir = filepath.Join(home, ".claude", "ide")
		}
		if ret.settingsPath == "" {
			ret.settingsPath = filepath.Join(home, ".claude.json")
		}
	}
	return ret, nil
}
