package discovery

import (
	"log/slog"
)

// Option configures a Registry
type Option func(r *Registry)

// WithLockDir overrides the lock descriptor directory
func WithLockDir(dir string) Option {
	return func(r *Registry) {
		r.lockDir = dir
	}
}

// WithSettingsPath overrides the shared settings document location
func WithSettingsPath(path string) Option {
	return func(r *Registry) {
		r.settingsPath = path
	}
}

// WithServerKey sets the name of the registration entry
func WithServerKey(key string) Option {
	return func(r *Registry) {
		if key != "" {
			r.serverKey = key
		}
	}
}

// WithIDE sets the application name and version advertised in lock descriptors
func WithIDE(name, version string) Option {
	return func(r *Registry) {
		r.ideName = name
		r.ideVersion = version
	}
}

// WithSSEURL sets the event stream URL builder used in the registration entry
func WithSSEURL(fn func(port int) string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.sseURL = fn
		}
	}
}

// WithLivenessCheck overrides the process liveness check
func WithLivenessCheck(alive func(pid int) bool) Option {
	return func(r *Registry) {
		if alive != nil {
			r.alive = alive
		}
	}
}

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}
