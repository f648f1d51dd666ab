package bridge

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/viant/afs"
	"github.com/viant/idebridge/discovery"
	"github.com/viant/idebridge/server"
	"gopkg.in/yaml.v3"
)

// Options configures the bridge; flags take precedence over the YAML config file
type Options struct {
	ConfigURL        string        `short:"c" long:"config" description:"YAML config file" yaml:"-"`
	Disabled         bool          `long:"disabled" description:"do not start the bridge, only sweep stale lock files" yaml:"disabled"`
	AppName          string        `long:"app-name" description:"application name reported to clients" yaml:"appName"`
	AppVersion       string        `long:"app-version" description:"application version reported to clients" yaml:"appVersion"`
	ServerKey        string        `long:"server-key" description:"registration entry name in the settings document" yaml:"serverKey"`
	LockDir          string        `long:"lock-dir" description:"lock descriptor directory" yaml:"lockDir"`
	SettingsPath     string        `long:"settings" description:"shared settings document" yaml:"settingsPath"`
	WorkspaceFolders []string      `short:"w" long:"workspace" description:"workspace folder, repeatable" yaml:"workspaceFolders"`
	Host             string        `long:"host" description:"bind address" yaml:"host"`
	PortMin          int           `long:"port-min" description:"lowest candidate port" yaml:"portMin"`
	PortMax          int           `long:"port-max" description:"candidate port upper bound (exclusive)" yaml:"portMax"`
	PortAttempts     int           `long:"port-attempts" description:"number of random candidate ports" yaml:"portAttempts"`
	ToolTimeout      time.Duration `long:"tool-timeout" description:"how long a tool call waits for the host" yaml:"toolTimeout"`
	PingInterval     time.Duration `long:"ping-interval" description:"websocket keepalive interval" yaml:"pingInterval"`
	SSEWatchInterval time.Duration `long:"sse-watch-interval" description:"ended SSE session release interval" yaml:"sseWatchInterval"`
	AllowedOrigins   []string      `long:"origin" description:"extra allowed browser origin, repeatable" yaml:"allowedOrigins"`
	List             bool          `long:"list" description:"print live lock descriptors and exit" yaml:"-"`
	Debug            bool          `short:"d" long:"debug" description:"enable debug logging" yaml:"debug"`
}

// Init fills unset fields with defaults
func (o *Options) Init() {
	if o.AppName == "" {
		o.AppName = "aiTerm"
	}
	if o.AppVersion == "" {
		o.AppVersion = "0.1.0"
	}
	if o.ServerKey == "" {
		o.ServerKey = discovery.DefaultServerKey
	}
	if o.Host == "" {
		o.Host = server.DefaultBindHost
	}
	if o.PortMin == 0 {
		o.PortMin = server.DefaultPortMin
	}
	if o.PortMax == 0 {
		o.PortMax = server.DefaultPortMax
	}
	if o.PortAttempts == 0 {
		o.PortAttempts = server.DefaultPortAttempts
	}
	if o.ToolTimeout == 0 {
		o.ToolTimeout = 120 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.SSEWatchInterval == 0 {
		o.SSEWatchInterval = 15 * time.Second
	}
	if len(o.WorkspaceFolders) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			o.WorkspaceFolders = []string{home}
		}
	}
}

// Validate checks option consistency
func (o *Options) Validate() error {
	if o.PortMin <= 0 || o.PortMax <= o.PortMin || o.PortMax > 65536 {
		return fmt.Errorf("invalid port range [%v, %v)", o.PortMin, o.PortMax)
	}
	if o.PortAttempts <= 0 {
		return fmt.Errorf("invalid port attempts: %v", o.PortAttempts)
	}
	if o.ToolTimeout <= 0 || o.PingInterval <= 0 || o.SSEWatchInterval <= 0 {
		return fmt.Errorf("timeouts and intervals must be positive")
	}
	return nil
}

// LoadOptions reads YAML options from URL; any afs supported location works
func LoadOptions(ctx context.Context, URL string) (*Options, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	options := &Options{}
	if err = yaml.Unmarshal(data, options); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	return options, nil
}
