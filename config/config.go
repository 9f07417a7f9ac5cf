// Package config loads the configuration of a chat host.
//
// Configuration comes from a single YAML file. Every field is optional;
// a missing file section keeps its default. Command-line flags applied by
// the caller override the loaded values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/fedchat"
)

// Defaults applied when the file leaves a field unset.
const (
	DefaultPort           = fedchat.DefaultPort
	DefaultForwardTimeout = fedchat.DefaultForwardTimeout
)

// Config is the host configuration.
type Config struct {
	// Hostname is the name this host answers to. Empty means the machine's
	// hostname.
	Hostname string `yaml:"hostname"`

	// Listen lists the sockets to accept clients and peer hosts on.
	// Default: tcp :3333
	Listen []ListenConfig `yaml:"listen"`

	// FederationPort is the port dialed on remote hosts.
	FederationPort int `yaml:"federation_port"`

	// ForwardTimeout bounds dialing and writing to a remote host.
	// Default: 5s
	ForwardTimeout Duration `yaml:"forward_timeout"`

	// PollTimeout bounds each wait of the event loop. Zero waits until
	// something happens.
	PollTimeout Duration `yaml:"poll_timeout"`

	// WriteTimeout bounds writes to client sessions.
	WriteTimeout Duration `yaml:"write_timeout"`

	// MailboxLimit caps each offline user's queue. Zero is unbounded.
	MailboxLimit int `yaml:"mailbox_limit"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// ListenConfig is one listening socket.
type ListenConfig struct {
	// Network is "tcp", "tcp4", "tcp6" or "unix".
	Network string `yaml:"network"`
	// Address is host:port for TCP, a filesystem path for unix.
	Address string `yaml:"address"`
}

func (l ListenConfig) String() string {
	return l.Network + "://" + l.Address
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`
	// Format is text or json. Default: text
	Format string `yaml:"format"`
}

// Duration is a time.Duration read from strings such as "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:         []ListenConfig{{Network: "tcp", Address: fmt.Sprintf(":%d", DefaultPort)}},
		FederationPort: DefaultPort,
		ForwardTimeout: Duration(DefaultForwardTimeout),
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if len(c.Listen) == 0 {
		c.Listen = Default().Listen
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseListen parses "network://address". A bare address means tcp.
func ParseListen(s string) (ListenConfig, error) {
	network, address, ok := strings.Cut(s, "://")
	if !ok {
		network, address = "tcp", s
	}
	l := ListenConfig{Network: network, Address: address}
	return l, l.validate()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Listen) == 0 {
		return errors.New("config: at least one listen entry is required")
	}
	for i, l := range c.Listen {
		if err := l.validate(); err != nil {
			return errors.Wrapf(err, "config: listen[%d]", i)
		}
	}
	if c.FederationPort <= 0 || c.FederationPort > 65535 {
		return errors.Errorf("config: federation_port %d out of range", c.FederationPort)
	}
	if c.ForwardTimeout < 0 || c.PollTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	if c.MailboxLimit < 0 {
		return errors.New("config: mailbox_limit must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return errors.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

func (l ListenConfig) validate() error {
	switch l.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return errors.Errorf("unsupported network %q", l.Network)
	}
	if l.Address == "" {
		return errors.Errorf("empty %s address", l.Network)
	}
	return nil
}
