package client

import (
	"log/slog"
	"time"

	"github.com/Zereker/fedchat"
	"github.com/Zereker/fedchat/wire"
)

type options struct {
	registry         *wire.Registry
	logger           fedchat.Logger
	network          string
	pollInterval     time.Duration
	handshakeTimeout time.Duration
	bufferSize       int
}

// Default configuration values.
const (
	defaultPollInterval     = 100 * time.Millisecond
	defaultHandshakeTimeout = 5 * time.Second
	defaultBufferSize       = 64
)

func checkOptions(opts *options) {
	if opts.registry == nil {
		opts.registry = wire.Standard()
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.network == "" {
		opts.network = "tcp"
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = defaultPollInterval
	}
	if opts.handshakeTimeout <= 0 {
		opts.handshakeTimeout = defaultHandshakeTimeout
	}
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}
}

// Option configures a Client.
type Option func(*options)

// RegistryOption sets the message registry. Defaults to wire.Standard().
func RegistryOption(registry *wire.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// LoggerOption sets the logger. Defaults to slog.Default().
func LoggerOption(logger fedchat.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NetworkOption selects the network to dial, "tcp" or "unix".
func NetworkOption(network string) Option {
	return func(o *options) {
		o.network = network
	}
}

// PollIntervalOption sets how often the receiver checks for messages. It
// is also the upper bound on how long Close waits for the receiver.
func PollIntervalOption(interval time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
	}
}

// HandshakeTimeoutOption bounds the wait for the host's identity after
// signing in.
func HandshakeTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = timeout
	}
}

// BufferSizeOption sets the capacity of the Messages channel.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}
