package fedchat

import (
	"time"

	"github.com/Zereker/fedchat/wire"
)

// options holds the configuration for a stream.
type options struct {
	codec  Codec
	logger Logger

	readSize      int           // bytes requested per read
	maxBufferSize int           // cap on one partially received frame
	writeTimeout  time.Duration // zero means writes may block indefinitely
}

// Default configuration values.
const (
	// defaultReadSize is the size of a single non-blocking read.
	defaultReadSize = 4096
	// defaultMaxBufferSize caps a partially received frame (1MB).
	defaultMaxBufferSize = 1024 * 1024
)

// checkOptions sets default values for stream options.
func checkOptions(opts *options) {
	if opts.codec == nil {
		opts.codec = wire.Standard()
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	if opts.readSize <= 0 {
		opts.readSize = defaultReadSize
	}
	if opts.maxBufferSize <= 0 {
		opts.maxBufferSize = defaultMaxBufferSize
	}
}

// Option is a function that configures stream options.
type Option func(*options)

// CodecOption sets the frame codec. Defaults to wire.Standard().
func CodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// LoggerOption sets the logger. If not set, the default slog logger is used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ReadSizeOption sets how many bytes a single read asks for.
func ReadSizeOption(size int) Option {
	return func(o *options) {
		o.readSize = size
	}
}

// MaxBufferOption caps how many bytes of a single frame may be buffered
// while waiting for the rest of it. A stream whose peer exceeds it is
// closed with ErrMessageTooLarge. Complete frames never count.
func MaxBufferOption(size int) Option {
	return func(o *options) {
		o.maxBufferSize = size
	}
}

// WriteTimeoutOption bounds every write. A write that times out fails
// like any other transport error.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}
