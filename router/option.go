package router

import "time"

type options struct {
	logger         Logger
	mailboxLimit   int
	forwardTimeout time.Duration
}

// Option configures a Router.
type Option func(*options)

// LoggerOption sets the router's logger. Defaults to slog.Default().
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MailboxLimitOption caps every user's pending queue. Zero keeps queues
// unbounded.
func MailboxLimitOption(limit int) Option {
	return func(o *options) {
		o.mailboxLimit = limit
	}
}

// ForwardTimeoutOption bounds each federation forward. A forward that
// times out is dropped like any other failed forward. Zero means no bound.
func ForwardTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.forwardTimeout = timeout
	}
}
