package fedchat

import "log/slog"

// Logger is the structured logger used by streams, listeners, relays and
// hosts. Arguments are slog key-value pairs, so *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func defaultLogger() Logger {
	return slog.Default()
}
