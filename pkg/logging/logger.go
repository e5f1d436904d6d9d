// Package logging provides structured logging for event proxy components.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a structured logger scoped to one component.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new structured logger writing JSON to stderr.
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerTo(os.Stderr, component, level)
}

// NewLoggerTo creates a structured logger writing to w. Used by tests to
// capture output.
func NewLoggerTo(w io.Writer, component string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(w, opts)

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "eventproxy"),
	)

	return &Logger{Logger: logger}
}

// WithSession returns a logger with session-specific fields.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("session_id", sessionID),
		),
	}
}

// WithSubscriber returns a logger with subscriber-specific fields.
func (l *Logger) WithSubscriber(subscriberID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("subscriber_id", subscriberID),
		),
	}
}

// ConnectionStateChange logs a connection state transition.
func (l *Logger) ConnectionStateChange(from, to string) {
	l.Info("connection state changed",
		slog.String("from_state", from),
		slog.String("to_state", to),
	)
}

// EventBroadcast logs a broadcast fan-out.
func (l *Logger) EventBroadcast(method string, subscribers int) {
	l.Debug("event broadcast",
		slog.String("method", method),
		slog.Int("subscribers", subscribers),
	)
}

// ParseLevel maps a config string to a slog level. Unknown values fall back
// to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
