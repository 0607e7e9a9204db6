// Package log provides structured logging for go-fintrack.
// It wraps slog with sensible defaults for an operator console.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once

	attrsMu sync.RWMutex
	attrs   []slog.Attr
)

// ParseLevel maps a level name to a slog.Level.
// Valid levels: "debug", "info", "warn", "error". Anything else is info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logger with the specified level.
func Init(level string) {
	once.Do(func() {
		logger = New(os.Stdout, level, os.Getenv("GO_ENV") == "production")
		slog.SetDefault(logger)
	})
}

// New builds a logger writing to w. Records carry the attributes set with
// SetAttrs at the moment they are written.
func New(w io.Writer, level string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var inner slog.Handler
	if jsonOutput {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}

	return slog.New(NewContextHandler(inner, currentAttrs))
}

// SetAttrs replaces the run-wide attributes added to every record,
// e.g. the session id.
func SetAttrs(a ...slog.Attr) {
	attrsMu.Lock()
	attrs = append([]slog.Attr(nil), a...)
	attrsMu.Unlock()
}

func currentAttrs() []slog.Attr {
	attrsMu.RLock()
	defer attrsMu.RUnlock()
	return attrs
}

// SetLogger replaces the global logger and returns the previous one.
// A later Init is a no-op.
func SetLogger(l *slog.Logger) *slog.Logger {
	once.Do(func() {})
	prev := logger
	logger = l
	return prev
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
