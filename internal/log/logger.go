package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	once   sync.Once
	logger atomic.Pointer[slog.Logger]
)

// Setup initializes the global logger writing to stderr.
// Level defaults to INFO; format is "json" (default) or "text".
// Stdout stays free for command output and the stdio wire protocol.
func Setup(level, format string) {
	once.Do(func() {
		l := newLogger(os.Stderr, level, format)
		logger.Store(l)
		slog.SetDefault(l)
	})
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level, falling back to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger, or a default one if Setup hasn't been
// called. Safe for concurrent use with Setup.
func Get() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	Setup("INFO", "json")
	return logger.Load()
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithCommand returns a logger with the command_id and command fields set.
func WithCommand(id, command string) *slog.Logger {
	return Get().With(slog.String("command_id", id), slog.String("command", command))
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
