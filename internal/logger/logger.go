// Package logger is the structured logging layer every pocketlm component
// receives. It is a thin interface over log/slog so tests can pass Discard
// and the CLI can pick a format at startup.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// ComponentKey is the attribute Component sets. The pretty handler prints it
// as a bracketed prefix.
const ComponentKey = "component"

// slogLogger gets Debug, Info, Warn and Error from the embedded logger.
type slogLogger struct {
	*slog.Logger
}

func (l slogLogger) With(args ...any) Logger {
	return slogLogger{l.Logger.With(args...)}
}

func (l slogLogger) WithGroup(name string) Logger {
	return slogLogger{l.Logger.WithGroup(name)}
}

// New wraps handler.
func New(handler slog.Handler) Logger {
	return slogLogger{slog.New(handler)}
}

// Default logs pretty lines at info to stderr.
func Default() Logger {
	return Pretty(os.Stderr, slog.LevelInfo)
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

// JSON logs one object per line with source locations, for log shippers.
func JSON(w io.Writer, level slog.Leveler) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: level}))
}

func Pretty(w io.Writer, level slog.Leveler) Logger {
	return New(NewPrettyHandler(w, level))
}

// ForFormat builds a Logger for a configured format name: "json", "text" or
// "pretty". Unknown names fall back to pretty.
func ForFormat(w io.Writer, format string, level slog.Leveler) Logger {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return JSON(w, level)
	case "text":
		return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	default:
		return Pretty(w, level)
	}
}

// Component returns parent tagged with name. A nil parent yields a discard
// logger so constructors can accept nil.
func Component(parent Logger, name string) Logger {
	if parent == nil {
		parent = Discard()
	}
	return parent.With(ComponentKey, name)
}

type ctxKey struct{}

// FromContext returns the logger stored by WithContext, or Default.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
			return l
		}
	}
	return Default()
}

func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// ParseLevel accepts slog level names in any case, plus "warning". Anything
// else, including the empty string, is info.
func ParseLevel(name string) slog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}
