// Package logger builds the slog loggers used by the attendance commands.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level  slog.Level
	format Format
	source bool
	out    io.Writer
}

// New returns a *slog.Logger configured by the given options. Without
// options it writes text records at Info level to stderr.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo, format: FormatText, out: os.Stderr}
	for _, opt := range opts {
		opt(c)
	}

	switch c.format {
	case FormatPretty:
		return slog.New(charmlog.NewWithOptions(c.out, charmlog.Options{
			ReportTimestamp: true,
			ReportCaller:    c.source,
			Level:           charmLevel(c.level),
		}))
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(c.out, &slog.HandlerOptions{Level: c.level, AddSource: c.source}))
	default:
		return slog.New(slog.NewTextHandler(c.out, &slog.HandlerOptions{Level: c.level, AddSource: c.source}))
	}
}

// FromFormat maps the LOG_FORMAT / LOG_LEVEL settings onto options.
// Debug logging also reports the caller.
func FromFormat(format, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	return New(
		WithOutput(w),
		WithLevel(lvl),
		WithFormat(Format(strings.ToLower(format))),
		WithSource(lvl <= slog.LevelDebug),
	)
}

// ParseLevel parses debug, info, warn or error. Anything else is Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

func charmLevel(l slog.Level) charmlog.Level {
	switch {
	case l <= slog.LevelDebug:
		return charmlog.DebugLevel
	case l >= slog.LevelError:
		return charmlog.ErrorLevel
	case l >= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.InfoLevel
	}
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
