package logger

import (
	"io"
	"log/slog"
)

// Format selects the handler New installs.
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty" // charmbracelet/log, for an operator console
)

// Option configures New.
type Option func(*config)

// WithLevel sets the minimum level logged. Info by default.
func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithFormat picks the output format. Unknown formats fall back to text.
func WithFormat(f Format) Option {
	return func(c *config) { c.format = f }
}

// WithOutput sends log lines to w instead of stderr. nil is ignored.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.out = w
		}
	}
}

// WithSource adds the calling file and line to every record.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}
