package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_TextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf))
	l.Info("hello", "key", "value")

	out := buf.String()
	for _, want := range []string{"hello", "key=value", "level=INFO"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf))
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug output to be filtered at info, got %q", buf.String())
	}

	l = New(WithOutput(&buf), WithLevel(slog.LevelWarn))
	l.Info("hidden")
	l.Warn("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("expected only the warning, got %q", out)
	}
}

func TestNew_JSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf), WithFormat(FormatJSON))
	l.Info("recorded", "name", "alice")

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if parsed["msg"] != "recorded" || parsed["name"] != "alice" {
		t.Errorf("unexpected record %v", parsed)
	}
}

func TestNew_PrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf), WithFormat(FormatPretty))
	l.Info("camera started")

	if !strings.Contains(buf.String(), "camera started") {
		t.Errorf("expected pretty output, got %q", buf.String())
	}
}

func TestFromFormat(t *testing.T) {
	var buf bytes.Buffer
	l := FromFormat("JSON", "debug", &buf)
	l.Debug("from format")

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("expected JSON line, got %q", buf.String())
	}
	if _, ok := parsed[slog.SourceKey]; !ok {
		t.Errorf("expected source at debug level, got %v", parsed)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	if l.Handler().Enabled(context.Background(), slog.LevelError) {
		t.Error("expected nop handler to be disabled for all levels")
	}
	l.With("key", "value").WithGroup("group").Info("msg")
}
