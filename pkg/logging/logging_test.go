package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.Info("hello", "key", "value")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["service"] != "travel-router" {
		t.Fatalf("expected service field, got %#v", record["service"])
	}
	if record["key"] != "value" {
		t.Fatalf("expected key=value, got %#v", record["key"])
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "error", "text")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info record to be filtered, got %q", buf.String())
	}
}

func TestSetLoggerIgnoresNil(t *testing.T) {
	custom := Discard()
	SetLogger(custom)
	SetLogger(nil)
	if Logger() != custom {
		t.Fatal("expected nil SetLogger to keep the previous logger")
	}
}
