package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("ingestion complete", "chunks", 7)

	out := buf.String()
	if !strings.Contains(out, "ingestion complete") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, "chunks=7") {
		t.Errorf("expected attribute in output, got: %s", out)
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("hello")

	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Errorf("expected JSON output, got: %s", out)
	}
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("expected msg field, got: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("dropped")
	logger.Info("also dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected debug/info to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected warn to pass, got: %s", out)
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	// Must not panic and must not write anywhere observable.
	logger.Error("discarded", "key", "value")
}
