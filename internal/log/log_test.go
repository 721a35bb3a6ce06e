package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})

	logger.Debug("chunking document", "document_id", "doc-1")

	out := buf.String()
	if !strings.Contains(out, "chunking document") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "document_id=doc-1") {
		t.Errorf("output missing attribute: %q", out)
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("indexed", "chunks", 42)

	out := buf.String()
	if !strings.Contains(out, `"msg":"indexed"`) {
		t.Errorf("output not JSON formatted: %q", out)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Debug("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("debug output not filtered: %q", buf.String())
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("goes nowhere")
}
