package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWithWriter_level_filtering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info("dropped")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn line missing")
	}
}

func TestNewWithWriter_text_format(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "text")

	log.Info("hello", "key", "value")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("expected text output, got %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("missing attribute in %q", out)
	}
}

func TestParseLevel_default(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "nonsense", "json")

	log.Debug("dropped")
	log.Info("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Errorf("unknown level should default to info, got %q", out)
	}
}
