package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	NewComponentLogger(logger, "store").Debug("hello", "k", 1)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec[FieldComponent] != "store" || rec["msg"] != "hello" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "warn", "text")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unknown level should map to info")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("expected error for xml format")
	}
	NewNop().Error("nothing") // must not panic
}
