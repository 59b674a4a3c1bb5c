package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerFormatsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json").With("app", "test")
	logger.Info("dropped")
	logger.Warn("kept", "expense_id", "e-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["msg"] != "kept" || rec["app"] != "test" || rec["expense_id"] != "e-1" {
		t.Fatalf("unexpected record %v", rec)
	}

	buf.Reset()
	newLogger(&buf, "bogus", "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text record at info level, got %q", buf.String())
	}
}
