package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerAttachesServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{ServiceName: "pulse", Environment: "test", Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "device_id", "dev-1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected exactly one line at warn level, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "pulse" || entry["env"] != "test" || entry["device_id"] != "dev-1" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}
