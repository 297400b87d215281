package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text")

	Info("session registered", "identity", "abcd1234")

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("expected level marker, got %q", out)
	}
	if !strings.Contains(out, "session registered") {
		t.Errorf("expected message, got %q", out)
	}
	if !strings.Contains(out, "identity=abcd1234") {
		t.Errorf("expected attribute, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("not visible")
	Info("not visible either")
	Warn("visible")

	out := buf.String()
	if strings.Contains(out, "not visible") {
		t.Errorf("low-level records leaked: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("message routed", "path", "live")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "message routed" {
		t.Errorf("unexpected msg field: %v", record["msg"])
	}
	if record["path"] != "live" {
		t.Errorf("unexpected path field: %v", record["path"])
	}
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")
	SetLevel("LOUD")

	Info("still logs")
	if !strings.Contains(buf.String(), "still logs") {
		t.Error("valid level lost after invalid SetLevel")
	}
}
