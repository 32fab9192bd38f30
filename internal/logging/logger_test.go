package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("clone finished", "repo", "https://github.com/o/r.git", "objects", 1420)

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "clone finished" {
		t.Fatalf("msg = %v, want clone finished", record["msg"])
	}
	if record["repo"] != "https://github.com/o/r.git" {
		t.Fatalf("repo attr missing: %v", record)
	}
}

func TestLogger_AutoFallsBackToJSON(t *testing.T) {
	// A bytes.Buffer is not a terminal, so auto must produce JSON.
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "auto", Output: &buf})
	log.Info("probe")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("auto format on non-tty should be JSON, got: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Debug("noise")
	log.Info("noise")
	if buf.Len() != 0 {
		t.Fatalf("expected debug/info suppressed at warn level, got: %s", buf.String())
	}

	log.Warn("signal")
	if buf.Len() == 0 {
		t.Fatalf("expected warn record to be written")
	}
}

func TestLogger_RedactsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	token := "ghp_" + strings.Repeat("z", 36)
	log.Info("authenticating", "token", token)

	out := buf.String()
	if strings.Contains(out, token) {
		t.Fatalf("token leaked into log output: %s", out)
	}
	if !strings.Contains(out, "<REDACTED>") {
		t.Fatalf("expected redaction marker in output: %s", out)
	}
}

func TestLogger_RedactsRegisteredSecretInMessage(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Sanitizer().RegisterSecret("live-credential-material")
	log.Info("running git push with live-credential-material inline")

	if strings.Contains(buf.String(), "live-credential-material") {
		t.Fatalf("registered secret leaked: %s", buf.String())
	}
}

func TestLogger_DomainFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithTask("t-42").WithWorkspace("ws-7").WithOperation("clone").Info("started")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["task_id"] != "t-42" || record["workspace_id"] != "ws-7" || record["operation"] != "clone" {
		t.Fatalf("domain fields missing: %v", record)
	}
}

func TestLogger_NopDiscards(t *testing.T) {
	log := NewNop()
	log.Info("goes nowhere")
	if log.Sanitizer() == nil {
		t.Fatalf("nop logger should still carry a sanitizer")
	}
}

func TestPrettyHandler_NoColor(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, slog.LevelInfo, true)

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
	rec.AddAttrs(slog.String("key", "value"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Fatalf("noColor output contains ANSI sequences: %q", out)
	}
	if !strings.Contains(out, "INF") || !strings.Contains(out, "key=value") {
		t.Fatalf("unexpected pretty output: %q", out)
	}
}

func TestPrettyHandler_Color(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, slog.LevelInfo, false)

	rec := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(buf.String(), "\033[31m") {
		t.Fatalf("expected red level marker, got %q", buf.String())
	}
}
