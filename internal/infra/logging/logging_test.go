//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"document-intelligence/internal/config"
)

func TestWithAttachesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, false, &buf)

	ctx := WithJobID(context.Background(), "job-1")
	ctx = WithDocumentID(ctx, "doc-9")
	ctx = WithTraceID(ctx, "trace-3")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if line["job_id"] != "job-1" || line["document_id"] != "doc-9" || line["trace_id"] != "trace-3" {
		t.Errorf("missing context ids in %v", line)
	}
	if _, ok := line["request_id"]; ok {
		t.Errorf("request_id should be absent when not set")
	}
	if TraceID(ctx) != "trace-3" || TraceID(context.Background()) != "" {
		t.Errorf("TraceID did not round-trip")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Level: "warn", Format: "json"}, false, &buf)
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %s", buf.String())
	}
	l.Warn().Msg("kept")
	if buf.Len() == 0 {
		t.Fatal("warn should be written")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("sk-1234567890", false); got != "sk-1...90" {
		t.Errorf("Redact = %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("Redact short = %q", got)
	}
	if got := Redact("sk-1234567890", true); got != "sk-1234567890" {
		t.Errorf("dev mode should not redact")
	}
}
