package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Writer: &buf})
	logger.Info("hello", "key", "value")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["key"] != "value" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Writer: &buf, Format: "text"})
	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buf})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn should pass at warn level")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-42")
	id, ok := RequestIDFromContext(ctx)
	if !ok || id != "req-42" {
		t.Fatalf("RequestIDFromContext = %q, %v", id, ok)
	}
	if _, ok := RequestIDFromContext(context.Background()); ok {
		t.Fatal("empty context should not hold a request id")
	}
	ctx = ContextWithRequestID(context.Background(), "   ")
	if _, ok := RequestIDFromContext(ctx); ok {
		t.Fatal("blank request id should be ignored")
	}
}

func TestWithContextAnnotates(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})
	ctx := ContextWithRequestID(context.Background(), "req-7")
	WithContext(ctx, logger).Info("annotated")
	if !strings.Contains(buf.String(), "req-7") {
		t.Fatalf("expected request id in output: %q", buf.String())
	}
}
