package infra

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "json", "warn")
	log.Info("hidden")
	log.Warn("shown", "order_id", "o1")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"order_id":"o1"`) {
		t.Fatalf("expected json output, got %s", out)
	}

	buf.Reset()
	NewLogger(&buf, "text", "bogus").Info("plain")
	if !strings.Contains(buf.String(), "msg=plain") {
		t.Fatalf("expected text output, got %s", buf.String())
	}
	if !NewLogger(&buf, "", "debug").Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug level not applied")
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing("", "fooddash-api")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
