package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud", Encoding: "json"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewBuildsLogger(t *testing.T) {
	log, err := New(Config{Level: "info", Encoding: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("hello", "key", "value")
}

func TestFromZapWritesKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "admission")

	log.Warn("limit reached", "event_id", int64(7))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "limit reached" {
		t.Fatalf("message = %q, want %q", entry.Message, "limit reached")
	}
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("level = %s, want warn", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["component"] != "admission" {
		t.Fatalf("component = %v, want admission", fields["component"])
	}
	if fields["event_id"] != int64(7) {
		t.Fatalf("event_id = %v, want 7", fields["event_id"])
	}
}
