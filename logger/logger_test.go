package logger

import (
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestWarnAndErrorAreCounted(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("session_test_metric")
	entry.Warn("simulated warning")
	entry.Error("simulated error")

	if got := *counterFor(warnCounts, "session_test_metric"); got != 1 {
		t.Fatalf("expected 1 recorded warn, got %d", got)
	}
	if got := *counterFor(errorCounts, "session_test_metric"); got != 1 {
		t.Fatalf("expected 1 recorded error, got %d", got)
	}
}
