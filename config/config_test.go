package config

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Provider != ProviderRealtime {
		t.Fatalf("expected REALTIME default, got %s", cfg.Provider)
	}
}

func TestNewRejectsManualWithoutIP(t *testing.T) {
	if _, err := New(WithProvider(ProviderManual)); err == nil {
		t.Fatalf("expected error for MANUAL provider without ip_address")
	}
}

func TestNewAcceptsManualWithIP(t *testing.T) {
	cfg, err := New(WithProvider(ProviderManual), WithIPAddress("10.0.0.5:8080"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IPAddress != "10.0.0.5:8080" {
		t.Fatalf("ip address not applied: %+v", cfg)
	}
}

func TestNewRejectsMalformedReplayDate(t *testing.T) {
	if _, err := New(WithReplay("08/03/2026", false, false)); err == nil {
		t.Fatalf("expected error for malformed replay date")
	}
}

func TestNewAcceptsValidReplayDate(t *testing.T) {
	cfg, err := New(WithReplay("2026-08-03", true, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.ReplayAsIfLive || !cfg.ReplayDeleteFileWhenDone {
		t.Fatalf("replay flags not applied: %+v", cfg)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if got := AppEnvironment(); got != EnvironmentProduction {
		t.Fatalf("expected production alias, got %s", got)
	}
}
