package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  extra: true
providers:
  default: anthropic
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRejectsMultiDocument(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
---
providers:
  default: openai
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for multi-document config")
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: carrier-pigeon
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "providers.default") {
		t.Fatalf("expected providers.default error, got %v", err)
	}
}

func TestLoadValidatesFallbackChain(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
  fallback_chain: ["openai", "carrier-pigeon"]
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "fallback_chain") {
		t.Fatalf("expected fallback_chain error, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.ToolLoop.MaxIterations != 12 {
		t.Errorf("MaxIterations = %d, want 12", cfg.ToolLoop.MaxIterations)
	}
	if cfg.Sweep.Spec != "@every 1m" {
		t.Errorf("Sweep.Spec = %q, want @every 1m", cfg.Sweep.Spec)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.SQLitePath != "orchestrator.db" {
		t.Errorf("Database.SQLitePath = %q, want orchestrator.db", cfg.Database.SQLitePath)
	}
	if cfg.DevLog.RedactMode != "truncate" {
		t.Errorf("DevLog.RedactMode = %q, want truncate", cfg.DevLog.RedactMode)
	}
}

func TestLoadValidatesDatabaseDriver(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
database:
  driver: mongodb
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error for unknown database driver")
	}
}

func TestLoadPostgresDriverAppliesPoolDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
database:
  driver: postgres
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost", cfg.Database.Host)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("Database.MaxOpenConns = %d, want 25", cfg.Database.MaxOpenConns)
	}
}

func TestLoadClampsOutOfRangeToolLoopBudget(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
tool_loop:
  max_iterations: 0
  max_wall_clock: 0s
  max_tool_calls: 100000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ToolLoop.MaxIterations != minToolIterations {
		t.Errorf("MaxIterations = %d, want clamp to %d", cfg.ToolLoop.MaxIterations, minToolIterations)
	}
	if cfg.ToolLoop.MaxWallClock != minToolWallClock {
		t.Errorf("MaxWallClock = %v, want clamp to %v", cfg.ToolLoop.MaxWallClock, minToolWallClock)
	}
	if cfg.ToolLoop.MaxToolCalls != maxToolCalls {
		t.Errorf("MaxToolCalls = %d, want clamp to %d", cfg.ToolLoop.MaxToolCalls, maxToolCalls)
	}
}

func TestLoadClampsNegativeSamplingRate(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
observability:
  sampling_rate: -5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.SamplingRate != minSamplingRate {
		t.Errorf("SamplingRate = %v, want %v", cfg.Observability.SamplingRate, minSamplingRate)
	}
}

func TestLoadValidatesArchiveRequiresBucket(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
dev_log:
  archive:
    enabled: true
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}

func TestLoadEnvOverrideTakesPrecedenceOverFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 10.0.0.1
providers:
  default: anthropic
`)

	t.Setenv("ORCHESTRATOR_HOST", "192.168.0.1")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "192.168.0.1" {
		t.Errorf("Host = %q, want env override 192.168.0.1", cfg.Server.Host)
	}
}

func TestLoadEnvExpandsInFileBody(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
  anthropic:
    api_key: ${TEST_ANTHROPIC_KEY}
`)

	t.Setenv("TEST_ANTHROPIC_KEY", "sk-test-123")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q, want sk-test-123", cfg.Providers.Anthropic.APIKey)
	}
}

func TestLoadHudTokenExpiryClamp(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
ws_hub:
  hud_token_expiry: 1h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WSHub.HudTokenExpiry != maxHudTokenExpiry {
		t.Errorf("HudTokenExpiry = %v, want clamp to %v", cfg.WSHub.HudTokenExpiry, maxHudTokenExpiry)
	}
	if cfg.WSHub.HudTokenExpiry != 10*time.Minute {
		t.Errorf("HudTokenExpiry = %v, want 10m", cfg.WSHub.HudTokenExpiry)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
