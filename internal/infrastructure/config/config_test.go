package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.BindAddr != "0.0.0.0:0" {
		t.Fatalf("bind default: %q", cfg.BindAddr)
	}
	if cfg.LogLevel != "info" || cfg.IdleTimeoutMs != 5000 || cfg.MaxDatagramSize != 1350 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReportPath != "-" {
		t.Fatalf("report default should be stdout, got %q", cfg.ReportPath)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CONNECT_TO", "example.org:4433")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("IDLE_TIMEOUT_MS", "250")
	t.Setenv("MAX_DATAGRAM_SIZE", "not-a-number")

	cfg := FromEnv()
	if cfg.ConnectTo != "example.org:4433" || cfg.LogLevel != "debug" || cfg.IdleTimeoutMs != 250 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.MaxDatagramSize != 1350 {
		t.Fatalf("unparsable int should fall back to the default, got %d", cfg.MaxDatagramSize)
	}
}

func TestApplyFileOverlaysOnlyDefinedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "connect_to = \" example.org:4433 \"\nidle_timeout_ms = 750\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := FromEnv()
	cfg.LogLevel = "warn"
	got, err := ApplyFile(cfg, path)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.ConnectTo != "example.org:4433" {
		t.Fatalf("connect_to should be overlaid and trimmed, got %q", got.ConnectTo)
	}
	if got.IdleTimeoutMs != 750 {
		t.Fatalf("idle_timeout_ms: %d", got.IdleTimeoutMs)
	}
	if got.LogLevel != "warn" || got.MaxDatagramSize != 1350 {
		t.Fatalf("absent keys must keep prior values: %+v", got)
	}
}

func TestApplyFileMissingFile(t *testing.T) {
	if _, err := ApplyFile(FromEnv(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("missing file should error")
	}
}
