package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/pulso/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulso.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
pulso:
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
  capture:
    engine: "afpacket"
    snap_len: 128
    poll_timeout: "250ms"
    buffer_size_mb: 8
  privacy:
    anonymize: true
    secret: "from-file"
  report:
    format: "yaml"
    nats:
      enabled: true
      url: "nats://broker:4222"
      subject: "traffic.syn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("Unexpected metrics config: %+v", cfg.Metrics)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path, got %s", cfg.Metrics.Path)
	}
	if cfg.Capture.Engine != "afpacket" || cfg.Capture.SnapLen != 128 || cfg.Capture.BufferSizeMB != 8 {
		t.Errorf("Unexpected capture config: %+v", cfg.Capture)
	}
	if cfg.Capture.PollTimeout != 250*time.Millisecond {
		t.Errorf("Expected poll timeout 250ms, got %s", cfg.Capture.PollTimeout)
	}
	if cfg.Privacy.Secret != "from-file" {
		t.Errorf("Expected secret from file, got %q", cfg.Privacy.Secret)
	}
	if cfg.Report.Format != "yaml" || cfg.Report.NATS.Subject != "traffic.syn" {
		t.Errorf("Unexpected report config: %+v", cfg.Report)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Capture.Engine != "pcap" || cfg.Capture.SnapLen != 96 {
		t.Errorf("Unexpected capture defaults: %+v", cfg.Capture)
	}
	if cfg.Capture.PollTimeout != 100*time.Millisecond {
		t.Errorf("Expected poll timeout 100ms, got %s", cfg.Capture.PollTimeout)
	}
	if !cfg.Privacy.Anonymize {
		t.Error("Expected anonymization on by default")
	}
	if cfg.Report.Format != "text" || cfg.Report.NATS.Enabled {
		t.Errorf("Unexpected report defaults: %+v", cfg.Report)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics off by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PULSO_LOG_LEVEL", "warn")
	t.Setenv("PULSO_CAPTURE_SNAP_LEN", "200")
	t.Setenv(SecretEnv, "from-env")

	configPath := writeConfig(t, `
pulso:
  log:
    level: "debug"
  privacy:
    secret: "from-file"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env log level warn, got %s", cfg.Log.Level)
	}
	if cfg.Capture.SnapLen != 200 {
		t.Errorf("Expected env snap_len 200, got %d", cfg.Capture.SnapLen)
	}
	if cfg.Privacy.Secret != "from-env" {
		t.Errorf("Expected env secret, got %q", cfg.Privacy.Secret)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "pulso:\n  log:\n    level: verbose\n"},
		{"log format", "pulso:\n  log:\n    format: xml\n"},
		{"engine", "pulso:\n  capture:\n    engine: netmap\n"},
		{"snap len", "pulso:\n  capture:\n    snap_len: 10\n"},
		{"report format", "pulso:\n  report:\n    format: csv\n"},
		{"nats subject", "pulso:\n  report:\n    nats:\n      enabled: true\n      subject: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PULSO_DOTENV_PROBE=hello\n"), 0600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Setenv("PULSO_DOTENV_PROBE", "")
	os.Unsetenv("PULSO_DOTENV_PROBE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("PULSO_DOTENV_PROBE"); got != "hello" {
		t.Errorf("Expected hello, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("Missing .env should be ignored, got %v", err)
	}
}

func TestRunConfigValidate(t *testing.T) {
	if err := (RunConfig{}).Validate(); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid for empty run, got %v", err)
	}
	if err := (RunConfig{Device: "lo", TimeLimit: -time.Second}).Validate(); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid for negative limit, got %v", err)
	}
	if err := (RunConfig{Device: "lo", ConnectionLimit: 2}).Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := (RunConfig{File: "x.pcap"}).Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestRunConfigSource(t *testing.T) {
	if got := (RunConfig{Device: "eth0"}).Source(); got != "eth0" {
		t.Errorf("Expected eth0, got %s", got)
	}
	if got := (RunConfig{Device: "eth0", File: "a.pcap"}).Source(); got != "a.pcap" {
		t.Errorf("Expected a.pcap, got %s", got)
	}
}
