package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Theme != "solarized-dark" {
		t.Errorf("expected default theme 'solarized-dark', got %q", cfg.Theme)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("expected read timeout 5s, got %v", cfg.ReadTimeout)
	}
	if cfg.QueueCapacity != 10000 {
		t.Errorf("expected queue capacity 10000, got %d", cfg.QueueCapacity)
	}
	if cfg.Heartbeat.IntervalMs != 1000 {
		t.Errorf("expected heartbeat interval 1000ms, got %d", cfg.Heartbeat.IntervalMs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.toml")

	cfg := DefaultConfig()
	cfg.Theme = "dracula"
	cfg.ReadTimeout = 750 * time.Millisecond
	cfg.Storage.Enabled = true
	cfg.Storage.Path = filepath.Join(tmp, "samples.db")
	cfg.HTTP.Listen = "127.0.0.1:9090"
	cfg.Heartbeat.ThresholdMs = 3000

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.Theme != "dracula" {
		t.Errorf("expected theme 'dracula', got %q", loaded.Theme)
	}
	if loaded.ReadTimeout != 750*time.Millisecond {
		t.Errorf("expected read timeout 750ms, got %v", loaded.ReadTimeout)
	}
	if !loaded.Storage.Enabled || loaded.Storage.Path != cfg.Storage.Path {
		t.Errorf("expected storage settings to round trip, got %+v", loaded.Storage)
	}
	if loaded.HTTP.Listen != "127.0.0.1:9090" {
		t.Errorf("expected listen '127.0.0.1:9090', got %q", loaded.HTTP.Listen)
	}
	if loaded.Heartbeat.ThresholdMs != 3000 {
		t.Errorf("expected heartbeat threshold 3000, got %d", loaded.Heartbeat.ThresholdMs)
	}
}

func TestConfigLoadMissing(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("LoadConfig() should return defaults for missing file, got error: %v", err)
	}
	if cfg.Theme != "solarized-dark" {
		t.Errorf("expected default theme, got %q", cfg.Theme)
	}
	if cfg.Resource.Interval != 2*time.Second {
		t.Errorf("expected resource interval 2s, got %v", cfg.Resource.Interval)
	}
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("FIELDSCAN_QUEUE_CAPACITY", "42")
	t.Setenv("FIELDSCAN_HTTP_LISTEN", ":9999")
	t.Setenv("FIELDSCAN_HEARTBEAT_INTERVAL_MS", "500")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.QueueCapacity != 42 {
		t.Errorf("expected queue capacity 42, got %d", cfg.QueueCapacity)
	}
	if cfg.HTTP.Listen != ":9999" {
		t.Errorf("expected listen ':9999', got %q", cfg.HTTP.Listen)
	}
	if cfg.Heartbeat.IntervalMs != 500 {
		t.Errorf("expected heartbeat interval 500, got %d", cfg.Heartbeat.IntervalMs)
	}
}

func TestConfigBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("read_timeout = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unparseable read_timeout")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 0
	cfg.Heartbeat.MaxWarnings = 5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}

	cfg = DefaultConfig()
	cfg.Heartbeat.Enabled = false
	cfg.Heartbeat.MaxWarnings = 5
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected disabled heartbeat to skip validation, got %v", err)
	}
}
