package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Trust.ConsistencyWeight != 0.5 {
		t.Errorf("expected default consistency weight 0.5, got %f", cfg.Trust.ConsistencyWeight)
	}
	if cfg.PriceFeed.FetchWorkers != 8 {
		t.Errorf("expected default fetch workers 8, got %d", cfg.PriceFeed.FetchWorkers)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	content := `
[server]
addr = ":9090"
read_timeout = "15s"

[trust]
consistency_weight = 0.6
decay_horizon = "168h"

[price_feed]
fetch_workers = 4
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr: expected :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout.Duration != 15*time.Second {
		t.Errorf("read timeout: expected 15s, got %s", cfg.Server.ReadTimeout.Duration)
	}
	if cfg.Trust.ConsistencyWeight != 0.6 {
		t.Errorf("consistency weight: expected 0.6, got %f", cfg.Trust.ConsistencyWeight)
	}
	if cfg.Trust.DecayHorizon.Duration != 7*24*time.Hour {
		t.Errorf("decay horizon: expected 168h, got %s", cfg.Trust.DecayHorizon.Duration)
	}
	if cfg.PriceFeed.FetchWorkers != 4 {
		t.Errorf("fetch workers: expected 4, got %d", cfg.PriceFeed.FetchWorkers)
	}

	// Untouched keys keep their defaults.
	if cfg.Server.WriteTimeout.Duration != 10*time.Second {
		t.Errorf("write timeout: expected default 10s, got %s", cfg.Server.WriteTimeout.Duration)
	}
	if cfg.Trust.PerformanceClampPct != 100 {
		t.Errorf("clamp: expected default 100, got %f", cfg.Trust.PerformanceClampPct)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.toml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server]\nread_timeout = \"soon\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
