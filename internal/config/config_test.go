package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Scan.Chains != 25 {
		t.Fatalf("expected 25 chains, got %d", cfg.Scan.Chains)
	}
	if cfg.Scan.PingTimeout != 200*time.Millisecond {
		t.Fatalf("expected 200ms ping timeout, got %s", cfg.Scan.PingTimeout)
	}
	if cfg.Scan.Window != 3*time.Second {
		t.Fatalf("expected 3s window, got %s", cfg.Scan.Window)
	}
	if cfg.WOL.DefaultPort != 9 {
		t.Fatalf("expected wol port 9, got %d", cfg.WOL.DefaultPort)
	}
	if cfg.DefaultGroup != "Bookmarked" {
		t.Fatalf("expected default group Bookmarked, got %q", cfg.DefaultGroup)
	}
	if cfg.DBPath != filepath.Join(cfg.DataDir, "lanwake.db") {
		t.Fatalf("expected db inside data dir, got %s", cfg.DBPath)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LANWAKE_SCAN_WINDOW", "5s")
	t.Setenv("LANWAKE_SCAN_CHAINS", "10")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Scan.Window != 5*time.Second {
		t.Fatalf("expected 5s window from env, got %s", cfg.Scan.Window)
	}
	if cfg.Scan.Chains != 10 {
		t.Fatalf("expected 10 chains from env, got %d", cfg.Scan.Chains)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.DBPath = filepath.Join(dir, "custom.db")
	cfg.Scan.Grace = 1500 * time.Millisecond
	cfg.WOL.DefaultPort = 7

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Scan.Grace != 1500*time.Millisecond {
		t.Fatalf("expected grace 1.5s, got %s", loaded.Scan.Grace)
	}
	if loaded.WOL.DefaultPort != 7 {
		t.Fatalf("expected port 7, got %d", loaded.WOL.DefaultPort)
	}
	if loaded.DBPath != filepath.Join(dir, "custom.db") {
		t.Fatalf("expected explicit db path preserved, got %s", loaded.DBPath)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"blank group", func(c *Config) { c.DefaultGroup = "  " }},
		{"port out of range", func(c *Config) { c.WOL.DefaultPort = 70000 }},
		{"no chains", func(c *Config) { c.Scan.Chains = 0 }},
		{"negative window", func(c *Config) { c.Scan.Window = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSaveCreatesPrivateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}
