package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEMConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadEMConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := DefaultEMConfig()
	if cfg != want {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadEMConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "em.toml")
	content := `
manifest_dir = "/etc/em/manifests"
max_restarts = 5
shutdown_grace = "3s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadEMConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ManifestDir != "/etc/em/manifests" {
		t.Fatalf("unexpected manifest dir: %q", cfg.ManifestDir)
	}
	if cfg.MaxRestarts != 5 {
		t.Fatalf("unexpected max restarts: %d", cfg.MaxRestarts)
	}
	if cfg.ShutdownGrace != 3*time.Second {
		t.Fatalf("unexpected shutdown grace: %v", cfg.ShutdownGrace)
	}
	if cfg.SupervisionTick != DefaultEMConfig().SupervisionTick {
		t.Fatalf("expected default supervision tick to survive partial override")
	}
}

func TestLoadEMConfigBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "em.toml")
	if err := os.WriteFile(path, []byte(`supervision_tick = "abc"`+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadEMConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateEMConfigRejectsNonPositiveTick(t *testing.T) {
	cfg := DefaultEMConfig()
	cfg.SupervisionTick = 0
	if err := ValidateEMConfig(cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}
