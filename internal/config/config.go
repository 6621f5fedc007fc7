// Package config loads the Execution Manager's own runtime configuration
// — the process knobs (manifest directory, shutdown grace period,
// supervision tick rate, restart backoff) — as distinct from the per-app
// JSON manifests and persistency manifest the EM reads at boot per
// spec.md §6. Shaped after the teacher's loadServiceConfig overlay
// pattern (cmd/ghostctl/config.go): decode into a raw string/pointer
// struct, then overlay only the fields the file actually set onto
// DefaultEMConfig, parsing durations with time.ParseDuration by hand
// since TOML has no native duration type.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EMConfig configures the Execution Manager process itself.
type EMConfig struct {
	ManifestDir           string
	PersistencyManifest    string
	AppTablePath           string
	SupervisionTick        time.Duration
	ShutdownGrace          time.Duration
	ShutdownPoll           time.Duration
	MaxRestarts            int
	RestartBackoffInitial  time.Duration
	RestartBackoffMax      time.Duration
}

// DefaultEMConfig returns the contract-aligned defaults from spec.md §4.H
// and §5 (100ms tick, ~2s shutdown grace polled at 100ms, 3 max restarts).
func DefaultEMConfig() EMConfig {
	return EMConfig{
		ManifestDir:           "manifests",
		PersistencyManifest:   "persistency.json",
		AppTablePath:          "",
		SupervisionTick:       100 * time.Millisecond,
		ShutdownGrace:         2 * time.Second,
		ShutdownPoll:          100 * time.Millisecond,
		MaxRestarts:           3,
		RestartBackoffInitial: 200 * time.Millisecond,
		RestartBackoffMax:     5 * time.Second,
	}
}

// fileEMConfig is the on-disk shape of em.toml. Pointer/string fields let
// LoadEMConfig tell "absent" apart from "explicitly zero".
type fileEMConfig struct {
	ManifestDir           string `toml:"manifest_dir"`
	PersistencyManifest   string `toml:"persistency_manifest"`
	AppTablePath          string `toml:"app_table_path"`
	SupervisionTick       string `toml:"supervision_tick"`
	ShutdownGrace         string `toml:"shutdown_grace"`
	ShutdownPoll          string `toml:"shutdown_poll"`
	MaxRestarts           *int   `toml:"max_restarts"`
	RestartBackoffInitial string `toml:"restart_backoff_initial"`
	RestartBackoffMax     string `toml:"restart_backoff_max"`
}

// LoadEMConfig reads an optional em.toml file and overlays it onto
// DefaultEMConfig. A missing file is not an error: the defaults stand.
func LoadEMConfig(path string) (EMConfig, error) {
	cfg := DefaultEMConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return EMConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	var raw fileEMConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return EMConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if v := strings.TrimSpace(raw.ManifestDir); v != "" {
		cfg.ManifestDir = v
	}
	if v := strings.TrimSpace(raw.PersistencyManifest); v != "" {
		cfg.PersistencyManifest = v
	}
	if v := strings.TrimSpace(raw.AppTablePath); v != "" {
		cfg.AppTablePath = v
	}
	if raw.MaxRestarts != nil {
		cfg.MaxRestarts = *raw.MaxRestarts
	}
	if err := overlayDuration(&cfg.SupervisionTick, raw.SupervisionTick, "supervision_tick"); err != nil {
		return EMConfig{}, err
	}
	if err := overlayDuration(&cfg.ShutdownGrace, raw.ShutdownGrace, "shutdown_grace"); err != nil {
		return EMConfig{}, err
	}
	if err := overlayDuration(&cfg.ShutdownPoll, raw.ShutdownPoll, "shutdown_poll"); err != nil {
		return EMConfig{}, err
	}
	if err := overlayDuration(&cfg.RestartBackoffInitial, raw.RestartBackoffInitial, "restart_backoff_initial"); err != nil {
		return EMConfig{}, err
	}
	if err := overlayDuration(&cfg.RestartBackoffMax, raw.RestartBackoffMax, "restart_backoff_max"); err != nil {
		return EMConfig{}, err
	}

	if err := ValidateEMConfig(cfg); err != nil {
		return EMConfig{}, err
	}
	return cfg, nil
}

func overlayDuration(dst *time.Duration, raw, field string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	*dst = d
	return nil
}

// ValidateEMConfig enforces the process-level invariants: a manifest
// directory, positive tick, grace and poll durations, a non-negative
// restart cap. The restart backoff durations are not checked.
func ValidateEMConfig(cfg EMConfig) error {
	if strings.TrimSpace(cfg.ManifestDir) == "" {
		return fmt.Errorf("em config missing manifest_dir")
	}
	if cfg.SupervisionTick <= 0 {
		return fmt.Errorf("em config supervision_tick must be positive")
	}
	if cfg.ShutdownGrace <= 0 {
		return fmt.Errorf("em config shutdown_grace must be positive")
	}
	if cfg.ShutdownPoll <= 0 {
		return fmt.Errorf("em config shutdown_poll must be positive")
	}
	if cfg.MaxRestarts < 0 {
		return fmt.Errorf("em config max_restarts must be non-negative")
	}
	return nil
}
