package persistency

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecucore/coreem/internal/result"
	"github.com/ecucore/coreem/internal/testutil/testlog"
)

func writeManifest(t *testing.T, dir string, body map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, "persistency.json")
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestRegistryInitFromFileMissing(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	res := reg.InitFromFile(filepath.Join(t.TempDir(), "nope.json"))
	if res.IsOk() {
		t.Fatalf("expected failure for missing manifest")
	}
	if res.Code() != result.NotFound {
		t.Fatalf("expected NotFound, got %v", res.Code())
	}
	if reg.IsInitialized() {
		t.Fatalf("registry must not be initialized after failed load")
	}
}

func TestRegistryInitFromFileCorrupt(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "persistency.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	reg := NewRegistry()
	res := reg.InitFromFile(path)
	if res.Code() != result.Corruption {
		t.Fatalf("expected Corruption, got %v", res.Code())
	}
	if reg.IsInitialized() {
		t.Fatalf("registry must not be initialized after corrupt load")
	}
	if _, ok := reg.Lookup("anything"); ok {
		t.Fatalf("expected empty map after corrupt load")
	}
}

func TestRegistryInitFromFileAndLookup(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	kvBase := filepath.Join(dir, "kv-store")
	filesBase := filepath.Join(dir, "file-store")

	path := writeManifest(t, dir, map[string]any{
		"storages": []map[string]any{
			{"instance_spec": "EM/KV/Settings", "type": "kv", "base_path": kvBase, "quota_bytes": 4096},
			{"instance_spec": "EM/Files/Logs", "type": "files", "base_path": filesBase},
		},
	})

	reg := NewRegistry()
	res := reg.InitFromFile(path)
	if !res.IsOk() {
		t.Fatalf("init failed: %v", res.Err())
	}
	if !reg.IsInitialized() {
		t.Fatalf("expected registry to be initialized")
	}

	if _, err := os.Stat(kvBase); err != nil {
		t.Fatalf("expected kv base path to be created: %v", err)
	}

	cfg, ok := reg.Lookup("EM/KV/Settings")
	if !ok {
		t.Fatalf("expected lookup to find EM/KV/Settings")
	}
	if cfg.Type != KV || cfg.QuotaBytes != 4096 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	cfg, ok = reg.Lookup("EM/Files/Logs")
	if !ok {
		t.Fatalf("expected lookup to find EM/Files/Logs")
	}
	if cfg.Type != Files || cfg.QuotaBytes != unboundedQuota {
		t.Fatalf("unexpected default quota: %+v", cfg)
	}

	if _, ok := reg.Lookup("missing"); ok {
		t.Fatalf("expected absent entry to miss")
	}
}

func TestRegistryClear(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := writeManifest(t, dir, map[string]any{
		"storages": []map[string]any{
			{"instance_spec": "EM/KV/Settings", "type": "kv", "base_path": filepath.Join(dir, "kv")},
		},
	})

	reg := NewRegistry()
	if res := reg.InitFromFile(path); !res.IsOk() {
		t.Fatalf("init failed: %v", res.Err())
	}

	reg.Clear()
	if reg.IsInitialized() {
		t.Fatalf("expected Clear to reset is_initialized")
	}
	if _, ok := reg.Lookup("EM/KV/Settings"); ok {
		t.Fatalf("expected Clear to empty the map")
	}
}
