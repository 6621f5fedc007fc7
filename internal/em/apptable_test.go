package em

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ecucore/coreem/internal/testutil/testlog"
)

func TestLoadAppTableParsesKnownEntries(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.json")
	body := `{"apps": [
		{"client_id": "0x1", "app_id": "provider"},
		{"client_id": 2, "app_id": "client"},
		{"client_id": "0x3", "app_id": "not_in_manifests"}
	]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write app table: %v", err)
	}

	known := map[string]bool{"provider": true, "client": true}
	table, err := LoadAppTable(path, known)
	if err != nil {
		t.Fatalf("load app table: %v", err)
	}
	if table[1] != "provider" || table[2] != "client" {
		t.Fatalf("unexpected table: %v", table)
	}
	if _, ok := table[3]; ok {
		t.Fatalf("expected entry for an app outside known manifests to be dropped")
	}
}

func TestLoadAppTableMissingFileYieldsEmptyMap(t *testing.T) {
	testlog.Start(t)
	table, err := LoadAppTable(filepath.Join(t.TempDir(), "missing.json"), map[string]bool{})
	if err != nil {
		t.Fatalf("expected missing app table to be non-fatal, got %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("expected empty table, got %v", table)
	}
}

func TestLoadAppTableEmptyPathYieldsEmptyMap(t *testing.T) {
	testlog.Start(t)
	table, err := LoadAppTable("", map[string]bool{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("expected empty table, got %v", table)
	}
}
