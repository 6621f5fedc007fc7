package em

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ecucore/coreem/internal/testutil/testlog"
)

func writeManifestFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestLoadManifestsAppliesDefaultsAndHex(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	writeManifestFile(t, dir, "provider.json", `{
		"app_id": "provider",
		"executable": "/bin/provider",
		"start_on_boot": true,
		"phm": {"required_checkpoints": ["alive", "0x1001", 1002]},
		"com.someip": {"service_id": "0x1234", "instance_id": 1, "subscribe": ["0x8001", 32770]}
	}`)

	apps, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("load manifests: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("expected 1 app, got %d", len(apps))
	}
	app := apps[0]
	if app.AppID != "provider" || !app.StartOnBoot {
		t.Fatalf("unexpected app: %+v", app)
	}
	if app.RestartPolicy != RestartNever {
		t.Fatalf("expected default restart policy never, got %v", app.RestartPolicy)
	}
	if app.PHM == nil || app.PHM.PeriodMS != defaultPeriodMS || app.PHM.AllowedMissedCycles != defaultAllowedMissedCycles {
		t.Fatalf("expected phm defaults to apply, got %+v", app.PHM)
	}
	if !app.PHM.RequireAlive {
		t.Fatalf("expected literal \"alive\" entry to set RequireAlive")
	}
	if len(app.PHM.RequiredCheckpoints) != 2 || app.PHM.RequiredCheckpoints[0] != 0x1001 || app.PHM.RequiredCheckpoints[1] != 1002 {
		t.Fatalf("unexpected required checkpoints: %v", app.PHM.RequiredCheckpoints)
	}
	if app.Com == nil || app.Com.ServiceID != 0x1234 || app.Com.InstanceID != 1 {
		t.Fatalf("unexpected com config: %+v", app.Com)
	}
	if app.Com.EventGroup != defaultEventGroup {
		t.Fatalf("expected default event group, got 0x%04x", app.Com.EventGroup)
	}
	if len(app.Com.Subscribe) != 2 || app.Com.Subscribe[0] != 0x8001 || app.Com.Subscribe[1] != 32770 {
		t.Fatalf("unexpected subscribe list: %v", app.Com.Subscribe)
	}
}

func TestLoadManifestsSkipsUnparseableCheckpointEntry(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	writeManifestFile(t, dir, "app.json", `{
		"app_id": "radar",
		"executable": "/bin/radar",
		"phm": {"required_checkpoints": ["garbage", "0x1001"]}
	}`)

	apps, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("load manifests: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("expected 1 app, got %d", len(apps))
	}
	app := apps[0]
	if app.PHM.RequireAlive {
		t.Fatalf("unrelated unparseable entry must not set RequireAlive")
	}
	if len(app.PHM.RequiredCheckpoints) != 1 || app.PHM.RequiredCheckpoints[0] != 0x1001 {
		t.Fatalf("expected the unparseable entry to be skipped and the rest kept, got %v", app.PHM.RequiredCheckpoints)
	}
}

func TestLoadManifestsSkipsEntryMissingRequiredFields(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	writeManifestFile(t, dir, "bad.json", `{"app_id": "incomplete"}`)
	writeManifestFile(t, dir, "good.json", `{"app_id": "complete", "executable": "/bin/complete"}`)

	apps, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("load manifests: %v", err)
	}
	if len(apps) != 1 || apps[0].AppID != "complete" {
		t.Fatalf("expected only the complete manifest to load, got %+v", apps)
	}
}

func TestLoadManifestsSkipsMalformedJSON(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	writeManifestFile(t, dir, "broken.json", `{not json`)
	writeManifestFile(t, dir, "good.json", `{"app_id": "complete", "executable": "/bin/complete"}`)

	apps, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("load manifests: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("expected malformed manifest to be skipped, got %+v", apps)
	}
}

func TestLoadManifestsRestartOnFailure(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	writeManifestFile(t, dir, "app.json", `{"app_id": "a", "executable": "/bin/a", "restart_policy": "on-failure"}`)

	apps, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("load manifests: %v", err)
	}
	if len(apps) != 1 || apps[0].RestartPolicy != RestartOnFailure {
		t.Fatalf("expected restart_policy on-failure to be honored, got %+v", apps)
	}
}
