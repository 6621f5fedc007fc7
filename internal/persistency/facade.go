package persistency

import (
	"os"
	"path/filepath"

	"github.com/ecucore/coreem/internal/result"
)

// OpenKeyValueStorage consults the registry for spec and, if its type
// is KV, constructs a backend over its configured base path and quota.
// Fails Unknown if the registry is uninitialized, NotFound if the spec
// is absent or configured as a different storage type.
func OpenKeyValueStorage(reg *Registry, spec string) result.Result[*KeyValueStorage] {
	if !reg.IsInitialized() {
		return result.Failf[*KeyValueStorage](result.Unknown, "kv", spec, nil)
	}
	cfg, ok := reg.Lookup(spec)
	if !ok || cfg.Type != KV {
		return result.Failf[*KeyValueStorage](result.NotFound, "kv", spec, nil)
	}
	kv, err := NewKeyValueStorage(spec, cfg.BasePath, cfg.QuotaBytes)
	if err != nil {
		return result.Failf[*KeyValueStorage](result.Unknown, "kv", spec, err)
	}
	return result.Ok(kv)
}

// OpenFileStorage consults the registry for spec and, if its type is
// Files, constructs a backend over its configured base path and quota.
func OpenFileStorage(reg *Registry, spec string) result.Result[*FileStorage] {
	if !reg.IsInitialized() {
		return result.Failf[*FileStorage](result.Unknown, "files", spec, nil)
	}
	cfg, ok := reg.Lookup(spec)
	if !ok || cfg.Type != Files {
		return result.Failf[*FileStorage](result.NotFound, "files", spec, nil)
	}
	fstore, err := NewFileStorage(spec, cfg.BasePath, cfg.QuotaBytes)
	if err != nil {
		return result.Failf[*FileStorage](result.Unknown, "files", spec, err)
	}
	return result.Ok(fstore)
}

// ResetKeyValueStorage deletes every entry under spec's configured base
// path, leaving the directory itself in place.
func ResetKeyValueStorage(reg *Registry, spec string) result.Void {
	if !reg.IsInitialized() {
		return result.FailVoid(result.Unknown, "kv", spec, nil)
	}
	cfg, ok := reg.Lookup(spec)
	if !ok || cfg.Type != KV {
		return result.FailVoid(result.NotFound, "kv", spec, nil)
	}
	return clearDir(cfg.BasePath, "kv", spec)
}

// ResetFileStorage deletes every file and subdirectory under spec's
// configured base path, leaving the base directory itself in place.
func ResetFileStorage(reg *Registry, spec string) result.Void {
	if !reg.IsInitialized() {
		return result.FailVoid(result.Unknown, "files", spec, nil)
	}
	cfg, ok := reg.Lookup(spec)
	if !ok || cfg.Type != Files {
		return result.FailVoid(result.NotFound, "files", spec, nil)
	}
	return clearDir(cfg.BasePath, "files", spec)
}

func clearDir(basePath, component, spec string) result.Void {
	entries, err := os.ReadDir(basePath)
	if os.IsNotExist(err) {
		return result.OkVoid()
	}
	if err != nil {
		return result.FailVoid(result.Unknown, component, spec, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(basePath, e.Name())); err != nil {
			return result.FailVoid(result.Unknown, component, spec, err)
		}
	}
	fsyncDir(basePath)
	return result.OkVoid()
}
