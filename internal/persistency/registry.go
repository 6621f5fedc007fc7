// Package persistency implements the Storage Registry, the KV and File
// storage backends, and the facade functions that open and reset them
// against an instance specifier. Grounded on original_source/persistency
// (key_value_storage_backend.cpp, file_storage.cpp, storage_registry.cpp):
// the write protocol, quota accounting, and registry init/lookup/clear
// semantics are ported line-for-line into Go idiom, and the map+mutex
// registry style follows internal/seeds/registry.go.
package persistency

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ecucore/coreem/internal/logging"
	"github.com/ecucore/coreem/internal/result"
)

// StorageType distinguishes a key-value backend from a file backend.
type StorageType int

const (
	// Files is the registry's default when a manifest entry omits "type",
	// mirroring ParseType's fallback in storage_registry.cpp.
	Files StorageType = iota
	KV
)

func (t StorageType) String() string {
	switch t {
	case KV:
		return "kv"
	default:
		return "files"
	}
}

func parseStorageType(s string) StorageType {
	if s == "kv" {
		return KV
	}
	return Files
}

// StorageConfig is one entry of the persistency manifest.
type StorageConfig struct {
	InstanceSpec   string
	Type           StorageType
	BasePath       string
	QuotaBytes     uint64
	RecoverOnStart bool
}

type manifestFile struct {
	Storages []manifestEntry `json:"storages"`
}

type manifestEntry struct {
	InstanceSpec   string  `json:"instance_spec"`
	Type           string  `json:"type"`
	BasePath       string  `json:"base_path"`
	QuotaBytes     *uint64 `json:"quota_bytes"`
	RecoverOnStart bool    `json:"recover_on_start"`
}

const unboundedQuota = ^uint64(0)

// Registry is the process-wide map of instance specifier to storage
// config. Zero value is usable; is_initialized starts false.
type Registry struct {
	mu          sync.Mutex
	entries     map[string]StorageConfig
	initialized atomic.Bool
}

// NewRegistry constructs an empty, uninitialized registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]StorageConfig)}
}

// InitFromFile parses a persistency manifest, ensures every base_path
// exists, and atomically publishes the mapping. A missing file fails
// NotFound; a structurally invalid file fails Corruption and leaves the
// map empty. On success, is_initialized is published with a release
// store after the map, so a caller whose IsInitialized load returns
// true observes the fully built map.
func (r *Registry) InitFromFile(path string) result.Void {
	log := logging.For("persistency.registry")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return result.FailVoid(result.NotFound, "registry", path, err)
	}
	if err != nil {
		return result.FailVoid(result.Unknown, "registry", path, err)
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return result.FailVoid(result.Corruption, "registry", path, err)
	}

	entries := make(map[string]StorageConfig, len(mf.Storages))
	for _, e := range mf.Storages {
		if e.InstanceSpec == "" || e.BasePath == "" {
			return result.FailVoid(result.Corruption, "registry", path,
				fmt.Errorf("storage entry missing instance_spec or base_path"))
		}
		quota := unboundedQuota
		if e.QuotaBytes != nil {
			quota = *e.QuotaBytes
		}
		cfg := StorageConfig{
			InstanceSpec:   e.InstanceSpec,
			Type:           parseStorageType(e.Type),
			BasePath:       e.BasePath,
			QuotaBytes:     quota,
			RecoverOnStart: e.RecoverOnStart,
		}
		if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
			return result.FailVoid(result.Unknown, "registry", e.InstanceSpec, err)
		}
		entries[e.InstanceSpec] = cfg
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	r.initialized.Store(true)

	log.Info().Str("path", path).Int("count", len(entries)).Msg("storage registry initialized")
	return result.OkVoid()
}

// Lookup returns the config for an instance specifier, if present.
// IsInitialized must be checked by callers that need to distinguish
// "not yet loaded" from "no such entry".
func (r *Registry) Lookup(instanceSpec string) (StorageConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.entries[instanceSpec]
	return cfg, ok
}

// IsInitialized reports whether InitFromFile has ever succeeded since
// construction or the last Clear.
func (r *Registry) IsInitialized() bool {
	return r.initialized.Load()
}

// Clear removes all entries and resets is_initialized.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]StorageConfig)
	r.mu.Unlock()
	r.initialized.Store(false)
}
