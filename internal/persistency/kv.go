package persistency

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ecucore/coreem/internal/metrics"
	"github.com/ecucore/coreem/internal/result"
)

// keyIsSafe rejects traversal and path separators in a KV key, ported
// from key_is_safe in key_value_storage_backend.cpp.
func keyIsSafe(key string) bool {
	if key == "" {
		return false
	}
	return !strings.Contains(key, "/") &&
		!strings.Contains(key, "\\") &&
		!strings.Contains(key, "..")
}

// KeyValueStorage is a flat, non-recursive key-value backend rooted at
// a single directory. One file per key; writes are atomic crash-safe
// tmp-then-rename.
type KeyValueStorage struct {
	mu       sync.Mutex
	basePath string
	quota    uint64
	spec     string
}

// NewKeyValueStorage constructs a backend rooted at basePath, creating
// the directory if absent.
func NewKeyValueStorage(spec, basePath string, quota uint64) (*KeyValueStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &KeyValueStorage{basePath: basePath, quota: quota, spec: spec}, nil
}

// SetValue writes key=value following the atomic write protocol: reject
// unsafe keys, enforce quota against used space without the old entry's
// contribution, write to a sibling .tmp, fsync it, rename over the
// final path, then fsync the containing directory.
func (s *KeyValueStorage) SetValue(key, value string) result.Void {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !keyIsSafe(key) {
		return result.FailVoid(result.PermissionDenied, "kv", key, nil)
	}

	final := filepath.Join(s.basePath, key)
	current := s.usedSpaceNoLock()
	oldSize := fileSize(final)
	newSize := current - oldSize + uint64(len(value))
	if newSize > s.quota {
		metrics.RecordQuotaRejection(s.spec, "kv")
		return result.FailVoid(result.QuotaExceeded, "kv", key, nil)
	}

	if err := atomicWriteFile(final, []byte(value)); err != nil {
		return result.FailVoid(result.Unknown, "kv", key, err)
	}
	return result.OkVoid()
}

// GetValue reads the value stored for key; a missing key returns NotFound.
func (s *KeyValueStorage) GetValue(key string) result.Result[string] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !keyIsSafe(key) {
		return result.Failf[string](result.PermissionDenied, "kv", key, nil)
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, key))
	if os.IsNotExist(err) {
		return result.Failf[string](result.NotFound, "kv", key, err)
	}
	if err != nil {
		return result.Failf[string](result.Unknown, "kv", key, err)
	}
	return result.Ok(string(data))
}

// HasKey reports whether key exists.
func (s *KeyValueStorage) HasKey(key string) result.Result[bool] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !keyIsSafe(key) {
		return result.Failf[bool](result.PermissionDenied, "kv", key, nil)
	}
	_, err := os.Stat(filepath.Join(s.basePath, key))
	if err != nil {
		if os.IsNotExist(err) {
			return result.Ok(false)
		}
		return result.Failf[bool](result.Unknown, "kv", key, err)
	}
	return result.Ok(true)
}

// RemoveKey deletes key. A missing entry or failed removal is NotFound.
func (s *KeyValueStorage) RemoveKey(key string) result.Void {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !keyIsSafe(key) {
		return result.FailVoid(result.PermissionDenied, "kv", key, nil)
	}
	final := filepath.Join(s.basePath, key)
	if err := os.Remove(final); err != nil {
		return result.FailVoid(result.NotFound, "kv", key, err)
	}
	fsyncDir(s.basePath)
	return result.OkVoid()
}

// GetAllKeys lists every key currently stored, in directory order.
func (s *KeyValueStorage) GetAllKeys() result.Result[[]string] {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return result.Failf[[]string](result.Unknown, "kv", s.basePath, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasSuffix(e.Name(), ".tmp") {
			keys = append(keys, e.Name())
		}
	}
	return result.Ok(keys)
}

// GetUsedSpace returns the total size in bytes of all keys, acquiring
// the lock. usedSpaceNoLock is the reentrant variant used internally by
// SetValue, which already holds the lock.
func (s *KeyValueStorage) GetUsedSpace() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedSpaceNoLock()
}

func (s *KeyValueStorage) usedSpaceNoLock() uint64 {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0
	}
	var total uint64
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += uint64(info.Size())
	}
	return total
}

// SyncToStorage is a no-op: every write is already fsync'd durable.
func (s *KeyValueStorage) SyncToStorage() result.Void { return result.OkVoid() }

// DiscardPendingChanges is a no-op: there is no staging area.
func (s *KeyValueStorage) DiscardPendingChanges() result.Void { return result.OkVoid() }

func fileSize(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(info.Size())
}
