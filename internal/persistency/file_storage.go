package persistency

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ecucore/coreem/internal/metrics"
	"github.com/ecucore/coreem/internal/result"
)

// relPathIsSafe rejects traversal and absolute paths, ported from
// rel_path_is_safe in file_storage.cpp.
func relPathIsSafe(rel string) bool {
	if rel == "" {
		return false
	}
	if strings.Contains(rel, "..") || strings.Contains(rel, ":") {
		return false
	}
	return !filepath.IsAbs(rel)
}

// FileStorage is a recursive, directory-tree-backed file store.
type FileStorage struct {
	mu       sync.Mutex
	basePath string
	quota    uint64
	spec     string
}

// NewFileStorage constructs a backend rooted at basePath, creating the
// directory if absent.
func NewFileStorage(spec, basePath string, quota uint64) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &FileStorage{basePath: basePath, quota: quota, spec: spec}, nil
}

// WriteFile writes data at a path relative to the base, creating parent
// directories as needed, following the same atomic write protocol as
// KeyValueStorage.SetValue but with recursive quota accounting.
func (s *FileStorage) WriteFile(rel string, data []byte) result.Void {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !relPathIsSafe(rel) {
		return result.FailVoid(result.PermissionDenied, "files", rel, nil)
	}

	final := filepath.Join(s.basePath, rel)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return result.FailVoid(result.Unknown, "files", rel, err)
	}

	current := s.usedSpaceNoLock()
	oldSize := fileSize(final)
	newSize := current - oldSize + uint64(len(data))
	if newSize > s.quota {
		metrics.RecordQuotaRejection(s.spec, "files")
		return result.FailVoid(result.QuotaExceeded, "files", rel, nil)
	}

	if err := atomicWriteFile(final, data); err != nil {
		return result.FailVoid(result.Unknown, "files", rel, err)
	}
	return result.OkVoid()
}

// ReadFile returns the full contents at rel; a missing file is NotFound.
func (s *FileStorage) ReadFile(rel string) result.Result[[]byte] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !relPathIsSafe(rel) {
		return result.Failf[[]byte](result.PermissionDenied, "files", rel, nil)
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, rel))
	if os.IsNotExist(err) {
		return result.Failf[[]byte](result.NotFound, "files", rel, err)
	}
	if err != nil {
		return result.Failf[[]byte](result.Unknown, "files", rel, err)
	}
	return result.Ok(data)
}

// RemoveFile deletes the file at rel. Missing or failed removal is NotFound.
func (s *FileStorage) RemoveFile(rel string) result.Void {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !relPathIsSafe(rel) {
		return result.FailVoid(result.PermissionDenied, "files", rel, nil)
	}
	final := filepath.Join(s.basePath, rel)
	if err := os.Remove(final); err != nil {
		return result.FailVoid(result.NotFound, "files", rel, err)
	}
	fsyncDir(filepath.Dir(final))
	return result.OkVoid()
}

// ListFiles walks the tree below the base path and returns every
// regular file's path relative to the base, skipping stray .tmp
// siblings from interrupted writes.
func (s *FileStorage) ListFiles() result.Result[[]string] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var files []string
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return result.Failf[[]string](result.Unknown, "files", s.basePath, err)
	}
	return result.Ok(files)
}

// GetUsedSpace returns the total size in bytes of every file under the
// base path, recursively.
func (s *FileStorage) GetUsedSpace() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedSpaceNoLock()
}

func (s *FileStorage) usedSpaceNoLock() uint64 {
	var total uint64
	_ = filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += uint64(info.Size())
		return nil
	})
	return total
}

// SyncToStorage is a no-op: every write is already fsync'd durable.
func (s *FileStorage) SyncToStorage() result.Void { return result.OkVoid() }

// DiscardPendingChanges is a no-op: there is no staging area.
func (s *FileStorage) DiscardPendingChanges() result.Void { return result.OkVoid() }
