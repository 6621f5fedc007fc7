package persistency

import (
	"fmt"
	"os"
	"path/filepath"
)

// atomicWriteFile writes data to path via a sibling .tmp file: write,
// flush, fsync the temp file, rename over the final path, then fsync
// the containing directory so the rename survives a crash. On any
// failure before rename succeeds, the temp file is best-effort removed.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}

	fsyncDir(filepath.Dir(path))
	return nil
}

// fsyncDir best-effort fsyncs a directory so a preceding rename within
// it is durable. Errors are not fatal: the rename itself already
// succeeded and most filesystems cannot usefully report a directory
// fsync failure to the caller.
func fsyncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
