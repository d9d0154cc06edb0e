package util

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	DirPerm  os.FileMode = 0o700
	FilePerm os.FileMode = 0o600
)

// EnsureDir creates dir with owner-only permissions and tightens an existing one.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.Chmod(dir, DirPerm); err != nil {
		return fmt.Errorf("setting directory permissions: %w", err)
	}
	return nil
}

// BeforeRenameHook, when set, runs after the temp file is durable and before
// it replaces the destination. Returning an error aborts the write.
type BeforeRenameHook func(tmpPath string) error

// WriteFileAtomic replaces path with data via a temp file in the same directory,
// fsync, rename and a directory fsync. Readers see either the old or the new
// contents, never a partial file.
func WriteFileAtomic(path string, data []byte, hook BeforeRenameHook) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = tmp.Chmod(FilePerm); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if hook != nil {
		if err = hook(tmpPath); err != nil {
			return err
		}
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing file: %w", err)
	}
	SyncDir(dir)
	return nil
}

// SyncDir flushes directory metadata so a completed rename survives a crash.
// Platforms that cannot open directories for sync are tolerated.
func SyncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// SecureRemove overwrites path with random bytes, syncs, and unlinks it.
// A missing file is not an error.
func SecureRemove(path string) error {
	if err := Overwrite(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file: %w", err)
	}
	SyncDir(filepath.Dir(path))
	return nil
}

// Overwrite replaces the contents of path in place with random bytes of the same length.
func Overwrite(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat for overwrite: %w", err)
	}
	if _, err := io.CopyN(f, rand.Reader, info.Size()); err != nil {
		return fmt.Errorf("overwriting file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing overwritten file: %w", err)
	}
	return nil
}

// FileExists reports whether path exists. Errors other than not-exist count as existing.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}
