// Package fsutil provides the atomic filesystem primitives leaf's store,
// installer and workspace build on: temp-file-plus-rename writes, safe
// removal, and directory helpers.
//
// Same temp-file + rename pattern as a typical Go atomic-write helper,
// trimmed to what leaf actually calls (no CopyFile/ComputeFileHash —
// leaf's installer streams straight into pkg/hash).
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path via a temp file in the same
// directory, synced then renamed into place, so readers never observe a
// partial write.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}
	dir := filepath.Dir(path)
	if err := EnsureDir(dir, 0o755); err != nil {
		return fmt.Errorf("ensure parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

// EnsureDir is MkdirAll with a clearer error.
func EnsureDir(path string, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// SafeRemove removes path, treating "already gone" as success.
func SafeRemove(path string) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// SafeRemoveAll removes a directory tree, treating "already gone" as
// success.
func SafeRemoveAll(path string) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
