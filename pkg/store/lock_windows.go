//go:build windows

package store

import "os"

// Windows has no flock equivalent reachable purely through the
// standard library without cgo. On Windows tryLockFile always succeeds
// and unlockFile does nothing: the lock file is created, but neither its
// existence nor any file lock excludes a second process.
func tryLockFile(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}
