// Package store implements leaf's content-addressed install root
// (spec.md §3/§5): one directory per installed identifier, an advisory
// file lock guarding install/uninstall/sync, and ignore-on-error
// semantics for directories that failed to extract or remove cleanly.
//
// Directories are created under a temporary name and renamed into
// place only on success, so a crash mid-install never leaves a
// partially populated directory at its final path.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/leafpkg/leaf/pkg/fsutil"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// Store wraps a root directory containing one subdirectory per
// installed package identifier, plus a "lock" file.
type Store struct {
	Root string

	mu       sync.Mutex
	lockFile *os.File
}

// Open ensures root exists and returns a Store bound to it.
func Open(root string) (*Store, error) {
	if err := fsutil.EnsureDir(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{Root: root}, nil
}

func (s *Store) lockPath() string {
	return filepath.Join(s.Root, "lock")
}

// ignoredPattern matches directories excluded from Installed() listing
// (spec.md §3's Lifecycles: "<name>_ignored<unix-ts>").
var ignoredPattern = regexp.MustCompile(`_ignored\d+$`)

// Path returns the absolute directory an installed identifier would
// occupy.
func (s *Store) Path(identifierString string) string {
	return filepath.Join(s.Root, identifierString)
}

// Exists reports whether identifierString is currently installed.
func (s *Store) Exists(identifierString string) bool {
	return fsutil.DirExists(s.Path(identifierString))
}

// Installed lists every identifier string with a live directory,
// excluding ones marked ignored.
func (s *Store) Installed() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, lerr.Wrap(lerr.KindIoError, "failed to list store root", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if ignoredPattern.MatchString(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// Remove deletes an installed package directory outright. If removal
// fails, the directory is renamed to "<name>_ignored<unix-ts>" and
// excluded from future listings instead (spec.md §3's kept-on-error
// mode), and the rename error (if any) is returned.
func (s *Store) Remove(identifierString string) error {
	path := s.Path(identifierString)
	if err := fsutil.SafeRemoveAll(path); err == nil {
		return nil
	}
	ignoredPath := fmt.Sprintf("%s_ignored%d", path, time.Now().Unix())
	if err := os.Rename(path, ignoredPath); err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to remove or ignore "+identifierString, err)
	}
	return nil
}

// Lock acquires the store's advisory file lock for the duration of an
// install/uninstall/sync operation (spec.md §5), unless
// LEAF_DISABLE_LOCKS is set. It blocks until acquired or timeout
// elapses.
func (s *Store) Lock(timeout time.Duration) error {
	if os.Getenv("LEAF_DISABLE_LOCKS") != "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to open lock file", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := tryLockFile(f); err == nil {
			s.lockFile = f
			return nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return lerr.New(lerr.KindLockHeld, "store lock held by another process")
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Unlock releases a previously acquired store lock. A no-op if
// LEAF_DISABLE_LOCKS bypassed acquisition.
func (s *Store) Unlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockFile == nil {
		return nil
	}
	err := unlockFile(s.lockFile)
	s.lockFile.Close()
	s.lockFile = nil
	return err
}
