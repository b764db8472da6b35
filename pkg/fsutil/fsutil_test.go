package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFileCreatesParentAndContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")

	require.NoError(t, AtomicWriteFile(path, []byte("hello"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestAtomicWriteFileOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0o644))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestAtomicWriteFileRejectsEmptyPath(t *testing.T) {
	assert.Error(t, AtomicWriteFile("", []byte("x"), 0o644))
}

func TestEnsureDirRejectsEmptyPath(t *testing.T) {
	assert.Error(t, EnsureDir("", 0o755))
}

func TestFileExistsAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(filepath.Join(dir, "missing")))
}

func TestSafeRemoveIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, SafeRemove(filepath.Join(dir, "missing")))
}

func TestSafeRemoveAllIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, SafeRemoveAll(filepath.Join(dir, "missing-tree")))
}

func TestSafeRemoveAllRemovesTree(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	require.NoError(t, SafeRemoveAll(filepath.Join(dir, "a")))
	assert.False(t, DirExists(nested))
}
