package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "store")
	s, err := Open(root)
	require.NoError(t, err)
	assert.True(t, fsutilDirExists(root))
	assert.Equal(t, root, s.Root)
}

func fsutilDirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func TestExistsAndInstalled(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(s.Path("foo_1.0.0"), 0o755))
	require.NoError(t, os.MkdirAll(s.Path("bar_1.0.0_ignored1700000000"), 0o755))

	assert.True(t, s.Exists("foo_1.0.0"))
	assert.False(t, s.Exists("missing_1.0.0"))

	installed, err := s.Installed()
	require.NoError(t, err)
	assert.Equal(t, []string{"foo_1.0.0"}, installed, "ignored directories are excluded from listing")
}

func TestRemove(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(s.Path("foo_1.0.0"), 0o755))

	require.NoError(t, s.Remove("foo_1.0.0"))
	assert.False(t, s.Exists("foo_1.0.0"))
}

func TestLockUnlockRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Lock(time.Second))
	require.NoError(t, s.Unlock())
}

func TestLockDisabledByEnv(t *testing.T) {
	t.Setenv("LEAF_DISABLE_LOCKS", "1")
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Lock(time.Millisecond))
	require.NoError(t, s.Unlock())
}
