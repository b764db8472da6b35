package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFile_File(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello leaf"), 0o644))

	dest := filepath.Join(dir, "dest.txt")
	n, err := ToFile(context.Background(), "file://"+src, dest, nil)
	require.NoError(t, err)
	assert.EqualValues(t, len("hello leaf"), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello leaf", string(got))
}

func TestToFile_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("package-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "artifact.tar")
	n, err := ToFile(context.Background(), srv.URL, dest, nil)
	require.NoError(t, err)
	assert.EqualValues(t, len("package-bytes"), n)
}

func TestToFile_HTTPNotFoundIsNotRetriedForever(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "artifact.tar")
	_, err := ToFile(context.Background(), srv.URL, dest, nil)
	require.Error(t, err)
	assert.False(t, fileExists(dest))
	assert.Equal(t, 1, attempts, "non-network-error failures are not retried")
}

func TestToFile_UnsupportedScheme(t *testing.T) {
	dir := t.TempDir()
	_, err := ToFile(context.Background(), "ftp://example.com/x", filepath.Join(dir, "x"), nil)
	require.Error(t, err)
}

func TestCachePath(t *testing.T) {
	got := CachePath("/cache", "abcdef0123456789", "leaf-1.0.0.tar.gz")
	assert.Equal(t, filepath.Join("/cache", "files", "abcdef01-leaf-1.0.0.tar.gz"), got)
}

func TestTimeoutDefault(t *testing.T) {
	os.Unsetenv("LEAF_TIMEOUT")
	assert.Equal(t, DefaultTimeoutSeconds, int(Timeout().Seconds()))
}

func TestTimeoutOverride(t *testing.T) {
	t.Setenv("LEAF_TIMEOUT", "42")
	assert.Equal(t, 42, int(Timeout().Seconds()))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
