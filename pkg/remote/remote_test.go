package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string, string) {
	t.Helper()
	configDir := t.TempDir()
	cacheDir := t.TempDir()
	r, err := Open(configDir, cacheDir)
	require.NoError(t, err)
	return r, configDir, cacheDir
}

func TestAddListRemove(t *testing.T) {
	r, configDir, _ := newTestRegistry(t)

	require.NoError(t, r.Add("main", "https://example.org/index.json", ""))
	require.Error(t, r.Add("main", "https://example.org/index.json", ""))

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, "main", list[0].Alias)
	assert.True(t, list[0].Enabled)

	reopened, err := Open(configDir, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 1)

	require.NoError(t, r.Remove("main"))
	assert.Empty(t, r.List())
	require.Error(t, r.Remove("main"))
}

func TestEnableClearsCache(t *testing.T) {
	r, _, cacheDir := newTestRegistry(t)
	require.NoError(t, r.Add("main", "https://example.org/index.json", ""))

	cachePath := cacheFilePath(cacheDir, "main")
	require.NoError(t, os.WriteFile(cachePath, []byte(`{}`), 0o644))

	require.NoError(t, r.Enable("main", false))
	assert.NoFileExists(t, cachePath)
}

func indexJSON(name, version, file, hashStr string, size int64) string {
	return `{"info":{"name":"test","date":"2026-01-01"},"packages":[{"info":{"name":"` +
		name + `","version":"` + version + `"},"file":"` + file + `","size":` +
		jsonInt(size) + `,"hash":"` + hashStr + `"}]}`
}

func jsonInt(n int64) string {
	if n == 0 {
		return "0"
	}
	s := ""
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	if neg {
		s = "-" + s
	}
	return s
}

func TestFetchAndCatalogue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(indexJSON("foo", "1.0.0", "foo_1.0.0.tar.gz", "sha256:abcd", 100)))
	}))
	defer srv.Close()

	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Add("main", srv.URL+"/index.json", ""))

	result, err := r.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Contains(t, result.Refreshed, "main")
	assert.Empty(t, result.Failed)

	cat, mismatches, err := r.Catalogue()
	require.NoError(t, err)
	assert.Empty(t, mismatches)
	pkg, ok := cat["foo_1.0.0"]
	require.True(t, ok)
	assert.Equal(t, int64(100), pkg.Size)
	assert.Equal(t, "main", pkg.RemoteOrigin)
	assert.Contains(t, pkg.URL, "foo_1.0.0.tar.gz")
}

func TestFetchSkipsWithinTTL(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls++
		w.Write([]byte(indexJSON("foo", "1.0.0", "foo_1.0.0.tar.gz", "sha256:abcd", 10)))
	}))
	defer srv.Close()

	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Add("main", srv.URL+"/index.json", ""))

	_, err := r.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = r.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second fetch within TTL should not re-download")
}

func TestFetchForceBypassesTTL(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls++
		w.Write([]byte(indexJSON("foo", "1.0.0", "foo_1.0.0.tar.gz", "sha256:abcd", 10)))
	}))
	defer srv.Close()

	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Add("main", srv.URL+"/index.json", ""))

	_, err := r.Fetch(context.Background(), false)
	require.NoError(t, err)
	_, err = r.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetchFailurePreservesExistingCache(t *testing.T) {
	up := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !up {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(indexJSON("foo", "1.0.0", "foo_1.0.0.tar.gz", "sha256:abcd", 10)))
	}))
	defer srv.Close()

	r, _, cacheDir := newTestRegistry(t)
	require.NoError(t, r.Add("main", srv.URL+"/index.json", ""))

	_, err := r.Fetch(context.Background(), false)
	require.NoError(t, err)
	originalData, err := os.ReadFile(filepath.Join(cacheDir, "main.json"))
	require.NoError(t, err)

	up = false
	result, err := r.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, result.Failed, "main")

	afterData, err := os.ReadFile(filepath.Join(cacheDir, "main.json"))
	require.NoError(t, err)
	assert.Equal(t, originalData, afterData)
}

func TestCatalogueFirstRemoteWins(t *testing.T) {
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(indexJSON("foo", "1.0.0", "a.tar.gz", "sha256:aaaa", 1)))
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(indexJSON("foo", "1.0.0", "b.tar.gz", "sha256:bbbb", 2)))
	}))
	defer srvB.Close()

	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Add("first", srvA.URL+"/index.json", ""))
	require.NoError(t, r.Add("second", srvB.URL+"/index.json", ""))

	_, err := r.Fetch(context.Background(), false)
	require.NoError(t, err)

	cat, mismatches, err := r.Catalogue()
	require.NoError(t, err)
	assert.Len(t, mismatches, 1)
	assert.Equal(t, "first", cat["foo_1.0.0"].RemoteOrigin)
}

func TestIsStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")
	assert.True(t, isStale(path), "missing file is always stale")

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	assert.False(t, isStale(path))

	old := time.Now().Add(-25 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	assert.True(t, isStale(path))
}
