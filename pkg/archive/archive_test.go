package archive

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionFlag(t *testing.T) {
	cases := map[string]string{
		"pkg.tar":     "",
		"pkg.tar.gz":  "-z",
		"pkg.tgz":     "-z",
		"pkg.tar.bz2": "-j",
		"pkg.tar.xz":  "-J",
		"pkg.leaf":    "-J",
	}
	for name, want := range cases {
		got, err := compressionFlag(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestCompressionFlagUnknown(t *testing.T) {
	_, err := compressionFlag("pkg.zip")
	require.Error(t, err)
}

func TestValidateExtraArgsRejectsForbidden(t *testing.T) {
	err := validateExtraArgs([]string{"--directory=/etc"})
	require.Error(t, err)

	err = validateExtraArgs([]string{"-x"})
	require.Error(t, err) // forbidden even though Extract itself always passes it internally

	err = validateExtraArgs([]string{"--verbose"})
	require.NoError(t, err)
}

func TestExtract(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hi"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "pkg.tar.gz")
	cmd := exec.Command("tar", "-czf", archivePath, "-C", srcDir, "hello.txt")
	require.NoError(t, cmd.Run())

	storeRoot := t.TempDir()
	finalPath, err := Extract(archivePath, storeRoot, "mypkg_1.0.0", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(storeRoot, "mypkg_1.0.0"), finalPath)

	got, err := os.ReadFile(filepath.Join(finalPath, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestExtractForbiddenArg(t *testing.T) {
	_, err := Extract("pkg.tar.gz", t.TempDir(), "x_1.0.0", []string{"-C", "/etc"})
	require.Error(t, err)
}

func TestExtractStagingCommitDiscard(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hi"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "pkg.tar.gz")
	cmd := exec.Command("tar", "-czf", archivePath, "-C", srcDir, "hello.txt")
	require.NoError(t, cmd.Run())

	storeRoot := t.TempDir()

	staging, err := ExtractStaging(archivePath, storeRoot, "mypkg_1.0.0", nil)
	require.NoError(t, err)
	assert.DirExists(t, staging)

	// the staged directory is readable before any commit decision is made,
	// which is the whole point: a caller can run install steps against it.
	got, err := os.ReadFile(filepath.Join(staging, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))

	finalPath, err := Commit(staging, storeRoot, "mypkg_1.0.0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(storeRoot, "mypkg_1.0.0"), finalPath)
	assert.NoDirExists(t, staging)
	assert.DirExists(t, finalPath)
}

func TestExtractStagingDiscardLeavesNoTrace(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hi"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "pkg.tar.gz")
	cmd := exec.Command("tar", "-czf", archivePath, "-C", srcDir, "hello.txt")
	require.NoError(t, cmd.Run())

	storeRoot := t.TempDir()

	staging, err := ExtractStaging(archivePath, storeRoot, "failedpkg_1.0.0", nil)
	require.NoError(t, err)

	require.NoError(t, Discard(staging))
	assert.NoDirExists(t, staging)
	assert.NoDirExists(t, filepath.Join(storeRoot, "failedpkg_1.0.0"))
}

func TestCommitReplacesExistingFinalDir(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "v2.txt"), []byte("v2"), 0o644))
	archivePath := filepath.Join(t.TempDir(), "pkg.tar.gz")
	require.NoError(t, exec.Command("tar", "-czf", archivePath, "-C", srcDir, "v2.txt").Run())

	storeRoot := t.TempDir()
	oldFinal := filepath.Join(storeRoot, "mypkg_1.0.0")
	require.NoError(t, os.MkdirAll(oldFinal, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldFinal, "v1.txt"), []byte("v1"), 0o644))

	staging, err := ExtractStaging(archivePath, storeRoot, "mypkg_1.0.0", nil)
	require.NoError(t, err)

	finalPath, err := Commit(staging, storeRoot, "mypkg_1.0.0")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(finalPath, "v1.txt"))
	assert.FileExists(t, filepath.Join(finalPath, "v2.txt"))
}

func TestCreateIsDeterministic(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "manifest.json"), []byte(`{"a":1}`), 0o644))

	ts := time.Unix(1700000000, 0)
	outA := filepath.Join(t.TempDir(), "pkg.tar")
	outB := filepath.Join(t.TempDir(), "pkg.tar")

	opts := CreateOptions{ForceTimestamp: &ts, ForceRootOwner: true}
	require.NoError(t, Create(srcDir, outA, opts))
	require.NoError(t, Create(srcDir, outB, opts))

	dataA, err := os.ReadFile(outA)
	require.NoError(t, err)
	dataB, err := os.ReadFile(outB)
	require.NoError(t, err)
	assert.Equal(t, dataA, dataB, "identical inputs and reproducibility flags must produce a byte-identical archive")
}

func TestCreateRejectsForbiddenExtraArgs(t *testing.T) {
	err := Create(t.TempDir(), filepath.Join(t.TempDir(), "pkg.tar"), CreateOptions{ExtraArgs: []string{"-c"}})
	require.Error(t, err)
}
