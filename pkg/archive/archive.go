// Package archive extracts leaf package artifacts by shelling out to the
// system tar binary (spec.md §4.3): leaf never links a general-purpose
// archive library.
package archive

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/leafpkg/leaf/pkg/fsutil"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// forbiddenArgs are tar flags (short and long form) that would change
// the archive's mode of operation away from plain extraction. Extra
// caller-supplied args are checked against this set (spec.md §4.3).
var forbiddenArgs = map[string]bool{
	"-A": true, "--catenate": true, "--concatenate": true,
	"-c": true, "--create": true,
	"-d": true, "--diff": true, "--compare": true,
	"--delete": true,
	"-r": true, "--append": true,
	"-t": true, "--list": true,
	"-u": true, "--update": true,
	"-x": true, "--extract": true, "--get": true,
	"-C": true, "--directory": true,
	"-f": true, "--file": true,
}

// compressionFlag returns the tar flag selecting the decompressor for
// filename's extension, per spec.md §4.3's extension table. ".leaf"
// archives are xz-compressed tarballs.
func compressionFlag(filename string) (string, error) {
	switch {
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		return "-z", nil
	case strings.HasSuffix(filename, ".tar.bz2"):
		return "-j", nil
	case strings.HasSuffix(filename, ".tar.xz"), strings.HasSuffix(filename, ".leaf"):
		return "-J", nil
	case strings.HasSuffix(filename, ".tar"):
		return "", nil
	default:
		return "", lerr.New(lerr.KindInvalidInput, "cannot infer compression from filename: "+filename)
	}
}

// tarBin returns the tar binary to invoke, honoring LEAF_TAR_BIN
// (spec.md §6's environment-variable taxonomy).
func tarBin() string {
	if v := os.Getenv("LEAF_TAR_BIN"); v != "" {
		return v
	}
	return "tar"
}

func validateExtraArgs(extra []string) error {
	for _, a := range extra {
		name := a
		if idx := strings.Index(a, "="); idx >= 0 {
			name = a[:idx]
		}
		if forbiddenArgs[name] {
			return lerr.New(lerr.KindInvalidInput, "forbidden tar argument: "+a)
		}
	}
	return nil
}

// ExtractStaging extracts archivePath (whose compression is inferred
// from its filename) into a fresh temporary directory under storeRoot
// and returns that directory without renaming it into place. Callers
// that need a window to run post-extraction steps before committing
// (the installer's install-step-then-rename sequence, spec.md §4.6)
// call this directly; callers that just want the final layout in one
// step should use Extract.
func ExtractStaging(archivePath, storeRoot, namePrefix string, extraArgs []string) (string, error) {
	if err := validateExtraArgs(extraArgs); err != nil {
		return "", err
	}
	compFlag, err := compressionFlag(filepath.Base(archivePath))
	if err != nil {
		return "", err
	}

	if err := fsutil.EnsureDir(storeRoot, 0o755); err != nil {
		return "", err
	}
	tmpDir, err := os.MkdirTemp(storeRoot, ".tmp-"+namePrefix+"-")
	if err != nil {
		return "", lerr.Wrap(lerr.KindIoError, "failed to create extraction temp dir", err)
	}

	args := []string{"-x"}
	if compFlag != "" {
		args = append(args, compFlag)
	}
	args = append(args, "-f", archivePath, "-C", tmpDir)
	args = append(args, extraArgs...)

	cmd := exec.Command(tarBin(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		fsutil.SafeRemoveAll(tmpDir)
		return "", lerr.Wrap(lerr.KindIoError, "tar extraction failed: "+string(output), err)
	}
	return tmpDir, nil
}

// Commit renames a staging directory produced by ExtractStaging to its
// final name under storeRoot, replacing anything already there.
func Commit(stagingDir, storeRoot, finalName string) (string, error) {
	finalPath := filepath.Join(storeRoot, finalName)
	fsutil.SafeRemoveAll(finalPath)
	if err := os.Rename(stagingDir, finalPath); err != nil {
		fsutil.SafeRemoveAll(stagingDir)
		return "", lerr.Wrap(lerr.KindIoError, "failed to finalize extracted package", err)
	}
	return finalPath, nil
}

// Discard removes a staging directory produced by ExtractStaging without
// committing it, leaving any existing final directory untouched (the
// installer's rollback path, spec.md §4.6).
func Discard(stagingDir string) error {
	return fsutil.SafeRemoveAll(stagingDir)
}

// Extract extracts archivePath directly to finalName under storeRoot in
// one step (stage then commit), for callers with no need for a rollback
// window between extraction and commit.
func Extract(archivePath, storeRoot, finalName string, extraArgs []string) (string, error) {
	staging, err := ExtractStaging(archivePath, storeRoot, finalName, extraArgs)
	if err != nil {
		return "", err
	}
	return Commit(staging, storeRoot, finalName)
}

// CreateOptions controls releng's create_package reproducibility knobs
// (spec.md §4.9).
type CreateOptions struct {
	// ForceTimestamp, if non-nil, stamps every archive entry's mtime to
	// this instant instead of the filesystem's own mtimes.
	ForceTimestamp *time.Time
	// ForceRootOwner, if set, rewrites every entry's uid/gid to 0/0 and
	// names to root/root.
	ForceRootOwner bool
	ExtraArgs      []string
}

// Create packages folder's contents into outputFile by shelling out to
// tar -c, the same way Extract shells out to tar -x: leaf never links an
// archive-writing library. Reproducibility flags map onto GNU tar's
// --mtime/--owner/--group/--sort, so two invocations
// over identical inputs with identical options produce a byte-identical
// archive.
func Create(folder, outputFile string, opts CreateOptions) error {
	if err := validateExtraArgs(opts.ExtraArgs); err != nil {
		return err
	}
	compFlag, err := compressionFlag(filepath.Base(outputFile))
	if err != nil {
		return err
	}

	args := []string{"-c"}
	if compFlag != "" {
		args = append(args, compFlag)
	}
	if opts.ForceTimestamp != nil {
		args = append(args, "--mtime=@"+strconv.FormatInt(opts.ForceTimestamp.Unix(), 10))
	}
	if opts.ForceRootOwner {
		args = append(args, "--owner=root", "--group=root")
	}
	args = append(args, "--sort=name", "-f", outputFile, "-C", folder)
	args = append(args, opts.ExtraArgs...)
	args = append(args, ".")

	cmd := exec.Command(tarBin(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		fsutil.SafeRemove(outputFile)
		return lerr.Wrap(lerr.KindIoError, "tar creation failed: "+string(output), err)
	}
	return nil
}

