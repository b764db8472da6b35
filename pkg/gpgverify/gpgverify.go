// Package gpgverify performs the optional detached-signature check of
// spec.md §4.3 by shelling out to the system gpg binary, the same
// subprocess pattern pkg/archive uses for tar: no OpenPGP library is
// wired in, on purpose.
package gpgverify

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/leafpkg/leaf/pkg/download"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// DefaultKeyserver is used when LEAF_GPG_KEYSERVER is unset.
const DefaultKeyserver = "subset.pool.sks-keyservers.net"

// Keyserver reads LEAF_GPG_KEYSERVER, falling back to DefaultKeyserver.
func Keyserver() string {
	if v := os.Getenv("LEAF_GPG_KEYSERVER"); v != "" {
		return v
	}
	return DefaultKeyserver
}

// Verify fetches "<artifactURL>.asc" to a sibling of artifactPath, then
// runs "gpg --verify" against it using the given keyring home. Any
// failure (fetch or verification) is reported as BadSignature (spec.md
// §4.3).
func Verify(ctx context.Context, artifactURL, artifactPath, gnupgHome string) error {
	ascPath := artifactPath + ".asc"
	if _, err := download.ToFile(ctx, artifactURL+".asc", ascPath, nil); err != nil {
		return lerr.Wrap(lerr.KindBadSignature, "failed to fetch detached signature", err)
	}
	defer os.Remove(ascPath)

	return VerifyLocal(ascPath, artifactPath, gnupgHome)
}

// VerifyLocal runs "gpg --verify <sigPath> <artifactPath>" against an
// already-downloaded detached signature.
func VerifyLocal(sigPath, artifactPath, gnupgHome string) error {
	args := []string{"--batch", "--verify"}
	if gnupgHome != "" {
		args = append([]string{"--homedir", gnupgHome}, args...)
	}
	args = append(args, sigPath, artifactPath)

	cmd := exec.Command(gpgBin(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return lerr.Wrap(lerr.KindBadSignature, "gpg verification failed: "+string(output), err)
	}
	return nil
}

// ImportKey imports a public key into gnupgHome from a local keyring
// file, used when a remote carries its own trusted key material rather
// than relying on the configured keyserver.
func ImportKey(keyPath, gnupgHome string) error {
	args := []string{"--batch"}
	if gnupgHome != "" {
		args = append([]string{"--homedir", gnupgHome}, args...)
	}
	args = append(args, "--import", keyPath)

	cmd := exec.Command(gpgBin(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return lerr.Wrap(lerr.KindBadSignature, "gpg key import failed: "+string(output), err)
	}
	return nil
}

// ReceiveKey fetches a public key by fingerprint from the configured
// keyserver into gnupgHome.
func ReceiveKey(fingerprint, gnupgHome string) error {
	args := []string{"--batch", "--keyserver", Keyserver(), "--recv-keys", fingerprint}
	if gnupgHome != "" {
		args = append([]string{"--homedir", gnupgHome}, args...)
	}

	cmd := exec.Command(gpgBin(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return lerr.Wrap(lerr.KindBadSignature, "gpg key retrieval failed: "+string(output), err)
	}
	return nil
}

func gpgBin() string {
	if v := os.Getenv("LEAF_GPG_BIN"); v != "" {
		return v
	}
	return "gpg"
}

// DefaultHomeDir returns the gpg/ subdirectory of leaf's configuration
// root (spec.md §6: "Configuration root... gpg/").
func DefaultHomeDir(configRoot string) string {
	return filepath.Join(configRoot, "gpg")
}
