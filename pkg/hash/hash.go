// Package hash implements leaf's content-address scheme: a Hash is
// "<algo>:<hex>" (spec.md §3), and the package streams data through the
// chosen algorithm for verification rather than loading it whole.
//
// Hash mirrors a common Go crypto identity shape: an Algorithm tag plus
// raw bytes, with String() rendering "algo:hex" the way a public-key
// fingerprint renders "algo:fingerprint".
package hash

import (
	"crypto/sha1"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	sha256simd "github.com/minio/sha256-simd"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// Algo is one of the four algorithms spec.md §3 allows.
type Algo string

const (
	SHA1   Algo = "sha1"
	SHA256 Algo = "sha256"
	SHA384 Algo = "sha384"
	SHA512 Algo = "sha512"

	// Default is the algorithm used when leaf computes a new hash (e.g.
	// in releng), per spec.md §3's "implementer chooses the default on
	// creation (prefer sha384)".
	Default Algo = SHA384
)

// Hash is a parsed "<algo>:<hex>" value.
type Hash struct {
	Algo Algo
	Hex  string
}

// Parse parses "<algo>:<hex>". Unlike the original's legacy unprefixed
// sha1sum field (spec.md §9), no bare-hex compatibility form is accepted.
func Parse(s string) (Hash, error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return Hash{}, lerr.New(lerr.KindInvalidInput, "malformed hash (expected algo:hex): "+s)
	}
	algo := Algo(s[:idx])
	hexPart := s[idx+1:]
	if !isValidAlgo(algo) {
		return Hash{}, lerr.New(lerr.KindInvalidInput, "unsupported hash algorithm: "+string(algo))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return Hash{}, lerr.Wrap(lerr.KindInvalidInput, "malformed hash hex", err)
	}
	return Hash{Algo: algo, Hex: strings.ToLower(hexPart)}, nil
}

func isValidAlgo(a Algo) bool {
	switch a {
	case SHA1, SHA256, SHA384, SHA512:
		return true
	default:
		return false
	}
}

// String renders "algo:hex".
func (h Hash) String() string {
	return string(h.Algo) + ":" + h.Hex
}

// Equal compares two hashes by algorithm and hex digest.
func (h Hash) Equal(other Hash) bool {
	return h.Algo == other.Algo && strings.EqualFold(h.Hex, other.Hex)
}

func newHasher(algo Algo) (hash.Hash, error) {
	switch algo {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256simd.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, lerr.New(lerr.KindInvalidInput, "unsupported hash algorithm: "+string(algo))
	}
}

// Compute streams r through algo and returns the resulting Hash.
func Compute(algo Algo, r io.Reader) (Hash, error) {
	h, err := newHasher(algo)
	if err != nil {
		return Hash{}, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return Hash{}, lerr.Wrap(lerr.KindIoError, "failed to stream data through hash", err)
	}
	return Hash{Algo: algo, Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// Verify streams r through the algorithm named by expected and compares
// the digest. On mismatch it returns a BadHash LeafError; callers are
// responsible for deleting the offending file (spec.md §4.3).
func Verify(expected Hash, r io.Reader) error {
	actual, err := Compute(expected.Algo, r)
	if err != nil {
		return err
	}
	if !actual.Equal(expected) {
		return lerr.New(lerr.KindBadHash, "hash mismatch: expected "+expected.String()+", got "+actual.String())
	}
	return nil
}
