package gpgverify

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyserverDefault(t *testing.T) {
	os.Unsetenv("LEAF_GPG_KEYSERVER")
	assert.Equal(t, DefaultKeyserver, Keyserver())
}

func TestKeyserverOverride(t *testing.T) {
	t.Setenv("LEAF_GPG_KEYSERVER", "keys.example.org")
	assert.Equal(t, "keys.example.org", Keyserver())
}

func TestDefaultHomeDir(t *testing.T) {
	assert.Equal(t, "/config/gpg", DefaultHomeDir("/config"))
}

func TestVerifyLocalMissingBinary(t *testing.T) {
	t.Setenv("LEAF_GPG_BIN", "leaf-gpg-does-not-exist")
	err := VerifyLocal("sig.asc", "artifact.tar", "")
	assert.Error(t, err)
}
