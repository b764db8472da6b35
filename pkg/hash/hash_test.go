package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	h, err := Parse("sha256:AB12")
	require.NoError(t, err)
	assert.Equal(t, SHA256, h.Algo)
	assert.Equal(t, "ab12", h.Hex)
}

func TestParseRejectsMissingColon(t *testing.T) {
	_, err := Parse("sha256ab12")
	assert.Error(t, err)
}

func TestParseRejectsUnsupportedAlgo(t *testing.T) {
	_, err := Parse("md5:ab12")
	assert.Error(t, err)
}

func TestParseRejectsInvalidHex(t *testing.T) {
	_, err := Parse("sha256:nothex")
	assert.Error(t, err)
}

func TestStringRendersAlgoColonHex(t *testing.T) {
	h := Hash{Algo: SHA384, Hex: "deadbeef"}
	assert.Equal(t, "sha384:deadbeef", h.String())
}

func TestEqualIsCaseInsensitiveOnHex(t *testing.T) {
	a := Hash{Algo: SHA256, Hex: "ABCD"}
	b := Hash{Algo: SHA256, Hex: "abcd"}
	assert.True(t, a.Equal(b))
}

func TestComputeAndVerifyRoundTrip(t *testing.T) {
	data := "the quick brown fox"
	h, err := Compute(SHA256, strings.NewReader(data))
	require.NoError(t, err)

	assert.NoError(t, Verify(h, strings.NewReader(data)))
}

func TestVerifyFailsOnMismatch(t *testing.T) {
	expected, err := Compute(SHA256, strings.NewReader("original"))
	require.NoError(t, err)

	err = Verify(expected, strings.NewReader("tampered"))
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "hash mismatch"))
}

func TestComputeDefaultAlgoIsSHA384(t *testing.T) {
	assert.Equal(t, SHA384, Default)
}
