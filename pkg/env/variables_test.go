package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteCurrentPackageCoords(t *testing.T) {
	r := &VariableResolver{Current: PackageCoord{Name: "foo", Version: "1.0.0", Folder: "/store/foo_1.0.0"}}

	out, err := r.Substitute("@{NAME}-@{VERSION} at @{DIR}")
	require.NoError(t, err)
	assert.Equal(t, "foo-1.0.0 at /store/foo_1.0.0", out)
}

func TestSubstituteOtherPackageCoords(t *testing.T) {
	r := &VariableResolver{
		Current: PackageCoord{Name: "foo"},
		Others: map[string]PackageCoord{
			"bar_2.0.0": {Name: "bar", Version: "2.0.0", Folder: "/store/bar_2.0.0"},
		},
	}

	out, err := r.Substitute("@{DIR:bar_2.0.0}")
	require.NoError(t, err)
	assert.Equal(t, "/store/bar_2.0.0", out)
}

func TestSubstituteUnknownPackageFails(t *testing.T) {
	r := &VariableResolver{Current: PackageCoord{Name: "foo"}}
	_, err := r.Substitute("@{NAME:missing}")
	assert.Error(t, err)
}

func TestSubstituteUnknownCoordKeyFails(t *testing.T) {
	r := &VariableResolver{Current: PackageCoord{Name: "foo"}}
	_, err := r.Substitute("@{BOGUS}")
	assert.Error(t, err)
}

func TestSubstituteSelfReferenceByIdentifier(t *testing.T) {
	r := &VariableResolver{Current: PackageCoord{Name: "foo", Version: "1.0.0"}}
	out, err := r.Substitute("@{VERSION:foo_1.0.0}")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", out)
}

func TestSubstituteProcessEnvResolvesSetVariable(t *testing.T) {
	t.Setenv("LEAF_TEST_VAR", "hello")
	out, err := SubstituteProcessEnv("value=#{LEAF_TEST_VAR}")
	require.NoError(t, err)
	assert.Equal(t, "value=hello", out)
}

func TestSubstituteProcessEnvMissingVariableFails(t *testing.T) {
	_, err := SubstituteProcessEnv("value=#{LEAF_TEST_MISSING_VAR}")
	assert.Error(t, err)
}
