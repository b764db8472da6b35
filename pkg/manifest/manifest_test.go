package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafpkg/leaf/pkg/identifier"
)

func TestParseValidManifest(t *testing.T) {
	data := []byte(`{
		"name": "foo",
		"version": "1.0.0",
		"description": "a package",
		"depends": ["bar_1.0.0(FOO=1)"],
		"requires": ["baz_2.0.0"],
		"install": [{"command": ["echo", "hi"]}]
	}`)

	m, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "foo", m.Identifier.Name)
	assert.Equal(t, "1.0.0", m.Identifier.Version)
	require.Len(t, m.Depends, 1)
	assert.Equal(t, "bar", m.Depends[0].ID.Name)
	require.Len(t, m.Requires, 1)
	assert.Equal(t, "baz", m.Requires[0].Name)
}

func TestParseRejectsLatestVersion(t *testing.T) {
	data := []byte(`{"name": "foo", "version": "latest"}`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseRejectsMalformedDependsEntry(t *testing.T) {
	data := []byte(`{"name": "foo", "version": "1.0.0", "depends": ["$bad(name"]}`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestValidateRejectsStepWithEmptyCommand(t *testing.T) {
	m := &Manifest{
		Identifier: mustIdentifier(t, "foo", "1.0.0"),
		Install:    []Step{{Label: "noop"}},
	}
	assert.Error(t, Validate(m))
}

func TestValidateRejectsConflictingFeatureKeys(t *testing.T) {
	m := &Manifest{
		Identifier: mustIdentifier(t, "foo", "1.0.0"),
		Features: map[string]*Feature{
			"a": {Key: "SHARED_KEY", Values: map[string]string{"x": "1"}},
			"b": {Key: "SHARED_KEY", Values: map[string]string{"y": "2"}},
		},
	}
	for name, f := range m.Features {
		f.Name = name
	}
	assert.Error(t, Validate(m))
}

func TestMarshalJSONRoundTrips(t *testing.T) {
	m := &Manifest{
		Identifier:  mustIdentifier(t, "foo", "1.0.0"),
		Description: "desc",
	}
	raw, err := m.MarshalJSON()
	require.NoError(t, err)

	reparsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, m.Identifier, reparsed.Identifier)
	assert.Equal(t, "desc", reparsed.Description)
}

func TestFeatureMergeAliasMergesValues(t *testing.T) {
	f := &Feature{Name: "f", Key: "K", Values: map[string]string{"a": "1"}}
	other := &Feature{Name: "f", Key: "K", Values: map[string]string{"b": "2"}}

	require.NoError(t, f.MergeAlias(other))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, f.Values)
}

func TestFeatureMergeAliasRejectsKeyConflict(t *testing.T) {
	f := &Feature{Name: "f", Key: "K1", Values: map[string]string{"a": "1"}}
	other := &Feature{Name: "f", Key: "K2", Values: map[string]string{"b": "2"}}

	assert.Error(t, f.MergeAlias(other))
}

func TestFeatureToggleAndQuery(t *testing.T) {
	f := &Feature{Name: "f", Key: "K", Values: map[string]string{"on": "1", "off": "0"}}

	v, err := f.Toggle("on")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, err = f.Toggle("missing")
	assert.Error(t, err)

	name, ok := f.Query("1")
	require.True(t, ok)
	assert.Equal(t, "on", name)

	_, ok = f.Query("unmatched")
	assert.False(t, ok)
}

func mustIdentifier(t *testing.T, name, version string) identifier.Identifier {
	t.Helper()
	id, err := identifier.New(name, version)
	require.NoError(t, err)
	return id
}
