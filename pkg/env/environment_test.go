package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerSetUpdatesInPlacePreservingOrder(t *testing.T) {
	l := NewLayer("test", Pair{Key: "A", Value: "1"}, Pair{Key: "B", Value: "2"})
	l.Set("A", "99")
	require.Len(t, l.Pairs, 2)
	assert.Equal(t, "A", l.Pairs[0].Key)
	assert.Equal(t, "99", l.Pairs[0].Value)
}

func TestLayerSetAppendsNewKey(t *testing.T) {
	l := NewLayer("test")
	l.Set("A", "1")
	l.Set("B", "2")
	assert.Equal(t, []Pair{{Key: "A", Value: "1"}, {Key: "B", Value: "2"}}, l.Pairs)
}

func TestLayerUnsetRemovesKey(t *testing.T) {
	l := NewLayer("test", Pair{Key: "A", Value: "1"}, Pair{Key: "B", Value: "2"})
	l.Unset("A")
	assert.Equal(t, []Pair{{Key: "B", Value: "2"}}, l.Pairs)
}

func TestFindPrefersLastLayer(t *testing.T) {
	e := Build(
		NewLayer("first", Pair{Key: "K", Value: "one"}),
		NewLayer("second", Pair{Key: "K", Value: "two"}),
	)
	v, ok := e.Find("K")
	require.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestFindMissingKey(t *testing.T) {
	e := Build(NewLayer("only", Pair{Key: "K", Value: "v"}))
	_, ok := e.Find("MISSING")
	assert.False(t, ok)
}

func TestToMapFoldsLayersLaterWins(t *testing.T) {
	e := Build(
		NewLayer("first", Pair{Key: "A", Value: "1"}, Pair{Key: "B", Value: "x"}),
		NewLayer("second", Pair{Key: "B", Value: "2"}),
	)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, e.ToMap())
}

func TestBuiltinLayerSetsFixedKeys(t *testing.T) {
	l := BuiltinLayer("1.2.3", "", "")
	m := map[string]string{}
	for _, p := range l.Pairs {
		m[p.Key] = p.Value
	}
	assert.Equal(t, "1.2.3", m["LEAF_VERSION"])
	assert.NotEmpty(t, m["LEAF_PLATFORM_SYSTEM"])
	assert.NotEmpty(t, m["LEAF_PLATFORM_MACHINE"])
	_, hasWorkspace := m["LEAF_WORKSPACE"]
	assert.False(t, hasWorkspace)
}

func TestBuiltinLayerSetsWorkspaceAndProfileWhenNonEmpty(t *testing.T) {
	l := BuiltinLayer("1.2.3", "myws", "myprofile")
	m := map[string]string{}
	for _, p := range l.Pairs {
		m[p.Key] = p.Value
	}
	assert.Equal(t, "myws", m["LEAF_WORKSPACE"])
	assert.Equal(t, "myprofile", m["LEAF_PROFILE"])
}

func TestEmitActivateWritesExportsPerLayer(t *testing.T) {
	e := Build(NewLayer("builtin", Pair{Key: "K", Value: "v"}))
	var buf strings.Builder
	require.NoError(t, e.EmitActivate(&buf))
	out := buf.String()
	assert.Contains(t, out, "# builtin")
	assert.Contains(t, out, `export K="v";`)
}

func TestEmitActivateSkipsEmptyLayers(t *testing.T) {
	e := Build(NewLayer("empty"), NewLayer("full", Pair{Key: "K", Value: "v"}))
	var buf strings.Builder
	require.NoError(t, e.EmitActivate(&buf))
	assert.NotContains(t, buf.String(), "# empty")
}

func TestMapLayerWrapsMap(t *testing.T) {
	l := MapLayer("user", map[string]string{"K": "v"})
	require.Len(t, l.Pairs, 1)
	assert.Equal(t, "K", l.Pairs[0].Key)
	assert.Equal(t, "v", l.Pairs[0].Value)
}
