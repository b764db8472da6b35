package ordjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPreservesInsertionOrder(t *testing.T) {
	o := New()
	require.NoError(t, o.Set("zebra", 1))
	require.NoError(t, o.Set("apple", 2))
	require.NoError(t, o.Set("mango", 3))

	assert.Equal(t, []string{"zebra", "apple", "mango"}, o.Keys())

	raw, err := o.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"zebra":1,"apple":2,"mango":3}`, string(raw))
}

func TestSetOnExistingKeyKeepsOriginalPosition(t *testing.T) {
	o := New()
	require.NoError(t, o.Set("a", 1))
	require.NoError(t, o.Set("b", 2))
	require.NoError(t, o.Set("a", 99))

	assert.Equal(t, []string{"a", "b"}, o.Keys())
	v, _ := o.Get("a")
	assert.JSONEq(t, "99", string(v))
}

func TestUnmarshalRoundTripPreservesOrder(t *testing.T) {
	src := `{"c":1,"a":2,"b":3}`
	o := New()
	require.NoError(t, json.Unmarshal([]byte(src), o))
	assert.Equal(t, []string{"c", "a", "b"}, o.Keys())

	out, err := o.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
}

func TestDelete(t *testing.T) {
	o := New()
	require.NoError(t, o.Set("a", 1))
	require.NoError(t, o.Set("b", 2))
	o.Delete("a")
	assert.Equal(t, []string{"b"}, o.Keys())
	_, ok := o.Get("a")
	assert.False(t, ok)
}

func TestAppendList(t *testing.T) {
	o := New()
	require.NoError(t, o.AppendList("depends", "foo"))
	require.NoError(t, o.AppendList("depends", "bar"))

	raw, ok := o.Get("depends")
	require.True(t, ok)
	var list []string
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, []string{"foo", "bar"}, list)
}

func TestMarshalIndent(t *testing.T) {
	o := New()
	require.NoError(t, o.Set("name", "foo"))
	out, err := MarshalIndent(o)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"foo\"\n}", string(out))
}

func TestMergeScalarOverwritesAndListAppends(t *testing.T) {
	dst := New()
	require.NoError(t, dst.Set("name", "old"))
	require.NoError(t, dst.Set("tags", []string{"a"}))

	src := New()
	require.NoError(t, src.Set("name", "new"))
	require.NoError(t, src.Set("tags", []string{"b"}))

	require.NoError(t, Merge(dst, src, true))

	name, _ := dst.GetString("name")
	assert.Equal(t, "new", name)

	raw, _ := dst.Get("tags")
	var tags []string
	require.NoError(t, json.Unmarshal(raw, &tags))
	assert.Equal(t, []string{"a", "b"}, tags)
}

func TestMergeNestedObjects(t *testing.T) {
	dst := New()
	inner := New()
	require.NoError(t, inner.Set("x", 1))
	innerRaw, err := inner.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, dst.SetRaw("info", innerRaw))

	src := New()
	innerSrc := New()
	require.NoError(t, innerSrc.Set("y", 2))
	innerSrcRaw, err := innerSrc.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, src.SetRaw("info", innerSrcRaw))

	require.NoError(t, Merge(dst, src, false))

	raw, _ := dst.Get("info")
	var merged Object
	require.NoError(t, json.Unmarshal(raw, &merged))
	assert.ElementsMatch(t, []string{"x", "y"}, merged.Keys())
}
