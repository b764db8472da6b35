// Package ordjson implements an insertion-order-preserving JSON object,
// used wherever leaf reads and re-emits a document whose key order must
// survive round-tripping (releng fragment merges, workspace config).
// encoding/json's map type has no ordering guarantee and no ordered-JSON
// library fits leaf's narrow need, so this rolls a small hand-written
// (de)serializer rather than reaching for a generic schema library,
// validating then marshaling by hand rather than delegating to a
// generic codec.
package ordjson

import (
	"bytes"
	"encoding/json"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// Object is a JSON object that remembers the order keys were first
// inserted, regardless of where Set is later called on an existing key.
type Object struct {
	keys   []string
	values map[string]json.RawMessage
}

// New returns an empty Object.
func New() *Object {
	return &Object{values: map[string]json.RawMessage{}}
}

// Keys returns the object's keys in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the raw JSON for key.
func (o *Object) Get(key string) (json.RawMessage, bool) {
	v, ok := o.values[key]
	return v, ok
}

// GetString returns key's value decoded as a string.
func (o *Object) GetString(key string) (string, bool) {
	raw, ok := o.Get(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Set stores value (marshaled to JSON) under key, appending key to the
// order if it's new.
func (o *Object) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return lerr.Wrap(lerr.KindInvalidInput, "failed to marshal value for key "+key, err)
	}
	return o.SetRaw(key, raw)
}

// SetRaw stores an already-encoded JSON value under key.
func (o *Object) SetRaw(key string, raw json.RawMessage) error {
	if o.values == nil {
		o.values = map[string]json.RawMessage{}
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = raw
	return nil
}

// AppendList appends value to the JSON array stored at key (creating it
// if absent). Used by releng's fragment merge, where list-valued keys
// accumulate across fragments rather than being overwritten.
func (o *Object) AppendList(key string, value any) error {
	raw, ok := o.Get(key)
	var list []json.RawMessage
	if ok {
		if err := json.Unmarshal(raw, &list); err != nil {
			return lerr.Wrap(lerr.KindInvalidInput, "key "+key+" is not a JSON array", err)
		}
	}
	item, err := json.Marshal(value)
	if err != nil {
		return lerr.Wrap(lerr.KindInvalidInput, "failed to marshal list item for key "+key, err)
	}
	list = append(list, item)
	return o.Set(key, list)
}

// Delete removes key.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// MarshalJSON renders the object with keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(o.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object while recording key order.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return lerr.New(lerr.KindInvalidInput, "expected a JSON object")
	}

	o.keys = nil
	o.values = map[string]json.RawMessage{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return lerr.New(lerr.KindInvalidInput, "expected string object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := o.SetRaw(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalIndent renders the object pretty-printed with a 2-space
// indent, matching leaf's releng pretty-print convention.
func MarshalIndent(o *Object) ([]byte, error) {
	compact, err := o.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Merge deep-merges src into dst in place: nested objects are merged
// recursively, scalars in src overwrite dst's; JSON arrays are appended rather than replaced when
// listAppend is true (releng's generate_manifest fragment semantics —
// spec.md §4.9: "deep-merge JSON fragments in order (lists append,
// scalars overwrite)").
func Merge(dst *Object, src *Object, listAppend bool) error {
	for _, key := range src.Keys() {
		srcRaw, _ := src.Get(key)
		dstRaw, exists := dst.Get(key)
		if !exists {
			if err := dst.SetRaw(key, srcRaw); err != nil {
				return err
			}
			continue
		}

		var dstObj, srcObj Object
		if json.Unmarshal(dstRaw, &dstObj) == nil && json.Unmarshal(srcRaw, &srcObj) == nil &&
			looksLikeObject(dstRaw) && looksLikeObject(srcRaw) {
			if err := Merge(&dstObj, &srcObj, listAppend); err != nil {
				return err
			}
			merged, err := dstObj.MarshalJSON()
			if err != nil {
				return err
			}
			if err := dst.SetRaw(key, merged); err != nil {
				return err
			}
			continue
		}

		if listAppend {
			var dstList, srcList []json.RawMessage
			if json.Unmarshal(dstRaw, &dstList) == nil && json.Unmarshal(srcRaw, &srcList) == nil &&
				looksLikeArray(dstRaw) && looksLikeArray(srcRaw) {
				merged, err := json.Marshal(append(dstList, srcList...))
				if err != nil {
					return err
				}
				if err := dst.SetRaw(key, merged); err != nil {
					return err
				}
				continue
			}
		}

		if err := dst.SetRaw(key, srcRaw); err != nil {
			return err
		}
	}
	return nil
}

func looksLikeObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func looksLikeArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
