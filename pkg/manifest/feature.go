package manifest

import (
	"sort"
	"strings"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// Feature models a named toggle stored as key=value in some environment
// scope (spec.md §4.10). Values is an enum-name -> stored-value map.
type Feature struct {
	Name        string            `json:"-"`
	Key         string            `json:"key"`
	Values      map[string]string `json:"values"`
	Description string            `json:"description,omitempty"`
}

func validateFeature(f *Feature) error {
	if f.Key == "" {
		return lerr.New(lerr.KindInvalidInput, "feature "+f.Name+" has no key")
	}
	if len(f.Values) == 0 {
		return lerr.New(lerr.KindInvalidInput, "feature "+f.Name+" has no enum values")
	}
	return nil
}

// MergeAlias merges another manifest's declaration of the same feature
// name into f (spec.md §3: "Aliases merge across manifests with the same
// feature name; a conflict on key is fatal; duplicate enum values surface
// only on lookup"). Both features are assumed already validated.
func (f *Feature) MergeAlias(other *Feature) error {
	if f.Key != other.Key {
		return lerr.New(lerr.KindConflict, "feature "+f.Name+" key conflict: "+f.Key+" vs "+other.Key)
	}
	if f.Values == nil {
		f.Values = map[string]string{}
	}
	for enum, val := range other.Values {
		f.Values[enum] = val
	}
	if other.Description != "" && f.Description == "" {
		f.Description = other.Description
	}
	return nil
}

// Toggle returns the stored value for the given enum name, or an error if
// the enum is unknown.
func (f *Feature) Toggle(enum string) (string, error) {
	val, ok := f.Values[enum]
	if !ok {
		return "", lerr.New(lerr.KindNotFound, "unknown enum \""+enum+"\" for feature "+f.Name)
	}
	return val, nil
}

// Query returns the enum name(s) whose stored value matches current,
// joined by " | " when ambiguous (spec.md §4.10). Returns ("", false) if
// current matches no enum.
func (f *Feature) Query(current string) (string, bool) {
	var matches []string
	for enum, val := range f.Values {
		if val == current {
			matches = append(matches, enum)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return strings.Join(matches, " | "), true
}
