// Package feature implements leaf's feature toggle/query surface
// (spec.md §4.10): a Registry aggregates Feature declarations across
// every installed manifest (reusing pkg/manifest.Feature's alias-merge),
// then resolves toggle/query requests against a caller-chosen env scope.
package feature

import (
	"sort"

	"github.com/leafpkg/leaf/pkg/env"
	lerr "github.com/leafpkg/leaf/pkg/errors"
	"github.com/leafpkg/leaf/pkg/manifest"
)

// Registry aggregates every Feature declared by the manifests it has
// seen, merging same-named features across packages.
type Registry struct {
	features map[string]*manifest.Feature
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{features: map[string]*manifest.Feature{}}
}

// Add folds m's Features into the registry, merging aliases of features
// already seen under the same name (spec.md §3: "Aliases merge across
// manifests with the same feature name").
func (r *Registry) Add(m *manifest.Manifest) error {
	for name, f := range m.Features {
		existing, ok := r.features[name]
		if !ok {
			cp := *f
			r.features[name] = &cp
			continue
		}
		if err := existing.MergeAlias(f); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the named feature.
func (r *Registry) Get(name string) (*manifest.Feature, error) {
	f, ok := r.features[name]
	if !ok {
		return nil, lerr.New(lerr.KindNotFound, "unknown feature: "+name)
	}
	return f, nil
}

// Names lists every known feature name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.features))
	for n := range r.features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolved is the outcome of a Toggle call: the env key to mutate in the
// caller-chosen scope, and either a value to set or Unset=true to remove
// the key from that scope instead (spec.md §4.10: toggle "sets or unsets
// the key").
type Resolved struct {
	Key   string
	Value string
	Unset bool
}

// Toggle resolves enum against the named feature. An empty enum means
// "unset the key" rather than select a value.
func (r *Registry) Toggle(name, enum string) (Resolved, error) {
	f, err := r.Get(name)
	if err != nil {
		return Resolved{}, err
	}
	if enum == "" {
		return Resolved{Key: f.Key, Unset: true}, nil
	}
	value, err := f.Toggle(enum)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Key: f.Key, Value: value}, nil
}

// Apply writes a Resolved toggle into layer.
func Apply(layer *env.Layer, r Resolved) {
	if r.Unset {
		layer.Unset(r.Key)
		return
	}
	layer.Set(r.Key, r.Value)
}

// Query reports the enum name(s) (joined by " | " when ambiguous) whose
// stored value matches the named feature's key in the composed
// environment. The bool is false if the key is unset or matches no enum.
func (r *Registry) Query(name string, e *env.Environment) (string, bool, error) {
	f, err := r.Get(name)
	if err != nil {
		return "", false, err
	}
	current, ok := e.Find(f.Key)
	if !ok {
		return "", false, nil
	}
	enum, matched := f.Query(current)
	return enum, matched, nil
}
