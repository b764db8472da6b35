// Package manifest implements leaf's Manifest model (spec.md §3/§4.1):
// immutable-after-load package metadata, conditional and unconditional
// dependencies, install/sync/uninstall step lists, and named features.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	lerr "github.com/leafpkg/leaf/pkg/errors"
	"github.com/leafpkg/leaf/pkg/identifier"
)

// Step is a single command in an install/sync/uninstall step list.
type Step struct {
	Label      string            `json:"label,omitempty"`
	Command    []string          `json:"command"`
	Env        map[string]string `json:"env,omitempty"`
	Verbose    bool              `json:"verbose,omitempty"`
	IgnoreFail bool              `json:"ignoreFail,omitempty"`
}

// Manifest is leaf's immutable-after-load package description.
type Manifest struct {
	Identifier  identifier.Identifier `json:"-"`
	Description string                `json:"description,omitempty"`
	Date        string                `json:"date,omitempty"`
	Master      bool                  `json:"master,omitempty"`

	LeafMinVersion string   `json:"leafMinVersion,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	AutoUpgrade    bool     `json:"upgrade,omitempty"`

	Depends     []ConditionalIdentifier `json:"depends,omitempty"`
	Requires    []identifier.Identifier `json:"-"`
	RawRequires []string                `json:"-"`

	Install   []Step `json:"install,omitempty"`
	Sync      []Step `json:"sync,omitempty"`
	Uninstall []Step `json:"uninstall,omitempty"`

	Features map[string]*Feature `json:"-"`

	// Name and Version carry the "info" sub-object fields used by the releng
	// index/manifest generator (name/version folded into Identifier).
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// jsonManifest mirrors Manifest's on-disk shape (name/version top-level,
// requires as plain strings, features as a nested object) so Manifest
// itself can keep typed fields while JSON (de)serialization stays a
// thin translation layer.
type jsonManifest struct {
	Name           string              `json:"name"`
	Version        string              `json:"version"`
	Description    string              `json:"description,omitempty"`
	Date           string              `json:"date,omitempty"`
	Master         bool                `json:"master,omitempty"`
	LeafMinVersion string              `json:"leafMinVersion,omitempty"`
	Tags           []string            `json:"tags,omitempty"`
	AutoUpgrade    bool                `json:"upgrade,omitempty"`
	Depends        []string            `json:"depends,omitempty"`
	Requires       []string            `json:"requires,omitempty"`
	Install        []Step              `json:"install,omitempty"`
	Sync           []Step              `json:"sync,omitempty"`
	Uninstall      []Step              `json:"uninstall,omitempty"`
	Features       map[string]*Feature `json:"features,omitempty"`
}

// Load reads and validates a manifest.json file from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, lerr.Wrap(lerr.KindIoError, "failed to read manifest "+path, err)
	}
	return Parse(data)
}

// Parse decodes manifest.json bytes into a validated Manifest.
func Parse(data []byte) (*Manifest, error) {
	var raw jsonManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, lerr.Wrap(lerr.KindInvalidInput, "malformed manifest JSON", err)
	}

	id, err := identifier.New(raw.Name, raw.Version)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Identifier:     id,
		Name:           raw.Name,
		Version:        raw.Version,
		Description:    raw.Description,
		Date:           raw.Date,
		Master:         raw.Master,
		LeafMinVersion: raw.LeafMinVersion,
		Tags:           raw.Tags,
		AutoUpgrade:    raw.AutoUpgrade,
		Install:        raw.Install,
		Sync:           raw.Sync,
		Uninstall:      raw.Uninstall,
		Features:       raw.Features,
		RawRequires:    raw.Requires,
	}

	for _, d := range raw.Depends {
		ci, err := ParseConditionalIdentifier(d)
		if err != nil {
			return nil, lerr.Wrap(lerr.KindInvalidInput, "invalid depends entry \""+d+"\"", err)
		}
		m.Depends = append(m.Depends, ci)
	}
	for _, r := range raw.Requires {
		rid, err := parseRequired(r)
		if err != nil {
			return nil, err
		}
		m.Requires = append(m.Requires, rid)
	}
	for name, f := range m.Features {
		f.Name = name
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the invariants of spec.md §3/§4.1: the version must
// never be "latest", steps carry at least a command, and feature keys are
// unique. Depends/requires entries are checked against their grammar by
// Parse, not here.
func Validate(m *Manifest) error {
	if m.Identifier.IsQuery() {
		return lerr.New(lerr.KindInvalidInput, "manifest version cannot be \"latest\": "+m.Identifier.Name)
	}
	for _, s := range m.Install {
		if err := validateStep(s); err != nil {
			return err
		}
	}
	for _, s := range m.Sync {
		if err := validateStep(s); err != nil {
			return err
		}
	}
	for _, s := range m.Uninstall {
		if err := validateStep(s); err != nil {
			return err
		}
	}
	seenKeys := map[string]string{}
	for name, f := range m.Features {
		if err := validateFeature(f); err != nil {
			return err
		}
		if owner, ok := seenKeys[f.Key]; ok && owner != name {
			return lerr.New(lerr.KindConflict, fmt.Sprintf("feature key %q used by both %q and %q", f.Key, owner, name))
		}
		seenKeys[f.Key] = name
	}
	return nil
}

func validateStep(s Step) error {
	if len(s.Command) == 0 {
		return lerr.New(lerr.KindInvalidInput, "step has an empty command")
	}
	return nil
}

// MarshalJSON serializes back to the on-disk manifest.json shape.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	raw := jsonManifest{
		Name:           m.Identifier.Name,
		Version:        m.Identifier.Version,
		Description:    m.Description,
		Date:           m.Date,
		Master:         m.Master,
		LeafMinVersion: m.LeafMinVersion,
		Tags:           m.Tags,
		AutoUpgrade:    m.AutoUpgrade,
		Install:        m.Install,
		Sync:           m.Sync,
		Uninstall:      m.Uninstall,
		Features:       m.Features,
	}
	for _, d := range m.Depends {
		raw.Depends = append(raw.Depends, d.String())
	}
	for _, r := range m.Requires {
		raw.Requires = append(raw.Requires, r.String())
	}
	return json.Marshal(raw)
}

// Clock lets tests freeze CreatedAt-style timestamps; production uses
// time.Now. Only used by releng, kept here since Manifest.Date is a
// free-form string in spec.md and releng stamps it.
var Clock = time.Now
