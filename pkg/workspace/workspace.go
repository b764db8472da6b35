// Package workspace implements leaf's workspace/profile state machine
// (spec.md §4.8): a workspace directory holding leaf-workspace.json and
// a leaf-data/ folder with one subdirectory per profile plus a
// "current" symlink.
//
// The config document is kept as a pkg/ordjson.Object rather than a
// plain struct so "writes preserve key order" holds for the whole file,
// not just the top-level keys encoding/json would sort away.
package workspace

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leafpkg/leaf/pkg/env"
	lerr "github.com/leafpkg/leaf/pkg/errors"
	"github.com/leafpkg/leaf/pkg/fsutil"
	"github.com/leafpkg/leaf/pkg/identifier"
	"github.com/leafpkg/leaf/pkg/installer"
	"github.com/leafpkg/leaf/pkg/manifest"
	"github.com/leafpkg/leaf/pkg/ordjson"
	"github.com/leafpkg/leaf/pkg/resolver"
)

const (
	configFileName = "leaf-workspace.json"
	dataDirName    = "leaf-data"
	currentLink    = "current"
)

// ProfileConfig is a profile's config slice: the packages a user asked
// for and env overrides layered above the workspace's own env.
type ProfileConfig struct {
	Packages []string          `json:"packages,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
}

// Workspace wraps a directory containing leaf-workspace.json and
// leaf-data/.
type Workspace struct {
	Root string
	doc  *ordjson.Object
}

func isReservedProfileName(name string) bool {
	return name == "" || name == currentLink || strings.Contains(name, "/")
}

// Load reads root's leaf-workspace.json, tolerating a missing file as an
// empty config (spec.md §4.8: "reads are tolerant of missing optional
// keys").
func Load(root string) (*Workspace, error) {
	w := &Workspace{Root: root, doc: ordjson.New()}
	data, err := os.ReadFile(filepath.Join(root, configFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, lerr.Wrap(lerr.KindIoError, "failed to read workspace config", err)
	}
	if err := w.doc.UnmarshalJSON(data); err != nil {
		return nil, lerr.Wrap(lerr.KindInvalidInput, "failed to parse workspace config", err)
	}
	return w, nil
}

// Save writes the config document back, preserving key order.
func (w *Workspace) Save() error {
	data, err := ordjson.MarshalIndent(w.doc)
	if err != nil {
		return err
	}
	return fsutil.AtomicWriteFile(filepath.Join(w.Root, configFileName), data, 0o644)
}

// LeafMinVersion returns the workspace's declared minimum leaf version,
// if any.
func (w *Workspace) LeafMinVersion() (string, bool) {
	return w.doc.GetString("leafMinVersion")
}

// DataDir returns leaf-data's absolute path.
func (w *Workspace) DataDir() string {
	return filepath.Join(w.Root, dataDirName)
}

// ProfileDir returns a profile's data folder.
func (w *Workspace) ProfileDir(name string) string {
	return filepath.Join(w.DataDir(), name)
}

func (w *Workspace) profilesObject() *ordjson.Object {
	raw, ok := w.doc.Get("profiles")
	if !ok {
		return ordjson.New()
	}
	obj := ordjson.New()
	if err := obj.UnmarshalJSON(raw); err != nil {
		return ordjson.New()
	}
	return obj
}

func (w *Workspace) setProfilesObject(obj *ordjson.Object) error {
	raw, err := obj.MarshalJSON()
	if err != nil {
		return err
	}
	return w.doc.SetRaw("profiles", raw)
}

// ProfileNames lists configured profiles in declaration order.
func (w *Workspace) ProfileNames() []string {
	return w.profilesObject().Keys()
}

// GetProfile returns name's config slice.
func (w *Workspace) GetProfile(name string) (ProfileConfig, error) {
	raw, ok := w.profilesObject().Get(name)
	if !ok {
		return ProfileConfig{}, lerr.New(lerr.KindNotFound, "no such profile: "+name)
	}
	var pc ProfileConfig
	if err := json.Unmarshal(raw, &pc); err != nil {
		return ProfileConfig{}, lerr.Wrap(lerr.KindInvalidInput, "malformed profile "+name, err)
	}
	return pc, nil
}

// CreateProfile adds an empty profile config slice (spec.md §4.8:
// "absent -> create(name) -> present | add config slice; no folder
// yet").
func (w *Workspace) CreateProfile(name string) error {
	if isReservedProfileName(name) {
		return lerr.New(lerr.KindInvalidInput, "reserved or invalid profile name: "+name)
	}
	profiles := w.profilesObject()
	if _, exists := profiles.Get(name); exists {
		return lerr.New(lerr.KindConflict, "profile already exists: "+name)
	}
	if err := profiles.Set(name, ProfileConfig{}); err != nil {
		return err
	}
	return w.setProfilesObject(profiles)
}

// UpdateProfile merges package and env deltas into an existing profile
// without touching the filesystem (spec.md §4.8's update transition).
// addPackages/removePackages operate on exact query strings; envDelta
// entries with an empty value remove the key.
func (w *Workspace) UpdateProfile(name string, addPackages, removePackages []string, envDelta map[string]string) error {
	pc, err := w.GetProfile(name)
	if err != nil {
		return err
	}

	pkgSet := map[string]bool{}
	var pkgs []string
	for _, p := range pc.Packages {
		if !pkgSet[p] {
			pkgSet[p] = true
			pkgs = append(pkgs, p)
		}
	}
	removeSet := map[string]bool{}
	for _, p := range removePackages {
		removeSet[p] = true
	}
	filtered := pkgs[:0]
	for _, p := range pkgs {
		if !removeSet[p] {
			filtered = append(filtered, p)
		}
	}
	pkgs = filtered
	for _, p := range addPackages {
		if !pkgSet[p] {
			pkgSet[p] = true
			pkgs = append(pkgs, p)
		}
	}
	pc.Packages = pkgs

	if pc.Env == nil {
		pc.Env = map[string]string{}
	}
	for k, v := range envDelta {
		if v == "" {
			delete(pc.Env, k)
			continue
		}
		pc.Env[k] = v
	}

	profiles := w.profilesObject()
	if err := profiles.Set(name, pc); err != nil {
		return err
	}
	return w.setProfilesObject(profiles)
}

// DeleteProfile removes name's config slice and data folder, clearing
// the current symlink if it pointed there (spec.md §4.8's delete
// transition).
func (w *Workspace) DeleteProfile(name string) error {
	profiles := w.profilesObject()
	if _, exists := profiles.Get(name); !exists {
		return lerr.New(lerr.KindNotFound, "no such profile: "+name)
	}
	profiles.Delete(name)
	if err := w.setProfilesObject(profiles); err != nil {
		return err
	}

	if cur, ok := w.CurrentProfile(); ok && cur == name {
		os.Remove(w.currentLinkPath())
	}
	return fsutil.SafeRemoveAll(w.ProfileDir(name))
}

func (w *Workspace) currentLinkPath() string {
	return filepath.Join(w.DataDir(), currentLink)
}

// CurrentProfile reads the current symlink, if any.
func (w *Workspace) CurrentProfile() (string, bool) {
	target, err := os.Readlink(w.currentLinkPath())
	if err != nil {
		return "", false
	}
	return filepath.Base(target), true
}

// Switch atomically re-points the current symlink to name (spec.md
// §4.8's switch transition): link a temp name, then rename over the old
// one.
func (w *Workspace) Switch(name string) error {
	profiles := w.profilesObject()
	if _, exists := profiles.Get(name); !exists {
		return lerr.New(lerr.KindNotFound, "no such profile: "+name)
	}
	if err := fsutil.EnsureDir(w.DataDir(), 0o755); err != nil {
		return err
	}

	tmp := w.currentLinkPath() + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(w.ProfileDir(name), tmp); err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to create current symlink", err)
	}
	if err := os.Rename(tmp, w.currentLinkPath()); err != nil {
		os.Remove(tmp)
		return lerr.Wrap(lerr.KindIoError, "failed to re-point current symlink", err)
	}
	return nil
}

// ResolveProfile parses name's package queries against available and
// returns the seed identifiers sync should install (spec.md §4.8:
// "unpinned names resolve to latest at sync time").
func ResolveProfile(pc ProfileConfig, available resolver.Source) ([]identifier.Identifier, error) {
	out := make([]identifier.Identifier, 0, len(pc.Packages))
	for _, query := range pc.Packages {
		req, err := identifier.ParseQuery(query)
		if err != nil {
			return nil, err
		}
		resolved, err := resolver.ResolveLatest(req, available)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// shortName is the symlink basename under a profile's data folder: the
// package name without its version (spec.md §4.8's "<short-name>").
func shortName(id identifier.Identifier) string {
	return id.Name
}

// Sync installs a profile's resolved identifiers and rebuilds its
// leaf-data/<name>/<short> symlinks to the store (spec.md §4.8's sync
// transition). It returns the resolved seed identifiers.
func (w *Workspace) Sync(
	ctx context.Context,
	name string,
	catalogue installer.Catalogue,
	inst *installer.Installer,
	storeRoot string,
	installed map[string]manifest.InstalledPackage,
	composed *env.Environment,
) ([]identifier.Identifier, error) {
	pc, err := w.GetProfile(name)
	if err != nil {
		return nil, err
	}

	available := resolver.NewSourceFromAvailable(catalogue)
	seeds, err := ResolveProfile(pc, available)
	if err != nil {
		return nil, err
	}

	if err := inst.Install(ctx, seeds, catalogue, installed, composed, false); err != nil {
		return nil, err
	}

	if err := w.rebuildSymlinks(name, seeds, storeRoot); err != nil {
		return nil, err
	}
	return seeds, nil
}

func (w *Workspace) rebuildSymlinks(name string, resolved []identifier.Identifier, storeRoot string) error {
	profileDir := w.ProfileDir(name)
	if err := fsutil.EnsureDir(profileDir, 0o755); err != nil {
		return err
	}
	for _, id := range resolved {
		linkPath := filepath.Join(profileDir, shortName(id))
		target := filepath.Join(storeRoot, id.String())
		os.Remove(linkPath)
		if err := os.Symlink(target, linkPath); err != nil {
			return lerr.Wrap(lerr.KindIoError, "failed to create profile symlink for "+id.String(), err)
		}
	}
	return nil
}

// IsInSync reports whether every identifier in resolved has an installed
// store directory and a correctly-targeted symlink under the profile's
// data folder (spec.md §4.8's in-sync definition).
func (w *Workspace) IsInSync(name string, resolved []identifier.Identifier, storeRoot string) bool {
	profileDir := w.ProfileDir(name)
	for _, id := range resolved {
		target := filepath.Join(storeRoot, id.String())
		if !fsutil.DirExists(target) {
			return false
		}
		linkPath := filepath.Join(profileDir, shortName(id))
		got, err := os.Readlink(linkPath)
		if err != nil || got != target {
			return false
		}
	}
	return true
}

// EnvLayer builds the workspace-scoped env layer from the config's
// top-level env{} object (spec.md §4.2's layer order: builtin -> user ->
// workspace -> profile -> per-package).
func (w *Workspace) EnvLayer() env.Layer {
	return objectEnvLayer("workspace", w.doc)
}

// ProfileEnvLayer builds name's profile-scoped env layer.
func (w *Workspace) ProfileEnvLayer(name string) (env.Layer, error) {
	pc, err := w.GetProfile(name)
	if err != nil {
		return env.Layer{}, err
	}
	l := env.NewLayer("profile:" + name)
	keys := make([]string, 0, len(pc.Env))
	for k := range pc.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l.Set(k, pc.Env[k])
	}
	return l, nil
}

func objectEnvLayer(name string, doc *ordjson.Object) env.Layer {
	l := env.NewLayer(name)
	raw, ok := doc.Get("env")
	if !ok {
		return l
	}
	obj := ordjson.New()
	if err := obj.UnmarshalJSON(raw); err != nil {
		return l
	}
	for _, k := range obj.Keys() {
		if v, ok := obj.GetString(k); ok {
			l.Set(k, v)
		}
	}
	return l
}
