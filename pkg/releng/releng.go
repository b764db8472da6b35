// Package releng implements leaf's package-building and index-generation
// tooling (spec.md §4.9): create_package, generate_manifest and
// generate_index. It borrows pkg/package/loader.go's validate-then-write
// shape (parse and validate a manifest before ever touching the
// filesystem) but emits JSON via pkg/ordjson rather than YAML, since JSON
// is leaf's sole persisted document format.
package releng

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leafpkg/leaf/pkg/archive"
	"github.com/leafpkg/leaf/pkg/env"
	lerr "github.com/leafpkg/leaf/pkg/errors"
	"github.com/leafpkg/leaf/pkg/fsutil"
	"github.com/leafpkg/leaf/pkg/hash"
	"github.com/leafpkg/leaf/pkg/identifier"
	"github.com/leafpkg/leaf/pkg/manifest"
	"github.com/leafpkg/leaf/pkg/ordjson"
)

const extInfoExtension = ".info"

// CreatePackageOptions configures create_package (spec.md §4.9).
type CreatePackageOptions struct {
	Folder         string
	Output         string
	ExtraTarArgs   []string
	ForceTimestamp *time.Time
	ForceRootOwner bool
	StoreInfo      bool
}

// CreatePackage packages Folder (which must contain a manifest.json) into
// a reproducible archive at Output, optionally writing a "<Output>.info"
// sidecar for generate_index to pick up later without re-reading the
// archive.
func CreatePackage(opts CreatePackageOptions) error {
	manifestPath := filepath.Join(opts.Folder, "manifest.json")
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	if err := archive.Create(opts.Folder, opts.Output, archive.CreateOptions{
		ForceTimestamp: opts.ForceTimestamp,
		ForceRootOwner: opts.ForceRootOwner,
		ExtraArgs:      opts.ExtraTarArgs,
	}); err != nil {
		return err
	}

	if !opts.StoreInfo {
		return nil
	}
	node, err := buildPackageNode(opts.Output, m)
	if err != nil {
		return err
	}
	data, err := ordjson.MarshalIndent(node)
	if err != nil {
		return lerr.Wrap(lerr.KindInvalidInput, "failed to encode info sidecar", err)
	}
	return fsutil.AtomicWriteFile(opts.Output+extInfoExtension, data, 0o644)
}

// buildPackageNode computes {hash, size, info} for an already-built
// archive, used both when storing a sidecar at create time and when
// generate_index has to fall back to reading the archive directly.
func buildPackageNode(artifactPath string, m *manifest.Manifest) (*ordjson.Object, error) {
	f, err := os.Open(artifactPath)
	if err != nil {
		return nil, lerr.Wrap(lerr.KindIoError, "failed to open artifact "+artifactPath, err)
	}
	defer f.Close()

	h, err := hash.Compute(hash.Default, f)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		return nil, lerr.Wrap(lerr.KindIoError, "failed to stat artifact "+artifactPath, err)
	}

	node := ordjson.New()
	node.Set("hash", h.String())
	node.Set("size", st.Size())

	info, err := manifestInfoNode(m)
	if err != nil {
		return nil, err
	}
	infoRaw, err := info.MarshalJSON()
	if err != nil {
		return nil, err
	}
	node.SetRaw("info", infoRaw)
	return node, nil
}

// manifestInfoNode renders a Manifest's "info" sub-object in the field
// order generate_index/create_package expect.
func manifestInfoNode(m *manifest.Manifest) (*ordjson.Object, error) {
	info := ordjson.New()
	info.Set("name", m.Identifier.Name)
	info.Set("version", m.Identifier.Version)
	if m.Description != "" {
		info.Set("description", m.Description)
	}
	if m.Date != "" {
		info.Set("date", m.Date)
	}
	if m.Master {
		info.Set("master", m.Master)
	}
	if m.LeafMinVersion != "" {
		info.Set("leafMinVersion", m.LeafMinVersion)
	}
	if len(m.Requires) > 0 {
		var reqs []string
		for _, r := range m.Requires {
			reqs = append(reqs, r.String())
		}
		info.Set("requires", reqs)
	}
	if len(m.Depends) > 0 {
		var deps []string
		for _, d := range m.Depends {
			deps = append(deps, d.String())
		}
		info.Set("depends", deps)
	}
	if len(m.Tags) > 0 {
		info.Set("tags", m.Tags)
	}
	if m.AutoUpgrade {
		info.Set("upgrade", m.AutoUpgrade)
	}
	return info, nil
}

// ManifestInfoOverlay is the subset of manifest fields generate_manifest
// will overlay onto a merged fragment set (spec.md §4.9's "recognised
// keys only"). Zero-valued fields are left untouched.
type ManifestInfoOverlay struct {
	Name           string
	Version        string
	Description    string
	Master         *bool
	Date           string
	Requires       []string
	Depends        []string
	Tags           []string
	LeafMinVersion string
	AutoUpgrade    *bool
}

// GenerateManifestOptions configures generate_manifest.
type GenerateManifestOptions struct {
	Output      string
	Fragments   []string
	Info        ManifestInfoOverlay
	ResolveEnv  bool
}

// GenerateManifest deep-merges Fragments in order, overlays Info's
// recognized keys, optionally resolves "#{VAR}" references against the
// process environment, validates the result as a Manifest, and writes it
// to Output.
func GenerateManifest(opts GenerateManifestOptions) error {
	model := ordjson.New()
	for _, path := range opts.Fragments {
		data, err := os.ReadFile(path)
		if err != nil {
			return lerr.Wrap(lerr.KindIoError, "failed to read fragment "+path, err)
		}
		fragment := ordjson.New()
		if err := fragment.UnmarshalJSON(data); err != nil {
			return lerr.Wrap(lerr.KindInvalidInput, "malformed fragment "+path, err)
		}
		if err := ordjson.Merge(model, fragment, true); err != nil {
			return lerr.Wrap(lerr.KindInvalidInput, "failed to merge fragment "+path, err)
		}
	}

	if err := overlayInfo(model, opts.Info); err != nil {
		return err
	}

	data, err := ordjson.MarshalIndent(model)
	if err != nil {
		return lerr.Wrap(lerr.KindInvalidInput, "failed to encode manifest", err)
	}

	if opts.ResolveEnv {
		resolved, err := env.SubstituteProcessEnv(string(data))
		if err != nil {
			return lerr.Wrap(lerr.KindInvalidInput, "unresolved #{VAR} in generated manifest", err)
		}
		data = []byte(resolved)
	}

	if _, err := manifest.Parse(data); err != nil {
		return lerr.Wrap(lerr.KindInvalidInput, "generated manifest failed validation", err)
	}

	return fsutil.AtomicWriteFile(opts.Output, data, 0o644)
}

func overlayInfo(model *ordjson.Object, info ManifestInfoOverlay) error {
	if info.Name != "" {
		if err := model.Set("name", info.Name); err != nil {
			return err
		}
	}
	if info.Version != "" {
		if err := model.Set("version", info.Version); err != nil {
			return err
		}
	}
	if info.Description != "" {
		if err := model.Set("description", info.Description); err != nil {
			return err
		}
	}
	if info.Master != nil {
		if err := model.Set("master", *info.Master); err != nil {
			return err
		}
	}
	if info.Date != "" {
		if err := model.Set("date", info.Date); err != nil {
			return err
		}
	}
	if info.LeafMinVersion != "" {
		if err := model.Set("leafMinVersion", info.LeafMinVersion); err != nil {
			return err
		}
	}
	if info.AutoUpgrade != nil {
		if err := model.Set("upgrade", *info.AutoUpgrade); err != nil {
			return err
		}
	}
	if err := mergeDedupedList(model, "requires", info.Requires, validateRequires); err != nil {
		return err
	}
	if err := mergeDedupedList(model, "depends", info.Depends, validateDepends); err != nil {
		return err
	}
	if err := mergeDedupedList(model, "tags", info.Tags, nil); err != nil {
		return err
	}
	return nil
}

// mergeDedupedList appends extra's entries onto the list already stored
// at key, preserving order and skipping duplicates, validating each new
// entry with validate if given.
func mergeDedupedList(model *ordjson.Object, key string, extra []string, validate func(string) error) error {
	if len(extra) == 0 {
		return nil
	}
	existing, _ := model.Get(key)
	var list []string
	if existing != nil {
		if err := json.Unmarshal(existing, &list); err != nil {
			return lerr.Wrap(lerr.KindInvalidInput, "key "+key+" is not a string list", err)
		}
	}
	seen := map[string]bool{}
	for _, v := range list {
		seen[v] = true
	}
	for _, v := range extra {
		if seen[v] {
			continue
		}
		if validate != nil {
			if err := validate(v); err != nil {
				return err
			}
		}
		list = append(list, v)
		seen[v] = true
	}
	return model.Set(key, list)
}

func validateRequires(s string) error {
	_, err := identifier.Parse(s)
	return err
}

func validateDepends(s string) error {
	_, err := manifest.ParseConditionalIdentifier(s)
	return err
}

// GenerateIndexOptions configures generate_index.
type GenerateIndexOptions struct {
	Output           string
	Artifacts        []string
	Name             string
	Description      string
	UseExternalInfo  bool
	UseExtraTags     bool
	Pretty           bool
}

// GenerateIndex builds an index.json referencing Artifacts, preferring an
// external "<artifact>.info" sidecar over reading the archive directly.
func GenerateIndex(opts GenerateIndexOptions) error {
	info := ordjson.New()
	if opts.Name != "" {
		info.Set("name", opts.Name)
	}
	if opts.Description != "" {
		info.Set("description", opts.Description)
	}
	info.Set("date", manifest.Clock().UTC().Format("2006-01-02 15:04:05"))

	outDir := filepath.Dir(opts.Output)
	seen := map[string]seenArtifact{}
	var order []string
	packages := ordjson.New()

	for _, artifactPath := range opts.Artifacts {
		node, err := loadArtifactNode(artifactPath, opts.UseExternalInfo)
		if err != nil {
			return err
		}

		idStr, err := artifactIdentifier(node)
		if err != nil {
			return err
		}
		if id, parseErr := identifier.Parse(idStr); parseErr == nil && id.IsQuery() {
			return lerr.New(lerr.KindInvalidInput, "artifact "+artifactPath+" has reserved version \"latest\"")
		}

		artifactHash, _ := node.GetString("hash")
		if prior, exists := seen[idStr]; exists {
			if prior.hash != artifactHash {
				return lerr.New(lerr.KindConflict, "artifact "+idStr+" has multiple different archives with the same identifier")
			}
			continue
		}

		if opts.UseExtraTags {
			if err := mergeExtraTags(node, artifactPath); err != nil {
				return err
			}
		}

		relPath, err := filepath.Rel(outDir, artifactPath)
		if err != nil {
			relPath = artifactPath
		}
		if err := node.Set("file", filepath.ToSlash(relPath)); err != nil {
			return err
		}

		seen[idStr] = seenArtifact{hash: artifactHash}
		order = append(order, idStr)
		if err := packages.Set(idStr, node); err != nil {
			return err
		}
	}

	root := ordjson.New()
	infoRaw, err := info.MarshalJSON()
	if err != nil {
		return err
	}
	root.SetRaw("info", infoRaw)

	var list []*ordjson.Object
	for _, id := range order {
		raw, _ := packages.Get(id)
		obj := ordjson.New()
		if err := obj.UnmarshalJSON(raw); err != nil {
			return err
		}
		list = append(list, obj)
	}
	if err := root.Set("packages", list); err != nil {
		return err
	}

	var data []byte
	if opts.Pretty {
		data, err = ordjson.MarshalIndent(root)
	} else {
		data, err = root.MarshalJSON()
	}
	if err != nil {
		return lerr.Wrap(lerr.KindInvalidInput, "failed to encode index", err)
	}
	return fsutil.AtomicWriteFile(opts.Output, data, 0o644)
}

type seenArtifact struct {
	hash string
}

func loadArtifactNode(artifactPath string, useExternalInfo bool) (*ordjson.Object, error) {
	if useExternalInfo {
		infoPath := artifactPath + extInfoExtension
		if fsutil.FileExists(infoPath) {
			data, err := os.ReadFile(infoPath)
			if err != nil {
				return nil, lerr.Wrap(lerr.KindIoError, "failed to read "+infoPath, err)
			}
			node := ordjson.New()
			if err := node.UnmarshalJSON(data); err != nil {
				return nil, lerr.Wrap(lerr.KindInvalidInput, "malformed info sidecar "+infoPath, err)
			}
			return node, nil
		}
	}

	return archiveManifestInfo(artifactPath)
}

// archiveManifestInfo falls back to extracting artifactPath into a
// scratch directory and reading its manifest.json, for artifacts built
// without an external .info sidecar. It reuses pkg/archive's extraction
// path rather than carrying a second tar reader.
func archiveManifestInfo(artifactPath string) (*ordjson.Object, error) {
	scratchRoot, err := os.MkdirTemp("", "leaf-releng-")
	if err != nil {
		return nil, lerr.Wrap(lerr.KindIoError, "failed to create scratch dir", err)
	}
	defer fsutil.SafeRemoveAll(scratchRoot)

	extracted, err := archive.Extract(artifactPath, scratchRoot, "artifact", nil)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(filepath.Join(extracted, "manifest.json"))
	if err != nil {
		return nil, err
	}
	return buildPackageNode(artifactPath, m)
}

func artifactIdentifier(node *ordjson.Object) (string, error) {
	infoRaw, ok := node.Get("info")
	if !ok {
		return "", lerr.New(lerr.KindInvalidInput, "artifact node missing \"info\"")
	}
	info := ordjson.New()
	if err := info.UnmarshalJSON(infoRaw); err != nil {
		return "", lerr.Wrap(lerr.KindInvalidInput, "malformed info node", err)
	}
	name, _ := info.GetString("name")
	version, _ := info.GetString("version")
	if name == "" || version == "" {
		return "", lerr.New(lerr.KindInvalidInput, "info node missing name/version")
	}
	return name + "_" + version, nil
}

func mergeExtraTags(node *ordjson.Object, artifactPath string) error {
	tagsPath := artifactPath + ".tags"
	if !fsutil.FileExists(tagsPath) {
		return nil
	}
	data, err := os.ReadFile(tagsPath)
	if err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to read "+tagsPath, err)
	}

	infoRaw, _ := node.Get("info")
	info := ordjson.New()
	if err := info.UnmarshalJSON(infoRaw); err != nil {
		return err
	}
	existingRaw, _ := info.Get("tags")
	var tags []string
	if existingRaw != nil {
		json.Unmarshal(existingRaw, &tags)
	}
	seen := map[string]bool{}
	for _, t := range tags {
		seen[t] = true
	}
	for _, line := range strings.Split(string(data), "\n") {
		tag := strings.TrimSpace(line)
		if tag == "" || seen[tag] {
			continue
		}
		tags = append(tags, tag)
		seen[tag] = true
	}
	if err := info.Set("tags", tags); err != nil {
		return err
	}
	mergedInfo, err := info.MarshalJSON()
	if err != nil {
		return err
	}
	return node.SetRaw("info", mergedInfo)
}
