// Package remote manages leaf's configured remotes and their cached
// index documents (spec.md §4.4): CRUD over the remote list, per-remote
// TTL-driven fetch with atomic cache replacement, and catalogue merge
// across enabled remotes.
//
// The CRUD/registry shape is an in-memory slice guarded by a mutex,
// loaded from and saved back to a single JSON document (spec.md
// mandates JSON as its sole document format).
package remote

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/leafpkg/leaf/pkg/download"
	"github.com/leafpkg/leaf/pkg/fsutil"
	"github.com/leafpkg/leaf/pkg/hash"
	"github.com/leafpkg/leaf/pkg/identifier"
	"github.com/leafpkg/leaf/pkg/manifest"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// TTL is the cache staleness window of spec.md §4.4/§3.
const TTL = 24 * time.Hour

// Config is a single configured remote (spec.md §3: "(alias, url,
// enabled?, optional gpg key id)").
type Config struct {
	Alias   string `json:"alias"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
	GPGKey  string `json:"gpgKey,omitempty"`
}

// manifestInfo is the subset of a Manifest serialized inline into an
// index document's "info" node (spec.md §3's artifactNode.info).
type manifestInfo struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Description    string   `json:"description,omitempty"`
	Date           string   `json:"date,omitempty"`
	Master         bool     `json:"master,omitempty"`
	LeafMinVersion string   `json:"leafMinVersion,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Depends        []string `json:"depends,omitempty"`
	Requires       []string `json:"requires,omitempty"`
}

type artifactNode struct {
	Info manifestInfo `json:"info"`
	File string       `json:"file"`
	Size int64        `json:"size"`
	Hash string       `json:"hash"`
}

type indexDocument struct {
	Info struct {
		Name        string `json:"name,omitempty"`
		Date        string `json:"date,omitempty"`
		Description string `json:"description,omitempty"`
	} `json:"info"`
	Packages []artifactNode `json:"packages"`
}

func (n manifestInfo) toManifest() *manifest.Manifest {
	m := &manifest.Manifest{
		Description:    n.Description,
		Date:           n.Date,
		Master:         n.Master,
		LeafMinVersion: n.LeafMinVersion,
		Tags:           n.Tags,
	}
	id, err := identifier.New(n.Name, n.Version)
	if err != nil {
		return m
	}
	m.Identifier = id
	for _, d := range n.Depends {
		ci, err := manifest.ParseConditionalIdentifier(d)
		if err == nil {
			m.Depends = append(m.Depends, ci)
		}
	}
	for _, r := range n.Requires {
		rid, err := identifier.Parse(r)
		if err == nil {
			m.Requires = append(m.Requires, rid)
		}
	}
	return m
}

// Registry holds leaf's configured remotes and the merged catalogue
// built from their most recently fetched cache documents.
type Registry struct {
	mu        sync.RWMutex
	configDir string // holds remotes.json (the list of Config)
	cacheDir  string // holds <alias>.json per-remote cached documents

	Remotes []Config
}

func remotesFilePath(configDir string) string {
	return filepath.Join(configDir, "remotes.json")
}

func cacheFilePath(cacheDir, alias string) string {
	return filepath.Join(cacheDir, alias+".json")
}

// Open loads (or initializes) the remote registry rooted at configDir
// (holding remotes.json) and cacheDir (holding per-remote cache docs).
func Open(configDir, cacheDir string) (*Registry, error) {
	r := &Registry{configDir: configDir, cacheDir: cacheDir}
	path := remotesFilePath(configDir)
	if fsutil.FileExists(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, lerr.Wrap(lerr.KindIoError, "failed to read remotes.json", err)
		}
		if err := json.Unmarshal(data, &r.Remotes); err != nil {
			return nil, lerr.Wrap(lerr.KindIoError, "failed to parse remotes.json", err)
		}
	}
	return r, nil
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.Remotes, "", "  ")
	if err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to marshal remotes", err)
	}
	return fsutil.AtomicWriteFile(remotesFilePath(r.configDir), data, 0o644)
}

// List returns a snapshot of all configured remotes, in configuration
// order (the order duplicate-identifier resolution relies on).
func (r *Registry) List() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, len(r.Remotes))
	copy(out, r.Remotes)
	return out
}

// Add registers a new remote, enabled by default.
func (r *Registry) Add(alias, url, gpgKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.Remotes {
		if c.Alias == alias {
			return lerr.New(lerr.KindConflict, "remote already exists: "+alias)
		}
	}
	r.Remotes = append(r.Remotes, Config{Alias: alias, URL: url, Enabled: true, GPGKey: gpgKey})
	return r.save()
}

// Remove deletes a remote and its cached document.
func (r *Registry) Remove(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.Remotes {
		if c.Alias == alias {
			r.Remotes = append(r.Remotes[:i], r.Remotes[i+1:]...)
			fsutil.SafeRemove(cacheFilePath(r.cacheDir, alias))
			return r.save()
		}
	}
	return lerr.New(lerr.KindNotFound, "unknown remote: "+alias)
}

// Enable toggles a remote's enabled flag. Spec.md §4.4: a disabled-flag
// change forces the next fetch to re-download regardless of TTL, so
// this clears the cached document's mtime guard by removing it.
func (r *Registry) Enable(alias string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Remotes {
		if r.Remotes[i].Alias == alias {
			if r.Remotes[i].Enabled == enabled {
				return nil
			}
			r.Remotes[i].Enabled = enabled
			fsutil.SafeRemove(cacheFilePath(r.cacheDir, alias))
			return r.save()
		}
	}
	return lerr.New(lerr.KindNotFound, "unknown remote: "+alias)
}

// FetchResult reports, per remote, whether its cache was refreshed and
// any failure encountered (spec.md §4.4: "fetch returns a partial
// result and the list of failed remotes").
type FetchResult struct {
	Refreshed []string
	Failed    map[string]error
}

// Fetch refreshes the cache document of every enabled remote whose
// cache is missing or older than TTL (or all of them, if force is
// set). It does not build the merged catalogue; Catalogue reads the cache
// files on demand. A single remote's failure leaves its existing cache
// untouched and does not abort the others.
func (r *Registry) Fetch(ctx context.Context, force bool) (FetchResult, error) {
	r.mu.Lock()
	remotes := make([]Config, len(r.Remotes))
	copy(remotes, r.Remotes)
	r.mu.Unlock()

	result := FetchResult{Failed: map[string]error{}}
	for _, c := range remotes {
		if !c.Enabled {
			continue
		}
		path := cacheFilePath(r.cacheDir, c.Alias)
		if !force && !isStale(path) {
			continue
		}
		if err := r.refreshOne(ctx, c, path); err != nil {
			result.Failed[c.Alias] = err
			continue
		}
		result.Refreshed = append(result.Refreshed, c.Alias)
	}
	sort.Strings(result.Refreshed)
	return result, nil
}

func isStale(cachePath string) bool {
	info, err := os.Stat(cachePath)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) >= TTL
}

func (r *Registry) refreshOne(ctx context.Context, c Config, cachePath string) error {
	tmpFile := cachePath + ".download"
	defer os.Remove(tmpFile)

	if _, err := download.ToFile(ctx, c.URL, tmpFile, nil); err != nil {
		return lerr.Wrap(lerr.KindNetworkError, "failed to fetch remote "+c.Alias, err)
	}
	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to read fetched index", err)
	}
	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return lerr.Wrap(lerr.KindInvalidInput, "malformed index document from "+c.Alias, err)
	}
	return fsutil.AtomicWriteFile(cachePath, data, 0o644)
}

// Catalogue aggregates every enabled remote's cached packages into a
// single map, first-remote-wins on duplicate identifiers (spec.md
// §4.4: "first remote wins on duplicate identifier (deterministic by
// config order)"). A hash mismatch across remotes for the same
// identifier is reported in mismatches but is not fatal.
func (r *Registry) Catalogue() (map[string]manifest.AvailablePackage, []string, error) {
	r.mu.RLock()
	remotes := make([]Config, len(r.Remotes))
	copy(remotes, r.Remotes)
	r.mu.RUnlock()

	catalogue := map[string]manifest.AvailablePackage{}
	var mismatches []string

	for _, c := range remotes {
		if !c.Enabled {
			continue
		}
		path := cacheFilePath(r.cacheDir, c.Alias)
		if !fsutil.FileExists(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var doc indexDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		for _, node := range doc.Packages {
			m := node.Info.toManifest()
			if m.Identifier.Name == "" {
				continue
			}
			key := m.Identifier.String()
			h, hashErr := hash.Parse(node.Hash)

			if existing, ok := catalogue[key]; ok {
				if hashErr == nil && !existing.Hash.Equal(h) {
					mismatches = append(mismatches, key)
				}
				continue
			}
			catalogue[key] = manifest.AvailablePackage{
				Manifest:     m,
				URL:          resolveRelative(c.URL, node.File),
				Size:         node.Size,
				Hash:         h,
				RemoteOrigin: c.Alias,
			}
		}
	}
	sort.Strings(mismatches)
	return catalogue, mismatches, nil
}

func resolveRelative(baseURL, file string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return file
	}
	ref, err := url.Parse(file)
	if err != nil {
		return file
	}
	return base.ResolveReference(ref).String()
}
