// Package engine wires leaf's components into the single aggregate the
// rest of the programmatic surface is built on (spec.md §9's "explicit
// value replacing global state"): one Engine per process, holding the
// store, remote registry, installer and feature registry it was
// constructed with.
//
// Grounded on pkg/daemon/daemon.go's New(config) constructor: validate,
// create directories, then wire components in dependency order,
// returning a wrapped error the moment any step fails.
package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leafpkg/leaf/pkg/condition"
	lerr "github.com/leafpkg/leaf/pkg/errors"
	"github.com/leafpkg/leaf/pkg/feature"
	"github.com/leafpkg/leaf/pkg/fsutil"
	"github.com/leafpkg/leaf/pkg/gpgverify"
	"github.com/leafpkg/leaf/pkg/identifier"
	"github.com/leafpkg/leaf/pkg/installer"
	"github.com/leafpkg/leaf/pkg/logging"
	"github.com/leafpkg/leaf/pkg/manifest"
	"github.com/leafpkg/leaf/pkg/remote"
	"github.com/leafpkg/leaf/pkg/resolver"
	"github.com/leafpkg/leaf/pkg/store"

	leafenv "github.com/leafpkg/leaf/pkg/env"
)

// LeafVersion is leaf's own release version, stamped into LEAF_VERSION
// (spec.md §4.2/§4.7) and printed by the version command.
const LeafVersion = "1.0.0"

// userConfig mirrors config.json's recognized top-level keys (spec.md
// §6). Only "rootfolder" is modeled, with no further leaf-side meaning
// than "override the store root".
type userConfig struct {
	RootFolder string `json:"rootfolder,omitempty"`
}

// Config configures an Engine's persisted roots (spec.md §6). Any field
// left blank falls back to the environment-variable/home-directory
// defaults spec.md §6 describes.
type Config struct {
	ConfigRoot       string
	CacheRoot        string
	StoreRoot        string
	VerifySignatures bool
	Verbose          bool
	Logger           *zap.Logger
}

// Engine aggregates leaf's stateful components.
type Engine struct {
	ConfigRoot string
	CacheRoot  string
	StoreRoot  string

	Store     *store.Store
	Remotes   *remote.Registry
	Installer *installer.Installer
	Features  *feature.Registry

	logger *zap.Logger
}

func defaultConfigRoot() string {
	if v := os.Getenv("LEAF_CONFIG"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "leaf")
}

func defaultCacheRoot() string {
	if v := os.Getenv("LEAF_CACHE"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "leaf")
}

func defaultStoreRoot(configRoot string) string {
	data, err := os.ReadFile(filepath.Join(configRoot, "config.json"))
	if err == nil {
		var uc userConfig
		if json.Unmarshal(data, &uc) == nil && uc.RootFolder != "" {
			return uc.RootFolder
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".leaf")
}

// New wires an Engine from cfg, creating its persisted roots and loading
// any installed manifests needed by the feature registry.
func New(cfg Config) (*Engine, error) {
	if cfg.ConfigRoot == "" {
		cfg.ConfigRoot = defaultConfigRoot()
	}
	if cfg.CacheRoot == "" {
		cfg.CacheRoot = defaultCacheRoot()
	}
	if cfg.StoreRoot == "" {
		cfg.StoreRoot = defaultStoreRoot(cfg.ConfigRoot)
	}
	if cfg.Logger == nil {
		var err error
		cfg.Logger, err = logging.New()
		if err != nil {
			return nil, lerr.Wrap(lerr.KindIoError, "failed to build logger", err)
		}
	}

	if err := fsutil.EnsureDir(cfg.ConfigRoot, 0o755); err != nil {
		return nil, err
	}
	if err := fsutil.EnsureDir(cfg.CacheRoot, 0o755); err != nil {
		return nil, err
	}
	if err := fsutil.EnsureDir(gpgverify.DefaultHomeDir(cfg.ConfigRoot), 0o700); err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.StoreRoot)
	if err != nil {
		return nil, err
	}

	remotes, err := remote.Open(cfg.ConfigRoot, cfg.CacheRoot)
	if err != nil {
		return nil, err
	}

	inst := installer.New(s, cfg.CacheRoot, installer.Options{
		GnupgHome:        gpgverify.DefaultHomeDir(cfg.ConfigRoot),
		VerifySignatures: cfg.VerifySignatures,
		Verbose:          cfg.Verbose,
		LeafVersion:      LeafVersion,
		Logger:           cfg.Logger,
	})

	e := &Engine{
		ConfigRoot: cfg.ConfigRoot,
		CacheRoot:  cfg.CacheRoot,
		StoreRoot:  cfg.StoreRoot,
		Store:      s,
		Remotes:    remotes,
		Installer:  inst,
		logger:     cfg.Logger,
	}

	features, err := e.loadFeatures()
	if err != nil {
		return nil, err
	}
	e.Features = features

	return e, nil
}

// opLogger tags every engine operation with a correlation id, so related
// log lines across a single install/uninstall/sync/fetch call can be
// grepped out of a shared log stream.
func (e *Engine) opLogger(op string) *zap.Logger {
	return e.logger.With(zap.String("op", op), zap.String("correlation_id", uuid.NewString()))
}

// ListInstalled reads every directory in the store and loads its
// manifest.json, per spec.md §6's "engine.list_installed() → map".
func (e *Engine) ListInstalled() (map[string]manifest.InstalledPackage, error) {
	ids, err := e.Store.Installed()
	if err != nil {
		return nil, err
	}
	out := make(map[string]manifest.InstalledPackage, len(ids))
	for _, idStr := range ids {
		folder := e.Store.Path(idStr)
		m, err := manifest.Load(filepath.Join(folder, "manifest.json"))
		if err != nil {
			e.logger.Warn("skipping installed directory with unreadable manifest", zap.String("identifier", idStr), zap.Error(err))
			continue
		}
		out[idStr] = manifest.InstalledPackage{Manifest: m, Folder: folder}
	}
	return out, nil
}

func (e *Engine) loadFeatures() (*feature.Registry, error) {
	installed, err := e.ListInstalled()
	if err != nil {
		return nil, err
	}
	reg := feature.NewRegistry()
	for _, ip := range installed {
		if err := reg.Add(ip.Manifest); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// FetchRemotes refreshes every stale (or, if force, every) enabled
// remote's cache and returns the merged catalogue (spec.md §6's
// "engine.fetch_remotes(force) → (catalogue, [errors])").
func (e *Engine) FetchRemotes(ctx context.Context, force bool) (map[string]manifest.AvailablePackage, []error, error) {
	logger := e.opLogger("fetch_remotes")
	result, err := e.Remotes.Fetch(ctx, force)
	if err != nil {
		return nil, nil, err
	}
	for alias, ferr := range result.Failed {
		logger.Warn("remote fetch failed", zap.String("remote", alias), zap.Error(ferr))
	}

	catalogue, mismatches, err := e.Remotes.Catalogue()
	if err != nil {
		return nil, nil, err
	}
	for _, key := range mismatches {
		logger.Warn("hash mismatch across remotes for identifier", zap.String("identifier", key))
	}

	var errs []error
	for _, ferr := range result.Failed {
		errs = append(errs, ferr)
	}
	return catalogue, errs, nil
}

// Install resolves and installs seeds against catalogue (spec.md §6's
// "engine.install(seeds, opts)").
func (e *Engine) Install(ctx context.Context, seeds []identifier.Identifier, catalogue map[string]manifest.AvailablePackage, composed *leafenv.Environment, keepOnError bool) error {
	logger := e.opLogger("install")
	installed, err := e.ListInstalled()
	if err != nil {
		return err
	}
	if err := e.Installer.Install(ctx, seeds, catalogue, installed, composed, keepOnError); err != nil {
		logger.Error("install failed", zap.Error(err))
		return err
	}
	logger.Info("install completed", zap.Int("count", len(seeds)))
	return nil
}

// Uninstall removes seeds and those of their dependencies that no other
// installed package still needs (spec.md
// §6's "engine.uninstall(seeds)").
func (e *Engine) Uninstall(ctx context.Context, seeds []identifier.Identifier, composed *leafenv.Environment) error {
	logger := e.opLogger("uninstall")
	installed, err := e.ListInstalled()
	if err != nil {
		return err
	}
	if err := e.Installer.Uninstall(ctx, seeds, installed, composed); err != nil {
		logger.Error("uninstall failed", zap.Error(err))
		return err
	}
	logger.Info("uninstall completed", zap.Int("count", len(seeds)))
	return nil
}

// Sync re-runs the sync steps of the given installed packages (spec.md
// §6's "engine.sync(seeds)").
func (e *Engine) Sync(ctx context.Context, targets []identifier.Identifier, composed *leafenv.Environment) error {
	logger := e.opLogger("sync")
	installed, err := e.ListInstalled()
	if err != nil {
		return err
	}
	if err := e.Installer.Sync(ctx, targets, installed, composed); err != nil {
		logger.Error("sync failed", zap.Error(err))
		return err
	}
	logger.Info("sync completed", zap.Int("count", len(targets)))
	return nil
}

// InstallPlan exposes pkg/resolver's plan computation against the
// engine's current installed set, for callers (cmd/leaf) that want to
// preview a plan before committing to Install.
func (e *Engine) InstallPlan(seeds []identifier.Identifier, catalogue map[string]manifest.AvailablePackage, composed condition.Lookup) ([]identifier.Identifier, error) {
	installed, err := e.ListInstalled()
	if err != nil {
		return nil, err
	}
	installedSet := make(map[string]bool, len(installed))
	for k := range installed {
		installedSet[k] = true
	}
	available := resolver.NewSourceFromAvailable(catalogue)
	return resolver.InstallPlan(seeds, available, composed, installedSet)
}

// BuiltinLayer returns the engine's fixed builtin env layer (spec.md
// §4.2), stamped with this build's LeafVersion.
func (e *Engine) BuiltinLayer(workspace, profile string) leafenv.Layer {
	return leafenv.BuiltinLayer(LeafVersion, workspace, profile)
}
