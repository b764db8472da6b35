// Package installer runs leaf's install/uninstall/sync lifecycles
// (spec.md §4.6/§4.7): download-verify-extract-run-steps-commit for
// install, steps-then-remove for uninstall, steps-only for sync.
//
// Grounded on the exec.Command + explicit cmd.Env construction idiom
// (building a subprocess's environment explicitly rather than trusting
// inheritance) and a New(config) component-wiring constructor shape.
package installer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/leafpkg/leaf/pkg/archive"
	"github.com/leafpkg/leaf/pkg/download"
	"github.com/leafpkg/leaf/pkg/env"
	"github.com/leafpkg/leaf/pkg/fsutil"
	"github.com/leafpkg/leaf/pkg/gpgverify"
	"github.com/leafpkg/leaf/pkg/hash"
	"github.com/leafpkg/leaf/pkg/identifier"
	"github.com/leafpkg/leaf/pkg/manifest"
	"github.com/leafpkg/leaf/pkg/resolver"
	"github.com/leafpkg/leaf/pkg/store"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// DefaultLockTimeout bounds how long install/uninstall/sync wait for the
// store lock before giving up (spec.md §4.6 step 1).
const DefaultLockTimeout = 30 * time.Second

// Options configures an Installer beyond the store/cache roots it is
// bound to.
type Options struct {
	GnupgHome        string
	VerifySignatures bool
	Verbose          bool
	LockTimeout      time.Duration
	LeafVersion      string
	Logger           *zap.Logger
}

// Installer executes plans computed by pkg/resolver against a content
// addressed store.
type Installer struct {
	store     *store.Store
	cacheRoot string
	opts      Options
}

// New binds an Installer to a store and a download cache root.
func New(s *store.Store, cacheRoot string, opts Options) *Installer {
	if opts.LockTimeout == 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Installer{store: s, cacheRoot: cacheRoot, opts: opts}
}

// Catalogue maps an identifier string to the available package it names,
// the shape an install plan is executed against.
type Catalogue map[string]manifest.AvailablePackage

// Install runs spec.md §4.6's install(seeds, keep_on_error): resolves the
// install plan, checks prerequisites, then downloads, verifies, extracts
// and runs install steps for each planned package in order.
func (i *Installer) Install(ctx context.Context, seeds []identifier.Identifier, catalogue Catalogue, installed map[string]manifest.InstalledPackage, composed *env.Environment, keepOnError bool) error {
	if err := i.store.Lock(i.opts.LockTimeout); err != nil {
		return err
	}
	defer i.store.Unlock()

	available := resolver.NewSourceFromAvailable(catalogue)
	installedSet := make(map[string]bool, len(installed))
	for k := range installed {
		installedSet[k] = true
	}

	plan, err := resolver.InstallPlan(seeds, available, composed, installedSet)
	if err != nil {
		return err
	}

	planSet := make(map[string]bool, len(plan))
	for _, id := range plan {
		planSet[id.String()] = true
	}
	for _, req := range resolver.PrereqPlan(plan, available) {
		key := req.String()
		if installedSet[key] || planSet[key] {
			continue
		}
		return lerr.New(lerr.KindNotFound, "missing prerequisite: "+key)
	}

	others := othersFromInstalled(installed)

	for _, id := range plan {
		pkg, ok := catalogue[id.String()]
		if !ok {
			return lerr.New(lerr.KindNotFound, "unknown package in plan: "+id.String())
		}
		if err := i.installOne(ctx, pkg, composed, others, keepOnError); err != nil {
			return err
		}
		others[id.String()] = env.PackageCoord{
			Name:    id.Name,
			Version: id.Version,
			Folder:  i.store.Path(id.String()),
		}
	}
	return nil
}

func othersFromInstalled(installed map[string]manifest.InstalledPackage) map[string]env.PackageCoord {
	out := make(map[string]env.PackageCoord, len(installed))
	for _, ip := range installed {
		out[ip.Manifest.Identifier.String()] = env.PackageCoord{
			Name:    ip.Manifest.Identifier.Name,
			Version: ip.Manifest.Identifier.Version,
			Folder:  ip.Folder,
		}
	}
	return out
}

func (i *Installer) installOne(ctx context.Context, pkg manifest.AvailablePackage, composed *env.Environment, others map[string]env.PackageCoord, keepOnError bool) error {
	id := pkg.Manifest.Identifier
	logger := i.opts.Logger.With(zap.String("package", id.String()))

	artifactPath, err := i.fetch(ctx, pkg)
	if err != nil {
		return err
	}

	if i.opts.VerifySignatures {
		if err := gpgverify.Verify(ctx, pkg.URL, artifactPath, i.opts.GnupgHome); err != nil {
			return err
		}
	}

	resolverVars := &env.VariableResolver{
		Current: env.PackageCoord{Name: id.Name, Version: id.Version},
		Others:  others,
	}

	staging, err := archive.ExtractStaging(artifactPath, i.store.Root, id.String(), nil)
	if err != nil {
		return err
	}
	resolverVars.Current.Folder = staging

	if err := i.runSteps(ctx, pkg.Manifest.Install, staging, composed, resolverVars, false); err != nil {
		if keepOnError {
			ignoredPath := fmt.Sprintf("%s_ignored%d", i.store.Path(id.String()), time.Now().Unix())
			if renameErr := os.Rename(staging, ignoredPath); renameErr != nil {
				logger.Warn("failed to mark staging directory as ignored", zap.Error(renameErr))
			}
			logger.Warn("install step failed, keeping extracted tree on error", zap.String("path", ignoredPath), zap.Error(err))
			return err
		}
		if discardErr := archive.Discard(staging); discardErr != nil {
			logger.Warn("failed to discard staging directory after rollback", zap.Error(discardErr))
		}
		return err
	}

	if _, err := archive.Commit(staging, i.store.Root, id.String()); err != nil {
		return err
	}
	return nil
}

// fetch ensures pkg's artifact is present and hash-verified under the
// download cache, downloading it if absent or if the cached copy's hash
// no longer matches (spec.md §4.6 step 3a/b).
func (i *Installer) fetch(ctx context.Context, pkg manifest.AvailablePackage) (string, error) {
	cachePath := download.CachePath(i.cacheRoot, pkg.Hash.Hex, filepath.Base(pkg.URL))
	if err := fsutil.EnsureDir(filepath.Dir(cachePath), 0o755); err != nil {
		return "", err
	}

	if f, err := os.Open(cachePath); err == nil {
		verifyErr := hash.Verify(pkg.Hash, f)
		f.Close()
		if verifyErr == nil {
			return cachePath, nil
		}
		os.Remove(cachePath)
	}

	if _, err := download.ToFile(ctx, pkg.URL, cachePath, nil); err != nil {
		return "", err
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return "", lerr.Wrap(lerr.KindIoError, "failed to reopen downloaded artifact", err)
	}
	defer f.Close()
	if err := hash.Verify(pkg.Hash, f); err != nil {
		os.Remove(cachePath)
		return "", err
	}
	return cachePath, nil
}

// runSteps variable-substitutes and runs each step in order (spec.md
// §4.7). A failing step with IgnoreFail is logged and skipped; otherwise
// it aborts the remaining steps and returns the failure.
func (i *Installer) runSteps(ctx context.Context, steps []manifest.Step, cwd string, composed *env.Environment, vars *env.VariableResolver, ignoreAllFailures bool) error {
	for _, step := range steps {
		if err := i.runStep(ctx, step, cwd, composed, vars); err != nil {
			if step.IgnoreFail || ignoreAllFailures {
				i.opts.Logger.Warn("step failed, ignoring", zap.String("label", step.Label), zap.Error(err))
				continue
			}
			return err
		}
	}
	return nil
}

func (i *Installer) runStep(ctx context.Context, step manifest.Step, cwd string, composed *env.Environment, vars *env.VariableResolver) error {
	command := make([]string, len(step.Command))
	for idx, part := range step.Command {
		substituted, err := vars.Substitute(part)
		if err != nil {
			return lerr.Wrap(lerr.KindStepFailed, "step \""+step.Label+"\" command substitution failed", err)
		}
		command[idx] = substituted
	}
	if len(command) == 0 {
		return lerr.New(lerr.KindStepFailed, "step \""+step.Label+"\" has an empty command")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = cwd
	cmd.Env = buildStepEnv(step, composed, i.opts.LeafVersion)

	var out bytes.Buffer
	if step.Verbose || i.opts.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	if err := cmd.Run(); err != nil {
		return lerr.Wrap(lerr.KindStepFailed, fmt.Sprintf("step %q failed: %s", step.Label, out.String()), err)
	}
	return nil
}

// buildStepEnv composes process env, step env, the engine's composed
// env and LEAF_VERSION in that order, later entries winning (spec.md
// §4.7).
func buildStepEnv(step manifest.Step, composed *env.Environment, leafVersion string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := splitEnvPair(kv); ok {
			merged[k] = v
		}
	}
	for k, v := range step.Env {
		merged[k] = v
	}
	if composed != nil {
		for k, v := range composed.ToMap() {
			merged[k] = v
		}
	}
	merged["LEAF_VERSION"] = leafVersion

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func splitEnvPair(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// Uninstall runs spec.md §4.6's uninstall(seeds): computes the uninstall
// plan, runs each package's uninstall steps (failures always ignored
// after a warning), then removes its store directory.
func (i *Installer) Uninstall(ctx context.Context, seeds []identifier.Identifier, installed map[string]manifest.InstalledPackage, composed *env.Environment) error {
	if err := i.store.Lock(i.opts.LockTimeout); err != nil {
		return err
	}
	defer i.store.Unlock()

	installedSource := resolver.NewSourceFromInstalled(installed)
	plan, err := resolver.UninstallPlan(seeds, installedSource, composed)
	if err != nil {
		return err
	}

	others := othersFromInstalled(installed)

	for _, id := range plan {
		ip, ok := installed[id.String()]
		if !ok {
			continue
		}
		vars := &env.VariableResolver{
			Current: env.PackageCoord{Name: id.Name, Version: id.Version, Folder: ip.Folder},
			Others:  others,
		}
		if err := i.runSteps(ctx, ip.Manifest.Uninstall, ip.Folder, composed, vars, true); err != nil {
			i.opts.Logger.Warn("uninstall step failed, ignoring", zap.String("package", id.String()), zap.Error(err))
		}
		if err := i.store.Remove(id.String()); err != nil {
			return err
		}
	}
	return nil
}

// Sync runs spec.md §4.6's sync(seeds): re-runs the sync steps of the
// given installed packages, ordered so a package's dependencies run
// first.
func (i *Installer) Sync(ctx context.Context, targets []identifier.Identifier, installed map[string]manifest.InstalledPackage, composed *env.Environment) error {
	installedSource := resolver.NewSourceFromInstalled(installed)

	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t.String()] = true
	}

	order, err := resolver.InstallPlan(targets, installedSource, composed, map[string]bool{})
	if err != nil {
		return err
	}

	others := othersFromInstalled(installed)

	for _, id := range order {
		if !wanted[id.String()] {
			continue
		}
		ip, ok := installed[id.String()]
		if !ok {
			continue
		}
		vars := &env.VariableResolver{
			Current: env.PackageCoord{Name: id.Name, Version: id.Version, Folder: ip.Folder},
			Others:  others,
		}
		if err := i.runSteps(ctx, ip.Manifest.Sync, ip.Folder, composed, vars, false); err != nil {
			return err
		}
	}
	return nil
}
