package workspace

import (
	"os"
	"path/filepath"

	"github.com/leafpkg/leaf/pkg/env"
	lerr "github.com/leafpkg/leaf/pkg/errors"
)

const (
	activateScriptName   = "activate.sh"
	deactivateScriptName = "deactivate.sh"
)

// WriteActivationScripts writes activate.sh and deactivate.sh into
// profileDir from composed (spec.md §4.8): the activate script sources
// the composed environment layer-by-layer with a comment identifying
// each layer, the deactivate script restores the values captured at
// generation time.
func WriteActivationScripts(profileDir string, composed *env.Environment) error {
	activatePath := filepath.Join(profileDir, activateScriptName)
	deactivatePath := filepath.Join(profileDir, deactivateScriptName)

	activate, err := os.Create(activatePath)
	if err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to create activation script", err)
	}
	defer activate.Close()
	if _, err := activate.WriteString("#!/bin/sh\n"); err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to write activation script header", err)
	}
	if err := composed.EmitActivate(activate); err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to write activation script body", err)
	}

	deactivate, err := os.Create(deactivatePath)
	if err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to create deactivation script", err)
	}
	defer deactivate.Close()
	if _, err := deactivate.WriteString("#!/bin/sh\n"); err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to write deactivation script header", err)
	}
	if err := composed.EmitDeactivate(deactivate); err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to write deactivation script body", err)
	}

	if err := os.Chmod(activatePath, 0o755); err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to mark activation script executable", err)
	}
	if err := os.Chmod(deactivatePath, 0o755); err != nil {
		return lerr.Wrap(lerr.KindIoError, "failed to mark deactivation script executable", err)
	}
	return nil
}
