package cli

import "errors"

// Sentinel errors for CLI argument validation.
var (
	errWorkspaceUnset = errors.New("--workspace is required (or set LEAF_WORKSPACE)")
)
