// Package logging builds leaf's zap logger, switched between a quiet
// console encoding and a verbose development encoding by LEAF_DEBUG
// (spec.md §6). Same level-parse-then-cfg.Build shape as a typical zap
// setup, console vs JSON swapped for console vs development since leaf
// is a CLI, not a long-running daemon whose logs get shipped to an
// aggregator.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger. With LEAF_DEBUG unset, it logs at info level with
// a quiet console encoding (no stack traces, no caller). With LEAF_DEBUG
// set to any non-empty value, it switches to debug level with a
// development encoding (caller, stack traces on warn+).
func New() (*zap.Logger, error) {
	if os.Getenv("LEAF_DEBUG") != "" {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		EncodeLevel: zapcore.CapitalLevelEncoder,
		LineEnding:  zapcore.DefaultLineEnding,
	}
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return cfg.Build()
}

// NewNop returns a logger that discards everything, used by tests and by
// code paths not wired to the engine's logger.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
