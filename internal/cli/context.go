package cli

import (
	"context"
	"os/signal"
	"syscall"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM, the same
// interrupt handling shape as legacy/seeder/internal/cli's per-command
// signal.Notify goroutine. The returned cancel must be deferred by the
// caller; wrapErr turns a context.Canceled surfaced from an operation
// into a KindUserCancel LeafError (spec.md §7).
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx, stop
}

func wrapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.Canceled {
		logger.Info("operation cancelled")
		return lerr.Wrap(lerr.KindUserCancel, "operation cancelled", err)
	}
	return err
}
