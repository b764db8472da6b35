package workspace

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// watchDebounce coalesces bursts of filesystem events (a save typically
// fires write+chmod in quick succession) into a single callback.
const watchDebounce = 500 * time.Millisecond

// Watcher watches a workspace's config file for external changes
// (another leaf process editing leaf-workspace.json) and invokes onChange
// after a debounce window.
type Watcher struct {
	root     string
	logger   *zap.Logger
	fsWatch  *fsnotify.Watcher
	onChange func()

	cancel context.CancelFunc
	wg     sync.WaitGroup

	timerMu sync.Mutex
	timer   *time.Timer
}

// Watch starts watching w's root directory for changes to
// leaf-workspace.json. onChange is invoked (from a background goroutine)
// after each debounced burst of events. Call Stop to release resources.
func (w *Workspace) Watch(ctx context.Context, logger *zap.Logger, onChange func()) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, lerr.Wrap(lerr.KindIoError, "failed to create workspace watcher", err)
	}
	if err := fsWatch.Add(w.Root); err != nil {
		fsWatch.Close()
		return nil, lerr.Wrap(lerr.KindIoError, "failed to watch workspace root", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher := &Watcher{root: w.Root, logger: logger, fsWatch: fsWatch, onChange: onChange, cancel: cancel}

	watcher.wg.Add(1)
	go watcher.loop(watchCtx)
	return watcher, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatch.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			w.debounce()
		case err, ok := <-w.fsWatch.Errors:
			if !ok {
				return
			}
			w.logger.Warn("workspace watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, w.onChange)
}

// Stop cancels the watch loop and releases the underlying fsnotify
// watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
	err := w.fsWatch.Close()
	w.wg.Wait()
	return err
}
