package artifact

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

// Watcher observes the project tree and counts filesystem changes.
//
// Correctness never depends on it: gate checks always rescan. The change
// counter exists for the status surface, so operators can see whether the
// tree moved since a decision was made.
type Watcher struct {
	root    string
	logger  *logging.Logger
	changes atomic.Int64
}

// NewWatcher creates a watcher for the project root.
func NewWatcher(root string, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{root: root, logger: logger.Named("watcher")}
}

// Changes returns the number of filesystem events observed so far.
func (w *Watcher) Changes() int64 {
	return w.changes.Load()
}

// Run watches until ctx is canceled. It registers the project root and its
// subdirectories, skipping .git, and adds new directories as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	addTree := func(dir string) {
		_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if err := fsw.Add(p); err != nil {
				w.logger.Debug(ctx, "watch add failed", zap.String("dir", p), zap.Error(err))
			}
			return nil
		})
	}
	addTree(w.root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.changes.Add(1)
			if event.Has(fsnotify.Create) {
				// New directories need their own watch.
				addTree(event.Name)
			}
			w.logger.Trace(ctx, "fs event", zap.String("op", event.Op.String()), zap.String("path", event.Name))
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}
