package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mediatag/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the library root and keeps the catalog
// current until ctx is cancelled. A change to a media file or to its sidecar
// re-reads that file. It calls cb (if non-nil) after each catalog change.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced Sync that removes stale rows and picks up the
// new names.
func Watch(ctx context.Context, db *DB, src Source, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := src.Lib.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, err := Sync(ctx, db, src, logger, cb); err != nil {
				logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name
			if isHiddenName(filepath.Base(absPath)) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Files copied in with the directory produce no events of their own.
					scheduleReconcile()
					continue
				}
			}

			rel, ok := mediaPath(src.Lib, absPath)
			if !ok {
				continue
			}

			if ev.Op&fsnotify.Rename != 0 && !storage.IsSidecar(absPath) {
				// fsnotify fires Rename on the old path only; the new name
				// arrives as a Create if it stays inside a watched dir.
				apply(db, src, rel, logger, cb)
				scheduleReconcile()
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				apply(db, src, rel, logger, cb)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func apply(db *DB, src Source, rel string, logger *slog.Logger, cb EventCallback) {
	kind, err := Refresh(db, src, rel)
	if err != nil {
		logger.Warn("watcher: refresh failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if kind == "" {
		return
	}
	logger.Debug("watcher: applied", slog.String("path", rel), slog.String("op", kind))
	if cb != nil {
		cb(kind, rel)
	}
}

// mediaPath maps an event path (a media file or its sidecar) to the
// library-relative path of the media file.
func mediaPath(lib storage.Provider, abs string) (string, bool) {
	if storage.IsSidecar(abs) && !lib.Accepts(abs) {
		abs = strings.TrimSuffix(abs, filepath.Ext(abs))
	}
	if !lib.Accepts(abs) {
		return "", false
	}
	rel, err := lib.Rel(abs)
	if err != nil {
		return "", false
	}
	return rel, true
}

func isHiddenName(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHiddenName(d.Name()) {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}
