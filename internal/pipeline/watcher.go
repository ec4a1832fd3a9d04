package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/ctxlog"
)

// Watch starts an fsnotify watcher over root and invalidates the
// resolver's cache entry for a module whenever its declaration file is
// written, created, renamed or removed, so long-running processes observe
// declaration edits without restarting. Directories created at runtime are
// added to the watch list. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, r *Resolver, cfg config.Config, root string) error {
	logger := ctxlog.FromContext(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, cfg, root); err != nil {
		return err
	}
	logger.Info("watcher started", "root", root)

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if err := addDirsRecursive(w, cfg, ev.Name); err == nil {
					logger.Debug("watching new directory", "path", ev.Name)
				}
			}
			if filepath.Base(ev.Name) != cfg.DeclFile {
				continue
			}
			dir := filepath.Dir(ev.Name)
			logger.Debug("module declaration changed, invalidating", "dir", dir, "op", ev.Op.String())
			r.Invalidate(dir)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// addDirsRecursive registers path and its non-excluded subdirectories.
// Non-directories are ignored.
func addDirsRecursive(w *fsnotify.Watcher, cfg config.Config, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := filepath.Base(p)
		if p != path {
			for _, prefix := range cfg.ExcludePrefixes {
				if prefix != "" && strings.HasPrefix(name, prefix) {
					return filepath.SkipDir
				}
			}
		}
		return w.Add(p)
	})
}
