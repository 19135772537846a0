package launcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// LoadFile loads the alias file at path into the resolver.
func (r *Resolver) LoadFile(path string) error {
	t, err := LoadAliases(path)
	if err != nil {
		return err
	}
	r.SetAliases(t)
	r.logger.Info("Loaded application aliases", "path", path, "count", len(t))
	return nil
}

// Watch reloads the alias file whenever it changes until ctx is done. The
// parent directory is watched so editors that replace the file by rename are
// picked up. A file that fails to parse leaves the current table in place.
func (r *Resolver) Watch(ctx context.Context, path string) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create alias watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			r.logger.Debug("failed to close alias watcher", "error", closeErr)
		}
	}()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	r.logger.Info("Watching application aliases", "path", path)

	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Alias watcher error", "error", err)

		case <-timer.C:
			if err := r.LoadFile(path); err != nil {
				r.logger.Warn("Keeping previous application aliases", "path", path, "error", err)
			}
		}
	}
}
