package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/1ureka/p2pcall/internal/util"
)

// Watch reloads the file at path whenever it is written or replaced and
// passes each valid result to fn. Invalid reloads are logged and skipped.
// The parent directory is watched so editors that rename-over-write are seen.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			cfg, err := Load(abs)
			if err != nil {
				util.LogWarning("config reload failed: %v", err)
				continue
			}
			util.LogInfo("config reloaded from %s", abs)
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			util.LogWarning("config watcher error: %v", err)
		}
	}
}
