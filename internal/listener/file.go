package listener

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WatchFile watches the profile file for edits made by other programs. The
// parent directory is watched so atomic replace-by-rename is seen. Setup
// errors are returned; the watch itself runs until ctx ends.
func WatchFile(ctx context.Context, path string, t Target, window time.Duration) error {
	target := filepath.Clean(path)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info().Str("path", target).Msg("watching profile file")

	pings := make(chan struct{}, 1)
	go debounce(ctx, pings, window, func() { t.notify(ctx, "file") })
	go func() {
		defer watcher.Close()
		watchLoop(ctx, watcher, target, t, pings)
	}()
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string, t Target, pings chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			t.invalidate()
			poke(pings)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("profile watcher error")
		}
	}
}
