package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	workerdomain "github.com/louisbranch/vvebeheer/internal/services/worker/domain"
)

const defaultQuietPeriod = 2 * time.Second

// watchDropFolder calls notify once statement writes under root have been
// quiet for quiet. It watches root and each association folder below it.
func watchDropFolder(ctx context.Context, root string, quiet time.Duration, notify func()) error {
	if quiet <= 0 {
		quiet = defaultQuietPeriod
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create drop folder: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read %s: %w", root, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(root, entry.Name())); err != nil {
				return fmt.Errorf("watch %s: %w", entry.Name(), err)
			}
		}
	}

	log := logging.FromContext(ctx)
	log.Info().Str("dir", root).Msg("watching drop folder")
	debounce := time.NewTimer(quiet)
	debounce.Stop()
	defer debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(root) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						log.Warn().Err(err).Str("dir", event.Name).Msg("watch association folder")
					}
					continue
				}
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if workerdomain.IsStatement(filepath.Base(event.Name)) {
				debounce.Reset(quiet)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("drop folder watcher")
		case <-debounce.C:
			notify()
		}
	}
}
