package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// WatchDelegationFile reloads the delegation proof into c whenever path
// changes, until ctx is cancelled. Delegations expire and get rotated by
// external tooling, so the server picks up replacements without a restart.
// The parent directory is watched rather than the file itself: atomic
// rename-over-save replaces the inode and would silently drop a file watch.
func WatchDelegationFile(ctx context.Context, log *slog.Logger, path string, c *Client) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	log.InfoContext(ctx, "delegation.watch.start", slog.String("path", abs))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			b, err := os.ReadFile(abs)
			if err != nil {
				log.WarnContext(ctx, "delegation.reload.fail", slog.String("err", err.Error()))
				continue
			}
			c.SetDelegation(strings.TrimSpace(string(b)))
			log.InfoContext(ctx, "delegation.reload.ok")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "delegation.watch.error", slog.String("err", err.Error()))
		}
	}
}
