package tuning

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it changes and hands each valid result to
// onChange. Invalid edits are logged and skipped; the last good tuning stays in
// effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *log.Logger, onChange func(Tuning)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory: editors replace files by rename.
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	// Editors tend to emit bursts of events for one save.
	const settle = 100 * time.Millisecond
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(settle)
		case <-pending:
			pending = nil
			t, err := Load(path)
			if err != nil {
				if logger != nil {
					logger.Printf("tuning reload skipped: %v", err)
				}
				continue
			}
			if logger != nil {
				logger.Printf("tuning reloaded from %s", path)
			}
			onChange(t)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Printf("tuning watcher: %v", err)
			}
		}
	}
}
