package syncer

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before starting a sync cycle, so a batch copy triggers one cycle
// instead of one per file.
const DefaultDebounce = 2 * time.Second

// Watch runs sync cycles whenever the target directory changes, until the
// context is cancelled. Sync failures are logged and the watch continues;
// only watcher setup errors and context cancellation end the loop.
func (s *Syncer) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(s.targetDir); err != nil {
		return err
	}
	s.logf("watching %s", s.targetDir)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			pending = true
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logf("watch error: %v", err)
		case <-timer.C:
			pending = false
			if _, err := s.SyncOnce(ctx); err != nil {
				s.logf("sync cycle failed: %v", err)
			}
		}
	}
}
