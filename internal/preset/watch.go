package preset

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit per save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever files under the catalog directory
// change. It blocks until ctx is cancelled and is intended to run on its own
// goroutine.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return err
	}
	r.logger.Info().Str("dir", r.dir).Msg("preset: watching catalog")

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := r.Reload(); err != nil {
				r.logger.Error().Err(err).Msg("preset: reload failed, keeping previous catalog")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn().Err(err).Msg("preset: watcher error")
		}
	}
}
