package internal

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports "the source directory changed" events, debounced so one
// copy of several files triggers one rebuild.
type Watcher struct {
	watcher *fsnotify.Watcher
	settle  time.Duration
}

func NewWatcher(settle time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Watcher{
		watcher: w,
		settle:  settle,
	}, nil
}

// Watch emits a signal after .txt activity in dir has settled. The channel
// closes when ctx is done.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan struct{}, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	changed := make(chan struct{}, 1)

	go func() {
		defer close(changed)

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !strings.EqualFold(filepath.Ext(event.Name), ".txt") {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(w.settle)
					fire = timer.C
				} else {
					// Drain a fired-but-unread timer before the reset,
					// or the stale tick would signal immediately.
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(w.settle)
				}
			case <-fire:
				timer = nil
				fire = nil
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[WATCHER] error: %v", err)
			}
		}
	}()

	return changed, nil
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
