package application

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WatchContent triggers a reconciliation shortly after files in dir change.
// Bursts of events within debounce collapse into one pass.
func (s *PostService) WatchContent(dir string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create content watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch content directory %s: %w", dir, err)
	}

	s.wg.Go(func() {
		defer watcher.Close()
		s.watch(watcher, debounce)
	})
	return nil
}

func (s *PostService) watch(watcher *fsnotify.Watcher, debounce time.Duration) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-s.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isContentEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Content watcher error")
		case <-fire:
			fire = nil
			log.Debug().Msg("Content changed, scheduling reconciliation")
			s.Trigger()
		}
	}
}

// isContentEvent ignores chmod noise and hidden files, including our own temp files.
func isContentEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}
