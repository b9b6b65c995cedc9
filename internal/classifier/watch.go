package classifier

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 150 * time.Millisecond

// Watch reloads the scanner whenever its pattern file changes, until ctx is
// cancelled. The parent directory is watched so atomic renames are seen.
// A file that fails to load is logged and the previous patterns stay active.
func (s *Scanner) Watch(ctx context.Context) error {
	if s.cfg.patternFile == "" {
		return fmt.Errorf("no pattern file configured")
	}
	target, err := filepath.Abs(s.cfg.patternFile)
	if err != nil {
		return fmt.Errorf("resolving pattern file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	go s.watchLoop(ctx, watcher, target)
	log.Info().Str("path", target).Msg("pattern_file_watch_started")
	return nil
}

func (s *Scanner) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer watcher.Close()

	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if name, err := filepath.Abs(event.Name); err != nil || name != target {
				continue
			}
			timer.Reset(reloadDebounce)

		case <-timer.C:
			if err := s.Reload(); err != nil {
				log.Warn().Err(err).Str("path", target).Msg("pattern_file_reload_failed")
				continue
			}
			log.Info().Str("path", target).Int("patterns", s.PatternCount()).Msg("pattern_file_reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("pattern_file_watch_error")
		}
	}
}
