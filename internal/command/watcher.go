package command

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a command library file when it changes on disk.
// It watches the parent directory so editors that save via rename are
// picked up too.
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration
	log      *zap.Logger
}

// NewWatcher creates a watcher for path. onChange runs on the watcher's
// goroutine once writes have settled.
func NewWatcher(path string, onChange func(), log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: 200 * time.Millisecond,
		log:      log,
	}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("command watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("command watcher: watch %s: %w", dir, err)
	}
	w.log.Debug("watching command library", zap.String("path", w.path))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("command watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			w.log.Info("command library changed", zap.String("path", w.path))
			w.onChange()
		}
	}
}
