package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the on-disk config file whenever it changes and passes
// the result to a callback. It does not itself apply the new values to
// collections that are already open.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	onLoad func(*Config)
	stopCh chan struct{}
}

// WatchFile starts watching path for writes and calls onLoad with the
// reloaded config after each change. The containing directory is watched
// rather than the file itself, so an editor that replaces the file by
// renaming a new one over it still surfaces as a Create event for path.
func WatchFile(path string, onLoad func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		path:   path,
		onLoad: onLoad,
		stopCh: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				slog.Warn("config reload failed", slog.String("path", w.path), slog.Any("error", err))
				continue
			}
			w.onLoad(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", slog.Any("error", err))
		case <-w.stopCh:
			return
		}
	}
}

// Stop stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.fsw.Close()
}
