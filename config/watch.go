package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a configuration file when it changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// NewWatcher starts watching path. The parent directory is watched so that
// editors replacing the file by rename are seen.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, _, err := codecFor(abs); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, watcher: fw, log: slog.Default()}, nil
}

// SetLogger replaces the logger used for watcher errors.
func (w *Watcher) SetLogger(l *slog.Logger) {
	if l != nil {
		w.log = l
	}
}

// Run delivers a freshly loaded Config, or the load error, to fn after each
// change to the file. It returns when ctx is done and closes the watcher.
func (w *Watcher) Run(ctx context.Context, fn func(*Config, error)) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			c, err := Load(w.path)
			if err != nil && ev.Op&fsnotify.Rename != 0 {
				// renamed away; the replacement arrives as Create
				continue
			}
			fn(c, err)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config: watcher error", "path", w.path, "err", err)
		}
	}
}

// Close stops a watcher that was never Run.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Watch is NewWatcher followed by Run.
func Watch(ctx context.Context, path string, fn func(*Config, error)) error {
	w, err := NewWatcher(path)
	if err != nil {
		return err
	}
	return w.Run(ctx, fn)
}
