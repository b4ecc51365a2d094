package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

// PreferenceWatcher reloads the keyword preference table whenever its file changes.
// A file that fails to parse is logged and ignored; the previous table stays active.
type PreferenceWatcher struct {
	path    string
	apply   func([]catalog.PreferenceRule)
	watcher *fsnotify.Watcher
}

// WatchPreferences starts watching path. The parent directory is watched rather
// than the file itself so editors that save via rename are picked up.
func WatchPreferences(path string, apply func([]catalog.PreferenceRule)) (*PreferenceWatcher, error) {
	abs, err := filepath.Abs(ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("resolve preferences path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &PreferenceWatcher{path: abs, apply: apply, watcher: w}, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (p *PreferenceWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != p.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			p.reload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config.preferences.watch_error", "error", err)
		}
	}
}

func (p *PreferenceWatcher) reload() {
	rules, err := LoadPreferences(p.path)
	if err != nil {
		slog.Warn("config.preferences.reload_failed", "path", p.path, "error", err)
		return
	}
	p.apply(rules)
	slog.Info("config.preferences.reloaded", "path", p.path, "rules", len(rules))
}

// Close stops the underlying fsnotify watcher.
func (p *PreferenceWatcher) Close() error {
	return p.watcher.Close()
}
