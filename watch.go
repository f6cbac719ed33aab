// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches the config file and resource directory for edits
// and republishes a ReloadMessage on the bus (§9: plugin Reload hook),
// grounded on gravwell's use of fsnotify for its own config hot-reload.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	bus     *Bus
	log     *slog.Logger
}

// NewConfigWatcher creates a watcher over configPath and resourceRoot.
func NewConfigWatcher(configPath, resourceRoot string, bus *Bus, log *slog.Logger) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(configPath); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(resourceRoot); err != nil {
		w.Close()
		return nil, err
	}
	return &ConfigWatcher{watcher: w, bus: bus, log: log}, nil
}

// Run drains fsnotify events until ctx is cancelled, publishing a
// ReloadMessage naming the plugin whose resource directory changed (the
// first path element under resourceRoot), or "" for the config file
// itself.
func (w *ConfigWatcher) Run(ctx context.Context, resourceRoot string) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			plugin := pluginNameFromResourcePath(resourceRoot, ev.Name)
			w.bus.Publish(TopicReload, ReloadMessage{Plugin: plugin})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

// pluginNameFromResourcePath extracts the first path element under root,
// which by convention (persist.go's ResourcePath) is the plugin name; "" if
// path isn't under root at all (e.g. the config file).
func pluginNameFromResourcePath(root, path string) string {
	rel := path
	if len(path) > len(root) && path[:len(root)] == root {
		rel = path[len(root):]
	} else {
		return ""
	}
	for len(rel) > 0 && (rel[0] == '/' || rel[0] == '\\') {
		rel = rel[1:]
	}
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' || rel[i] == '\\' {
			return rel[:i]
		}
	}
	return rel
}
