package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher holds the single atomically-swappable Config shared reference
// (spec.md §5): a request in flight keeps using the snapshot it captured at
// entry, even across a reload.
type Watcher struct {
	path     string
	current  atomic.Value // holds *Config
	watcher  *fsnotify.Watcher
	log      *logrus.Entry
	onReload func(*Config)
}

// NewWatcher loads path once and starts watching it for changes. onReload,
// if non-nil, runs after every successful reload (not the initial load) with
// the freshly loaded Config -- the caller's hook to rebuild whatever is
// built from a Config snapshot (e.g. the gateway's router) and swap it in.
func NewWatcher(path string, log *logrus.Entry, onReload func(*Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, log: log, onReload: onReload}
	w.current.Store(cfg)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		// Hot reload is ambient convenience, not core correctness: fall back
		// to a non-reloading watcher rather than failing startup.
		if log != nil {
			log.WithError(err).Warn("config: hot reload disabled, fsnotify unavailable")
		}
		return w, nil
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		if log != nil {
			log.WithError(err).Warn("config: hot reload disabled, cannot watch file")
		}
		return w, nil
	}
	w.watcher = fw
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.log != nil {
					w.log.WithError(err).Warn("config: reload failed, keeping previous config")
				}
				continue
			}
			w.current.Store(cfg)
			if w.log != nil {
				w.log.Info("config: reloaded")
			}
			if w.onReload != nil {
				w.onReload(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.WithError(err).Warn("config: watch error")
			}
		}
	}
}

// Current returns the latest loaded Config snapshot. Callers should take
// this once per request and keep using that reference for the request's
// lifetime.
func (w *Watcher) Current() *Config {
	return w.current.Load().(*Config)
}

// Close stops the file watcher, if any.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
