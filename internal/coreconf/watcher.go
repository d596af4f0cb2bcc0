package coreconf

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher is a filesystem-change detector for the configuration file,
// grounded on giantswarm-muster/internal/reconciler/filesystem_detector.go.
// It only emits on its own Requests channel. Neither internal/master
// nor cmd/nginxcore creates a Watcher or reads Requests, so a fire
// does not set the reconfigure latch; reconfiguration is driven by the
// signal protocol alone.
type Watcher struct {
	w        *fsnotify.Watcher
	Requests chan struct{}
	log      *slog.Logger
}

// NewWatcher watches the directory containing configPath and emits on
// Requests whenever that file is written or renamed into place (the
// common "atomic config replace" pattern: write temp file, rename over
// original).
func NewWatcher(configPath string, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(configPath)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{w: fw, Requests: make(chan struct{}, 1), log: log}
	target := filepath.Clean(configPath)
	go w.loop(target)
	return w, nil
}

func (w *Watcher) loop(target string) {
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.Requests <- struct{}{}:
			default:
				// a reconfigure is already pending; coalesce.
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("coreconf: fsnotify watch error", "error", err)
			}
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.w.Close() }
