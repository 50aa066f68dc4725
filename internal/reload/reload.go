// Package reload implements the hot-reload coordinator (spec.md §4.10):
// watch the YAML source file, and on every write, parse it off the
// critical path and swap it into Storage. Grounded on
// other_examples/0207ab08_hazyhaar-GoClode__internal-core-db.go.go's
// fsnotify.Watcher usage, generalized to reload a declarative YAML
// database instead of a SQLite file, and debounced the way editors'
// save-then-rewrite sequences require.
package reload

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/yamlload"
)

const debounce = 1 * time.Second

// Watcher subscribes to write events on path and reloads storage on
// each one, debounced. Auth credentials are never touched by a reload
// (spec.md §4.10) — yamlload.Load always returns a fresh Database with
// its own schema.Auth, but the caller's srvconfig.Config (the live
// credential source) is constructed once at startup and is untouched
// by anything in this package.
type Watcher struct {
	path    string
	storage *schema.Storage
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// New starts watching path immediately; call Close to stop.
func New(path string, storage *schema.Storage) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, storage: storage, watcher: fw, stop: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			_ = w.watcher.Close()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				pending = timer.C
			} else {
				timer.Reset(debounce)
			}
		case <-pending:
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Warn("reload: file watcher error")
		}
	}
}

// reload parses the file off the critical path and swaps it in; a
// parse error is logged and the prior snapshot remains in effect
// (spec.md §4.10), so a truncated or mid-write file never replaces a
// good one.
func (w *Watcher) reload() {
	db, err := yamlload.Load(w.path)
	if err != nil {
		logrus.WithError(err).Warn("reload: failed to parse updated YAML file, keeping prior snapshot")
		return
	}
	w.storage.Swap(db)
	logrus.Info("reload: database reloaded from disk")
}

func (w *Watcher) Close() {
	close(w.stop)
}
