// Package watch turns filesystem change notifications on the command files
// into a nudge for the controller's next tick. Polling stays authoritative;
// a missed event only costs latency.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// CommandWatcher watches the directories holding a set of files and raises
// a flag whenever one of those files is created, written or renamed into
// place.
type CommandWatcher struct {
	watcher *fsnotify.Watcher
	names   map[string]struct{}
	pending atomic.Bool
	events  atomic.Int64
}

// NewCommandWatcher watches the parent directory of every path. Only events
// whose base name matches one of paths raise the flag, so the temporary
// files used by atomic writes are ignored until they are renamed.
func NewCommandWatcher(paths ...string) (*CommandWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}

	cw := &CommandWatcher{watcher: w, names: make(map[string]struct{})}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		cw.names[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return cw, nil
}

// Run dispatches events until ctx is cancelled or the watcher is closed.
func (cw *CommandWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handle(ev)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (cw *CommandWatcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	if _, ok := cw.names[abs]; !ok {
		return
	}
	slog.Debug("command file changed", "path", ev.Name, "op", ev.Op.String())
	cw.events.Add(1)
	cw.pending.Store(true)
}

// Take reports whether a change was seen since the last call and clears the
// flag.
func (cw *CommandWatcher) Take() bool {
	return cw.pending.Swap(false)
}

// Events returns the number of relevant events seen so far.
func (cw *CommandWatcher) Events() int64 {
	return cw.events.Load()
}

// Close stops watching.
func (cw *CommandWatcher) Close() error {
	return cw.watcher.Close()
}
