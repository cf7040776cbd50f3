// Package scriptwatch watches the on-disk script file a host process was
// launched with and reports write events. ajcored logs each reported
// change; it does not reinstall the script.
package scriptwatch

import (
	"github.com/fsnotify/fsnotify"

	"github.com/alljoynjs/ajcore/internal/corerr"
)

// Watcher wraps an fsnotify.Watcher scoped to a single script file.
type Watcher struct {
	fsw  *fsnotify.Watcher
	path string
}

// New starts watching path for write events.
func New(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindResources, "scriptwatch.New", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, corerr.Wrap(corerr.KindResources, "scriptwatch.New", err)
	}
	return &Watcher{fsw: fsw, path: path}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Changes returns a channel of paths that were written, filtering the
// underlying fsnotify event stream down to Write/Create ops on the
// watched file.
func (w *Watcher) Changes() <-chan string {
	out := make(chan string, 1)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					select {
					case out <- ev.Name:
					default:
					}
				}
			case _, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}
