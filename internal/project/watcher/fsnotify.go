package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// eventBuffer is the capacity of the event and error channels.
const eventBuffer = 64

// FSNotifyWatcher is a Watcher backed by fsnotify.
type FSNotifyWatcher struct {
	fsw  *fsnotify.Watcher
	mask Op

	mu     sync.Mutex
	dirs   map[string]struct{}
	closed bool

	events chan Event
	errs   chan error
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Option configures an FSNotifyWatcher.
type Option func(*FSNotifyWatcher)

// WithOps reports only events that share an operation with mask. Events are
// still reported with every operation fsnotify saw.
func WithOps(mask Op) Option {
	return func(w *FSNotifyWatcher) {
		w.mask = mask
	}
}

// NewFSNotifyWatcher starts an fsnotify watcher. By default every operation
// is reported.
func NewFSNotifyWatcher(opts ...Option) (*FSNotifyWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &FSNotifyWatcher{
		fsw:    fsw,
		mask:   OpContent | OpChmod,
		dirs:   make(map[string]struct{}),
		events: make(chan Event, eventBuffer),
		errs:   make(chan error, eventBuffer),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *FSNotifyWatcher) Watch(path string) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.closed:
		return ErrWatcherClosed
	case w.watchingLocked(dir):
		return ErrAlreadyWatching
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return ErrPathNotExist
	} else if err != nil {
		return err
	}

	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = struct{}{}
	return nil
}

func (w *FSNotifyWatcher) Unwatch(path string) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.closed:
		return ErrWatcherClosed
	case !w.watchingLocked(dir):
		return ErrNotWatching
	}
	delete(w.dirs, dir)

	// fsnotify forgets removed directories by itself.
	err = w.fsw.Remove(dir)
	if errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return nil
	}
	return err
}

func (w *FSNotifyWatcher) watchingLocked(dir string) bool {
	_, ok := w.dirs[dir]
	return ok
}

func (w *FSNotifyWatcher) Events() <-chan Event { return w.events }

func (w *FSNotifyWatcher) Errors() <-chan error { return w.errs }

// WatchedPaths returns the watched directories in sorted order.
func (w *FSNotifyWatcher) WatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Close stops delivery, closes both channels and releases the fsnotify
// watcher. Safe to call more than once.
func (w *FSNotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stop)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.events)
	close(w.errs)
	return w.fsw.Close()
}

func (w *FSNotifyWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case e, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(e)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *FSNotifyWatcher) handle(e fsnotify.Event) {
	op := fromFSNotify(e.Op)

	// A watched directory that is removed or renamed loses its watch.
	if op&(OpRemove|OpRename) != 0 {
		w.mu.Lock()
		delete(w.dirs, filepath.Clean(e.Name))
		w.mu.Unlock()
	}

	if op&w.mask == 0 {
		return
	}
	select {
	case w.events <- Event{Path: e.Name, Op: op}:
	case <-w.stop:
	}
}

var fsnotifyOps = []struct {
	from fsnotify.Op
	to   Op
}{
	{fsnotify.Create, OpCreate},
	{fsnotify.Write, OpWrite},
	{fsnotify.Remove, OpRemove},
	{fsnotify.Rename, OpRename},
	{fsnotify.Chmod, OpChmod},
}

func fromFSNotify(in fsnotify.Op) Op {
	var op Op
	for _, m := range fsnotifyOps {
		if in.Has(m.from) {
			op |= m.to
		}
	}
	return op
}

var _ Watcher = (*FSNotifyWatcher)(nil)
