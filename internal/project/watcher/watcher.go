// Package watcher provides file system watching for build configuration files.
//
// A Watcher reports raw create, write, remove and rename events for watched
// directories. A Hub multiplexes one Watcher into pattern subscriptions so
// that many folders can watch their own configuration files through a single
// fsnotify instance.
package watcher

import (
	"context"
	"errors"
	"strings"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
	ErrInvalidPattern  = errors.New("invalid watch pattern")
)

// Op is a set of file system operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// OpContent is every operation that can change what a file holds.
const OpContent = OpCreate | OpWrite | OpRemove | OpRename

var opNames = []struct {
	op   Op
	name string
}{
	{OpCreate, "CREATE"},
	{OpWrite, "WRITE"},
	{OpRemove, "REMOVE"},
	{OpRename, "RENAME"},
	{OpChmod, "CHMOD"},
}

// String lists the operations in op, separated by '|'.
func (op Op) String() string {
	var parts []string
	for _, n := range opNames {
		if op.Has(n.op) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Has reports whether op includes every operation in o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is one change to a path inside a watched directory.
type Event struct {
	Path string
	Op   Op
}

// Watcher reports changes inside a set of directories. Watches are not
// recursive.
type Watcher interface {
	// Watch adds a directory. It returns ErrPathNotExist when path is
	// missing and ErrAlreadyWatching when it is already watched.
	Watch(path string) error

	// Unwatch removes a directory. It returns ErrNotWatching for a path that
	// is not watched.
	Unwatch(path string) error

	// Events and Errors are closed by Close.
	Events() <-chan Event
	Errors() <-chan error

	Close() error

	// WatchedPaths returns the watched directories.
	WatchedPaths() []string
}

// forward passes events and errors from w to the callbacks until ctx is done
// or the event channel closes.
func forward(ctx context.Context, w Watcher, onEvent func(Event), onError func(error)) {
	events, errs := w.Events(), w.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			onEvent(e)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			onError(err)
		}
	}
}
