package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeWatcher is an in-memory Watcher driven by the test.
type fakeWatcher struct {
	mu     sync.Mutex
	paths  map[string]bool
	events chan Event
	errors chan error
	closed bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		paths:  make(map[string]bool),
		events: make(chan Event, 100),
		errors: make(chan error, 10),
	}
}

func (f *fakeWatcher) Watch(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrWatcherClosed
	}
	if f.paths[path] {
		return ErrAlreadyWatching
	}
	f.paths[path] = true
	return nil
}

func (f *fakeWatcher) Unwatch(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.paths[path] {
		return ErrNotWatching
	}
	delete(f.paths, path)
	return nil
}

func (f *fakeWatcher) Events() <-chan Event {
	return f.events
}

func (f *fakeWatcher) Errors() <-chan error {
	return f.errors
}

func (f *fakeWatcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
		close(f.errors)
	}
	return nil
}

func (f *fakeWatcher) IsWatching(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paths[path]
}

func (f *fakeWatcher) WatchedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.paths))
	for p := range f.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (f *fakeWatcher) emit(path string, op Op) {
	f.events <- Event{Path: filepath.Clean(path), Op: op}
}

func TestOp_String(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "CREATE"},
		{OpChmod, "CHMOD"},
		{OpWrite | OpChmod, "WRITE|CHMOD"},
		{OpContent, "CREATE|WRITE|REMOVE|RENAME"},
		{Op(0), "NONE"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestOp_Has(t *testing.T) {
	tests := []struct {
		op     Op
		check  Op
		expect bool
	}{
		{OpCreate, OpCreate, true},
		{OpCreate, OpWrite, false},
		{OpCreate | OpWrite, OpWrite, true},
		{OpRemove | OpRename, OpRemove | OpRename, true},
		{OpContent, OpChmod, false},
	}

	for _, tt := range tests {
		if got := tt.op.Has(tt.check); got != tt.expect {
			t.Errorf("%v.Has(%v) = %v, want %v", tt.op, tt.check, got, tt.expect)
		}
	}
}

func TestForward(t *testing.T) {
	w := newFakeWatcher()

	events := make(chan Event, 1)
	errs := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forward(ctx, w, func(e Event) { events <- e }, func(err error) { errs <- err })
		close(done)
	}()

	w.emit("/a/.vscode/c_cpp_build.json", OpWrite)
	select {
	case e := <-events:
		if e.Path != filepath.Clean("/a/.vscode/c_cpp_build.json") || e.Op != OpWrite {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for forwarded event")
	}

	w.errors <- ErrPathNotExist
	select {
	case err := <-errs:
		if err != ErrPathNotExist {
			t.Errorf("error = %v, want ErrPathNotExist", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for forwarded error")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not return after cancel")
	}
}

func TestForward_StopsOnClose(t *testing.T) {
	w := newFakeWatcher()
	done := make(chan struct{})
	go func() {
		forward(context.Background(), w, func(Event) {}, func(error) {})
		close(done)
	}()

	_ = w.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not return after watcher close")
	}
}
