package detect

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/project/watcher"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

// fakeWatch is a FileWatch whose callbacks the test fires by hand.
type fakeWatch struct {
	pattern string

	mu       sync.Mutex
	onChange []func(string)
	onCreate []func(string)
	onDelete []func(string)
	closed   bool
}

func (w *fakeWatch) OnChange(fn func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

func (w *fakeWatch) OnCreate(fn func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onCreate = append(w.onCreate, fn)
}

func (w *fakeWatch) OnDelete(fn func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDelete = append(w.onDelete, fn)
}

func (w *fakeWatch) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWatch) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWatch) fire(op watcher.Op, path string) {
	w.mu.Lock()
	var fns []func(string)
	if !w.closed {
		switch op {
		case watcher.OpCreate:
			fns = w.onCreate
		case watcher.OpWrite:
			fns = w.onChange
		case watcher.OpRemove:
			fns = w.onDelete
		}
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(path)
	}
}

// fakeWatcher hands out fakeWatch values and remembers them.
type fakeWatcher struct {
	mu      sync.Mutex
	watches []*fakeWatch
	err     error
}

func (f *fakeWatcher) WatchFiles(pattern string) (watcher.FileWatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	w := &fakeWatch{pattern: pattern}
	f.watches = append(f.watches, w)
	return w, nil
}

func (f *fakeWatcher) all() []*fakeWatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeWatch, len(f.watches))
	copy(out, f.watches)
	return out
}

func (f *fakeWatcher) open() int {
	n := 0
	for _, w := range f.all() {
		if !w.isClosed() {
			n++
		}
	}
	return n
}

func (f *fakeWatcher) last() *fakeWatch {
	all := f.all()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// fakeRegistry counts registrations.
type fakeRegistry struct {
	mu         sync.Mutex
	registered int
	disposed   int
	active     int
	provider   task.Provider
}

type fakeRegistration struct {
	r    *fakeRegistry
	once sync.Once
}

func (r *fakeRegistration) ID() string { return "fake" }

func (r *fakeRegistration) Dispose() {
	r.once.Do(func() {
		r.r.mu.Lock()
		defer r.r.mu.Unlock()
		r.r.disposed++
		r.r.active--
	})
}

func (f *fakeRegistry) Register(tool string, p task.Provider) task.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered++
	f.active++
	f.provider = p
	return &fakeRegistration{r: f}
}

func (f *fakeRegistry) counts() (registered, disposed, active int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered, f.disposed, f.active
}

// fakeFolders is a FolderSource the test mutates directly.
type fakeFolders struct {
	mu        sync.Mutex
	folders   []workspace.Folder
	listeners map[int]func(added, removed []workspace.Folder)
	next      int
}

func newFakeFolders(folders ...workspace.Folder) *fakeFolders {
	return &fakeFolders{
		folders:   folders,
		listeners: make(map[int]func(added, removed []workspace.Folder)),
	}
}

func (f *fakeFolders) Folders() []workspace.Folder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]workspace.Folder, len(f.folders))
	copy(out, f.folders)
	return out
}

func (f *fakeFolders) OnFoldersChanged(fn func(added, removed []workspace.Folder)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeFolders) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeFolders) change(added, removed []workspace.Folder) {
	f.mu.Lock()
	for _, r := range removed {
		for i, existing := range f.folders {
			if existing.URI == r.URI {
				f.folders = append(f.folders[:i], f.folders[i+1:]...)
				break
			}
		}
	}
	f.folders = append(f.folders, added...)
	fns := make([]func(added, removed []workspace.Folder), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(added, removed)
	}
}

// fakeConfig is a ConfigNotifier and Enablement.
type fakeConfig struct {
	mu        sync.Mutex
	disabled  map[string]bool
	listeners map[int]func()
	next      int
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{
		disabled:  make(map[string]bool),
		listeners: make(map[int]func()),
	}
}

func (c *fakeConfig) AutoDetect(folder workspace.Folder) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disabled[folder.URI]
}

func (c *fakeConfig) setEnabled(folder workspace.Folder, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled[folder.URI] = !enabled
}

func (c *fakeConfig) OnConfigChanged(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *fakeConfig) fire() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *fakeConfig) listenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// countingComputer returns per-folder results and counts calls. When gate is
// set, every call blocks until it is closed.
type countingComputer struct {
	calls   atomic.Int32
	gate    chan struct{}
	mu      sync.Mutex
	results map[string][]*task.Task
	errs    map[string]error
}

func newCountingComputer() *countingComputer {
	return &countingComputer{
		results: make(map[string][]*task.Task),
		errs:    make(map[string]error),
	}
}

func (c *countingComputer) set(folder workspace.Folder, tasks []*task.Task, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[folder.URI] = tasks
	c.errs[folder.URI] = err
}

func (c *countingComputer) ComputeTasks(ctx context.Context, folder workspace.Folder) ([]*task.Task, error) {
	c.calls.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[folder.URI], c.errs[folder.URI]
}

func makeTasks(folder workspace.Folder, names ...string) []*task.Task {
	tasks := make([]*task.Task, len(names))
	for i, name := range names {
		tasks[i] = &task.Task{Name: name, Source: task.ToolName, Folder: folder.URI}
	}
	return tasks
}

func localFolder(t *testing.T) workspace.Folder {
	t.Helper()
	f, err := workspace.FolderFromPath(t.TempDir())
	if err != nil {
		t.Fatalf("FolderFromPath error = %v", err)
	}
	return f
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
