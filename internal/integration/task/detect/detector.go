package detect

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/logging"
	"github.com/dshills/cpptasks/internal/project/watcher"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

// result is a shared computation. done is closed once tasks and err are set.
type result struct {
	done  chan struct{}
	tasks []*task.Task
	err   error
}

// FolderDetector watches one folder's configuration files and caches the
// folder's tasks until one of them changes.
type FolderDetector struct {
	folder   workspace.Folder
	computer TaskComputer
	watcher  FileWatcher
	enable   Enablement
	logger   *logging.Logger

	mu       sync.Mutex
	watch    watcher.FileWatch
	cached   *result
	disposed bool
}

// DetectorOption configures a FolderDetector.
type DetectorOption func(*FolderDetector)

// WithFileWatcher sets the watcher used by Start.
func WithFileWatcher(w FileWatcher) DetectorOption {
	return func(d *FolderDetector) {
		d.watcher = w
	}
}

// WithEnablement sets the auto detection switch. Without one the detector is
// always enabled.
func WithEnablement(e Enablement) DetectorOption {
	return func(d *FolderDetector) {
		d.enable = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) DetectorOption {
	return func(d *FolderDetector) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewFolderDetector creates a detector for folder. It does nothing until
// Start or Tasks is called.
func NewFolderDetector(folder workspace.Folder, computer TaskComputer, opts ...DetectorOption) *FolderDetector {
	d := &FolderDetector{
		folder:   folder,
		computer: computer,
		logger:   logging.Null(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithField("folder", folder.Name)
	return d
}

// Folder returns the folder the detector serves.
func (d *FolderDetector) Folder() workspace.Folder {
	return d.folder
}

// Start watches the folder's configuration files. Any create, change or
// delete event drops the cached result. Calling Start again replaces the
// previous watch. Folders outside the local file system are not watched.
func (d *FolderDetector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return ErrDisposed
	}
	if d.watcher == nil {
		return nil
	}
	path, ok := d.folder.LocalPath()
	if !ok {
		return nil
	}

	if d.watch != nil {
		_ = d.watch.Close()
		d.watch = nil
	}

	fw, err := d.watcher.WatchFiles(WatchPattern(path))
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	fw.OnCreate(d.invalidate)
	fw.OnChange(d.invalidate)
	fw.OnDelete(d.invalidate)
	d.watch = fw

	d.logger.Debug("watching build configuration")
	return nil
}

// IsEnabled reports whether auto detection is on for the folder.
func (d *FolderDetector) IsEnabled() bool {
	if d.enable == nil {
		return true
	}
	return d.enable.AutoDetect(d.folder)
}

// IsWatching reports whether the detector holds an active file watch.
func (d *FolderDetector) IsWatching() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.watch != nil
}

// Tasks returns the folder's tasks. A disabled or disposed detector returns
// an empty list. Otherwise the cached result is returned, computing it first
// when there is none; concurrent callers wait for the same computation.
// A failed computation stays cached until the next file event.
//
// ctx bounds only this caller's wait. The computation itself keeps running
// for the other callers.
func (d *FolderDetector) Tasks(ctx context.Context) ([]*task.Task, error) {
	if !d.IsEnabled() {
		return []*task.Task{}, nil
	}

	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return []*task.Task{}, nil
	}
	r := d.cached
	if r == nil {
		r = &result{done: make(chan struct{})}
		d.cached = r
		go d.compute(r)
	}
	d.mu.Unlock()

	select {
	case <-r.done:
		if r.err != nil {
			return nil, r.err
		}
		tasks := make([]*task.Task, len(r.tasks))
		copy(tasks, r.tasks)
		return tasks, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *FolderDetector) compute(r *result) {
	defer func() {
		if p := recover(); p != nil {
			r.tasks, r.err = nil, fmt.Errorf("compute tasks for %s: panic: %v", d.folder.URI, p)
		}
		close(r.done)
	}()

	// The computation is not cancellable. Callers already waiting on r get
	// its result even after an invalidation or Dispose.
	d.logger.Debug("computing tasks")
	tasks, err := d.computer.ComputeTasks(context.Background(), d.folder)
	if err != nil {
		r.err = err
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	r.tasks = tasks
}

// invalidate drops the cached result. An in-flight computation still
// completes for the callers already waiting on it.
func (d *FolderDetector) invalidate(path string) {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()

	d.logger.Debug("%s changed", path)
}

// Dispose closes the file watch and drops the cache. A running computation
// still completes for the callers waiting on it. Later calls to Tasks return
// an empty list. Safe to call repeatedly and without Start.
func (d *FolderDetector) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	d.cached = nil
	fw := d.watch
	d.watch = nil
	d.mu.Unlock()

	if fw != nil {
		if err := fw.Close(); err != nil {
			d.logger.Warn("close watch: %v", err)
		}
	}
}
