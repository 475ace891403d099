package detect

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/logging"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

// Options holds the collaborators of an Aggregator.
type Options struct {
	// Folders supplies the workspace folders. Required.
	Folders FolderSource

	// Registry receives the aggregator's registration. Required.
	Registry TaskRegistry

	// Computer computes the tasks of a folder. Required.
	Computer TaskComputer

	// Config triggers a full rebuild on every settings change. Optional.
	Config ConfigNotifier

	// Watcher watches configuration files. Without one, cached results are
	// never invalidated. Optional.
	Watcher FileWatcher

	// Enablement switches detection per folder. Optional.
	Enablement Enablement

	// Logger receives diagnostics. Optional.
	Logger *logging.Logger
}

// Aggregator is the cppbuild task provider for a whole workspace. It owns
// one FolderDetector per folder, keyed by folder URI in insertion order, and
// is registered with the task registry exactly while it has folders.
type Aggregator struct {
	opts   Options
	logger *logging.Logger

	mu        sync.Mutex
	detectors map[string]*FolderDetector
	order     []string
	reg       task.Registration
	unsubs    []func()
	started   bool
	disposed  bool
}

// NewAggregator creates an aggregator. Nothing is watched or registered
// until Start.
func NewAggregator(opts Options) (*Aggregator, error) {
	switch {
	case opts.Folders == nil:
		return nil, fmt.Errorf("%w: folder source", ErrMissingDependency)
	case opts.Registry == nil:
		return nil, fmt.Errorf("%w: task registry", ErrMissingDependency)
	case opts.Computer == nil:
		return nil, fmt.Errorf("%w: task computer", ErrMissingDependency)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}

	return &Aggregator{
		opts:      opts,
		logger:    logger.WithComponent("detect"),
		detectors: make(map[string]*FolderDetector),
	}, nil
}

// Start subscribes to folder and configuration changes and adds every
// current folder. Calling Start more than once has no further effect.
func (a *Aggregator) Start() error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return ErrDisposed
	}
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.mu.Unlock()

	// Subscribe before reading the folder list so no change is missed. A
	// folder reported twice is simply replaced.
	unsubs := []func(){a.opts.Folders.OnFoldersChanged(a.updateFolders)}
	if a.opts.Config != nil {
		unsubs = append(unsubs, a.opts.Config.OnConfigChanged(a.rebuild))
	}

	a.mu.Lock()
	a.unsubs = unsubs
	a.mu.Unlock()

	a.updateFolders(a.opts.Folders.Folders(), nil)
	return nil
}

// updateFolders applies a folder membership change.
func (a *Aggregator) updateFolders(added, removed []workspace.Folder) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed {
		return
	}
	for _, f := range removed {
		a.removeLocked(f.URI)
	}
	for _, f := range added {
		a.addLocked(f)
	}
	a.syncRegistrationLocked()
}

// rebuild drops every detector and recreates them from the current folders.
func (a *Aggregator) rebuild() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed {
		return
	}

	a.logger.Debug("configuration changed, rebuilding %d detectors", len(a.order))
	for _, uri := range a.order {
		a.detectors[uri].Dispose()
	}
	a.detectors = make(map[string]*FolderDetector)
	a.order = nil

	for _, f := range a.opts.Folders.Folders() {
		a.addLocked(f)
	}
	a.syncRegistrationLocked()
}

// addLocked creates and starts a detector for f. A detector already present
// for the same URI is disposed and replaced in place.
// Callers must hold a.mu.
func (a *Aggregator) addLocked(f workspace.Folder) {
	d := NewFolderDetector(f, a.opts.Computer,
		WithFileWatcher(a.opts.Watcher),
		WithEnablement(a.opts.Enablement),
		WithLogger(a.logger),
	)

	if old, ok := a.detectors[f.URI]; ok {
		old.Dispose()
	} else {
		a.order = append(a.order, f.URI)
	}
	a.detectors[f.URI] = d

	if d.IsEnabled() {
		if err := d.Start(); err != nil {
			a.logger.WithField("folder", f.Name).Warn("start detector: %v", err)
		}
	}
}

// removeLocked disposes and forgets the detector for uri, if any.
// Callers must hold a.mu.
func (a *Aggregator) removeLocked(uri string) {
	d, ok := a.detectors[uri]
	if !ok {
		return
	}
	d.Dispose()
	delete(a.detectors, uri)
	for i, u := range a.order {
		if u == uri {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// syncRegistrationLocked registers the aggregator when it has folders and
// unregisters it when it has none. Callers must hold a.mu.
func (a *Aggregator) syncRegistrationLocked() {
	switch {
	case len(a.order) > 0 && a.reg == nil:
		a.reg = a.opts.Registry.Register(task.ToolName, a)
		a.logger.Debug("registered %s task provider", task.ToolName)
	case len(a.order) == 0 && a.reg != nil:
		a.reg.Dispose()
		a.reg = nil
		a.logger.Debug("unregistered %s task provider", task.ToolName)
	}
}

// ProvideTasks returns the tasks of every folder in insertion order.
//
// With a single folder its result is returned as is, error included. With
// several folders they are queried concurrently and a failing folder
// contributes no tasks; the failure is logged.
func (a *Aggregator) ProvideTasks(ctx context.Context) ([]*task.Task, error) {
	dets := a.snapshot()

	switch len(dets) {
	case 0:
		return []*task.Task{}, nil
	case 1:
		return dets[0].Tasks(ctx)
	}

	results := make([][]*task.Task, len(dets))
	var wg sync.WaitGroup
	for i, d := range dets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, err := d.Tasks(ctx)
			if err != nil {
				a.logger.WithField("folder", d.Folder().Name).Warn("detect tasks: %v", err)
				return
			}
			results[i] = tasks
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := make([]*task.Task, 0)
	for _, tasks := range results {
		all = append(all, tasks...)
	}
	return all, nil
}

// ResolveTask is not supported and always returns nil, nil.
func (a *Aggregator) ResolveTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	return nil, nil
}

// Dispose unsubscribes from every notification, unregisters the provider and
// disposes every detector. Safe to call repeatedly.
func (a *Aggregator) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	unsubs := a.unsubs
	a.unsubs = nil
	reg := a.reg
	a.reg = nil
	dets := make([]*FolderDetector, 0, len(a.order))
	for _, uri := range a.order {
		dets = append(dets, a.detectors[uri])
	}
	a.detectors = make(map[string]*FolderDetector)
	a.order = nil
	a.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if reg != nil {
		reg.Dispose()
	}
	for _, d := range dets {
		d.Dispose()
	}
}

// Folders returns the URIs of the tracked folders in insertion order.
func (a *Aggregator) Folders() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	uris := make([]string, len(a.order))
	copy(uris, a.order)
	return uris
}

// Detector returns the detector for the folder with uri.
func (a *Aggregator) Detector(uri string) (*FolderDetector, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, ok := a.detectors[uri]
	return d, ok
}

// IsRegistered reports whether the aggregator is registered as a provider.
func (a *Aggregator) IsRegistered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reg != nil
}

func (a *Aggregator) snapshot() []*FolderDetector {
	a.mu.Lock()
	defer a.mu.Unlock()

	dets := make([]*FolderDetector, 0, len(a.order))
	for _, uri := range a.order {
		dets = append(dets, a.detectors[uri])
	}
	return dets
}

// Ensure Aggregator implements task.Provider.
var _ task.Provider = (*Aggregator)(nil)
