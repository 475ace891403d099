// Package app wires the cpptasks components together and manages their
// lifecycle.
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dshills/cpptasks/internal/config"
	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/integration/task/detect"
	"github.com/dshills/cpptasks/internal/integration/task/sources"
	"github.com/dshills/cpptasks/internal/logging"
	"github.com/dshills/cpptasks/internal/project/watcher"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the settings file. Empty uses the environment only.
	ConfigPath string

	// Folders are the workspace folder paths.
	Folders []string

	// WorkspaceFile is a .code-workspace file whose folders are added
	// before Folders.
	WorkspaceFile string

	// LogLevel overrides the log_level setting when not empty.
	LogLevel string

	// LogOutput receives diagnostics. Defaults to os.Stderr.
	LogOutput io.Writer

	// OutputLog receives the detection output log when the log_file setting
	// is empty. Nil discards it.
	OutputLog io.Writer

	// Warn shows a message to the user. Defaults to a warning log line.
	Warn func(msg string)

	// NoWatch disables file watching. Results are then computed once.
	NoWatch bool

	// Computer replaces the default cppbuild task computer.
	Computer detect.TaskComputer

	// Debounce is the quiet period before Changes is signalled. Zero uses
	// DefaultDebounce; a negative value signals every change immediately.
	Debounce time.Duration
}

// Application owns every cpptasks component.
type Application struct {
	opts Options

	logger     *logging.Logger
	config     *config.Config
	workspace  *workspace.Workspace
	hub        *watcher.Hub
	registry   *task.Registry
	reporter   *Reporter
	metrics    *Metrics
	aggregator *detect.Aggregator

	changes  chan struct{}
	debounce *debouncer

	mu       sync.Mutex
	started  bool
	shutdown bool
	unsubs   []func()
	watches  map[string]watcher.FileWatch // by folder URI
}

// New creates an Application with every component constructed but nothing
// started.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts:     opts,
		registry: task.NewRegistry(),
		metrics:  NewMetrics(),
		changes:  make(chan struct{}, 1),
		watches:  make(map[string]watcher.FileWatch),
	}
	delay := opts.Debounce
	if delay == 0 {
		delay = DefaultDebounce
	}
	app.debounce = newDebouncer(delay, app.notify)

	if err := app.bootstrap(); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap() error {
	out := app.opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	cfg := logging.DefaultConfig()
	cfg.Output = out
	app.logger = logging.New(cfg)

	// 1. Config
	app.config = config.New(
		config.WithPath(app.opts.ConfigPath),
		config.WithLogger(app.logger),
	)
	if err := app.config.Load(); err != nil {
		return &InitError{Component: "config", Err: err}
	}
	settings := app.config.Settings()

	level := settings.LogLevel
	if app.opts.LogLevel != "" {
		if !logging.ValidLevel(app.opts.LogLevel) {
			return &InitError{Component: "logger", Err: errors.New("unknown log level " + app.opts.LogLevel)}
		}
		level = app.opts.LogLevel
	}
	app.logger.SetLevel(logging.ParseLevel(level))

	// 2. Workspace
	ws, err := app.openWorkspace()
	if err != nil {
		return &InitError{Component: "workspace", Err: err}
	}
	app.workspace = ws

	// 3. File watching
	if !app.opts.NoWatch {
		hub, err := watcher.NewHub(app.logger)
		if err != nil {
			return &InitError{Component: "watcher", Err: err}
		}
		app.hub = hub
	}

	// 4. Reporting
	warn := app.opts.Warn
	if warn == nil {
		warn = func(msg string) { app.logger.Warn("%s", msg) }
	}
	reporter, err := NewReporter(settings.LogFile, app.opts.OutputLog, warn)
	if err != nil {
		return &InitError{Component: "output log", Err: err}
	}
	app.reporter = reporter

	// 5. Detection
	computer := app.opts.Computer
	if computer == nil {
		computer = sources.NewComputer(sources.NewJSONBuildInfoProvider(), app.logger)
	}

	detectOpts := detect.Options{
		Folders:    app.workspace,
		Registry:   app.registry,
		Computer:   newReportingComputer(computer, app.reporter, app.metrics),
		Config:     app.config,
		Enablement: app.config,
		Logger:     app.logger,
	}
	if app.hub != nil {
		detectOpts.Watcher = app.hub
	}
	app.aggregator, err = detect.NewAggregator(detectOpts)
	if err != nil {
		return &InitError{Component: "detection", Err: err}
	}
	return nil
}

func (app *Application) openWorkspace() (*workspace.Workspace, error) {
	if app.opts.WorkspaceFile == "" {
		if len(app.opts.Folders) == 0 {
			return workspace.New(), nil
		}
		return workspace.NewFromPaths(app.opts.Folders...)
	}

	ws, err := workspace.OpenFromWorkspaceFile(app.opts.WorkspaceFile)
	if err != nil {
		return nil, err
	}
	for _, path := range app.opts.Folders {
		err := ws.AddFolder(context.Background(), path)
		if err != nil && !errors.Is(err, workspace.ErrFolderExists) {
			ws.Close(context.Background())
			return nil, err
		}
	}
	return ws, nil
}

// Start scaffolds missing build-steps files, starts watching the settings
// file and starts task detection.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	switch {
	case app.shutdown:
		app.mu.Unlock()
		return ErrShutdown
	case app.started:
		app.mu.Unlock()
		return ErrAlreadyStarted
	}
	app.started = true
	app.mu.Unlock()

	if _, err := app.Scaffold(ctx); err != nil {
		app.logger.Warn("scaffold build files: %v", err)
	}

	if app.hub != nil {
		if err := app.config.Watch(app.hub); err != nil {
			app.logger.Warn("watch settings: %v", err)
		}
	}

	if err := app.aggregator.Start(); err != nil {
		return &InitError{Component: "detection", Err: err}
	}

	unsubs := []func(){
		app.config.OnSettingChanged(config.KeyLogLevel, func(v any) {
			if app.opts.LogLevel != "" {
				return
			}
			level, _ := v.(string)
			app.logger.SetLevel(logging.ParseLevel(level))
		}),
		app.config.OnConfigChanged(func() {
			app.reporter.Reset()
			app.signal()
		}),
		app.workspace.OnFoldersChanged(func(added, removed []workspace.Folder) {
			app.unwatchFolders(removed)
			app.watchFolders(added)
			app.signal()
		}),
	}

	app.mu.Lock()
	app.unsubs = append(app.unsubs, unsubs...)
	app.mu.Unlock()

	app.watchFolders(app.workspace.Folders())
	return nil
}

// watchFolders signals Changes when the configuration files of folders
// change. A folder that is already watched gets a fresh watch.
func (app *Application) watchFolders(folders []workspace.Folder) {
	if app.hub == nil {
		return
	}
	for _, f := range folders {
		root, ok := f.LocalPath()
		if !ok {
			continue
		}
		fw, err := app.hub.WatchFiles(detect.WatchPattern(root))
		if err != nil {
			app.logger.WithField("folder", f.Name).Warn("watch build files: %v", err)
			continue
		}
		notify := func(string) { app.signal() }
		fw.OnChange(notify)
		fw.OnCreate(notify)
		fw.OnDelete(notify)

		app.mu.Lock()
		if app.shutdown {
			app.mu.Unlock()
			fw.Close()
			return
		}
		prev := app.watches[f.URI]
		app.watches[f.URI] = fw
		app.mu.Unlock()

		if prev != nil {
			prev.Close()
		}
	}
}

// unwatchFolders closes the watches of folders that left the workspace.
func (app *Application) unwatchFolders(folders []workspace.Folder) {
	for _, f := range folders {
		app.mu.Lock()
		fw := app.watches[f.URI]
		delete(app.watches, f.URI)
		app.mu.Unlock()

		if fw != nil {
			fw.Close()
		}
	}
}

func (app *Application) signal() {
	app.debounce.Trigger()
}

func (app *Application) notify() {
	select {
	case app.changes <- struct{}{}:
	default:
	}
}

// Changes delivers a value after settings, folders or build files change.
// Bursts within the debounce period are coalesced.
func (app *Application) Changes() <-chan struct{} {
	return app.changes
}

// Scaffold writes an initial build-steps file for every local folder that
// has a properties file but no build-steps file. It returns the files written.
func (app *Application) Scaffold(ctx context.Context) ([]string, error) {
	var (
		created []string
		errs    []error
	)
	for _, f := range app.workspace.Folders() {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		root, ok := f.LocalPath()
		if !ok {
			continue
		}

		ok, err := sources.CreateInitialBuildFile(root)
		if err != nil {
			ferr := &FolderError{Folder: f.Name, Op: "scaffold", Err: err}
			app.reporter.ReportError(f.Name, ferr)
			errs = append(errs, ferr)
			continue
		}
		if ok {
			_, path := sources.ConfigPaths(root)
			app.logger.WithField("folder", f.Name).Info("created %s", path)
			created = append(created, path)
		}
	}
	return created, errors.Join(errs...)
}

// Tasks returns the tasks of every registered provider.
func (app *Application) Tasks(ctx context.Context) ([]*task.Task, error) {
	app.mu.Lock()
	down := app.shutdown
	app.mu.Unlock()
	if down {
		return nil, ErrShutdown
	}
	return app.registry.Tasks(ctx)
}

// Shutdown stops detection and releases every resource. Safe to call more
// than once.
func (app *Application) Shutdown() error {
	app.mu.Lock()
	if app.shutdown {
		app.mu.Unlock()
		return nil
	}
	app.shutdown = true
	unsubs := app.unsubs
	app.unsubs = nil
	watches := app.watches
	app.watches = make(map[string]watcher.FileWatch)
	app.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	app.debounce.Stop()
	for _, fw := range watches {
		fw.Close()
	}

	var errs []error
	if app.aggregator != nil {
		app.aggregator.Dispose()
	}
	if app.config != nil {
		errs = append(errs, app.config.Close())
	}
	if app.hub != nil {
		errs = append(errs, app.hub.Close())
	}
	if app.reporter != nil {
		errs = append(errs, app.reporter.Close())
	}
	if app.workspace != nil {
		errs = append(errs, app.workspace.Close(context.Background()))
	}
	return errors.Join(errs...)
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Config returns the settings.
func (app *Application) Config() *config.Config {
	return app.config
}

// Workspace returns the workspace.
func (app *Application) Workspace() *workspace.Workspace {
	return app.workspace
}

// Registry returns the task registry.
func (app *Application) Registry() *task.Registry {
	return app.registry
}

// Reporter returns the failure reporter.
func (app *Application) Reporter() *Reporter {
	return app.reporter
}

// Metrics returns the computation metrics.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

// Aggregator returns the cppbuild task provider.
func (app *Application) Aggregator() *detect.Aggregator {
	return app.aggregator
}
