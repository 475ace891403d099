// Package config loads cpptasks settings and reports changes to them.
//
// Settings come from an optional TOML or YAML file overridden by CPPTASKS_
// environment variables:
//
//	log_level = "debug"
//	log_file = "/tmp/cpptasks.log"
//	auto_detect = "on"
//
//	[folders.engine]
//	auto_detect = "off"
//
//	[folders."/home/me/src/tools"]
//	auto_detect = "off"
//
// A folder override is keyed by the folder's path, its URI or its name. Path
// and URI keys take precedence; a name key applies to every folder with that
// name.
//
// A Config can watch its file and reload it when it changes. Subscribers
// registered with OnConfigChanged are called once per reload that changed
// anything.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dshills/cpptasks/internal/config/loader"
	"github.com/dshills/cpptasks/internal/config/notify"
	"github.com/dshills/cpptasks/internal/logging"
	"github.com/dshills/cpptasks/internal/project/watcher"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

// FileWatcher subscribes to file patterns.
type FileWatcher interface {
	WatchFiles(pattern string) (watcher.FileWatch, error)
}

// Config provides access to the current settings.
type Config struct {
	mu       sync.RWMutex
	path     string
	fs       loader.FileSystem
	env      *loader.EnvLoader
	settings Settings
	notifier *notify.Notifier
	logger   *logging.Logger
	watch    watcher.FileWatch
	closed   bool
}

// Option configures a Config instance.
type Option func(*Config)

// WithPath sets the settings file. An empty path uses the environment only.
func WithPath(path string) Option {
	return func(c *Config) {
		c.path = path
	}
}

// WithFileSystem replaces the file system the settings file is read from.
func WithFileSystem(fs loader.FileSystem) Option {
	return func(c *Config) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// WithEnvPrefix sets the environment variable prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		if prefix == "" {
			c.env = nil
			return
		}
		c.env = loader.NewEnvLoader(prefix)
	}
}

// WithLogger sets the logger used for reload failures.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Config holding DefaultSettings. Call Load to read sources.
func New(opts ...Option) *Config {
	c := &Config{
		fs:       loader.DefaultFS(),
		env:      loader.NewEnvLoader(loader.DefaultEnvPrefix),
		settings: DefaultSettings(),
		notifier: notify.New(),
		logger:   logging.Null(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("config")
	if c.path != "" {
		if abs, err := filepath.Abs(c.path); err == nil {
			c.path = abs
		}
	}
	return c
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cpptasks", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cpptasks", "config.toml")
}

// Path returns the settings file path.
func (c *Config) Path() string {
	return c.path
}

// Load reads every source and replaces the settings without notifying
// subscribers. On error the previous settings are kept.
func (c *Config) Load() error {
	s, err := c.read()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.settings = s
	return nil
}

// Reload reads every source, replaces the settings and notifies subscribers
// of every changed setting followed by one reload event. On error the
// previous settings are kept and nobody is notified.
func (c *Config) Reload() error {
	s, err := c.read()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.settings
	c.settings = s
	c.mu.Unlock()

	batch := c.notifier.NewBatch()
	diff(batch, old.flatten(), s.flatten(), c.source())
	if n := batch.Commit(c.source()); n > 0 {
		c.logger.Info("reloaded settings, %d changed", n)
	}
	return nil
}

// read loads and decodes the file and the environment.
func (c *Config) read() (Settings, error) {
	var loaders []loader.Loader
	if c.path != "" {
		l, err := loader.ForPath(c.fs, c.path)
		if err != nil {
			return Settings{}, err
		}
		loaders = append(loaders, l)
	}
	if c.env != nil {
		loaders = append(loaders, c.env)
	}

	merged, err := loader.LoadAll(loaders...)
	if err != nil {
		return Settings{}, err
	}
	s, err := decodeSettings(merged)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", c.source(), err)
	}
	return s, nil
}

func (c *Config) source() string {
	if c.path == "" {
		return "environment"
	}
	return c.path
}

// diff adds a change to batch for every path whose value differs.
func diff(batch *notify.Batch, old, cur map[string]any, source string) {
	paths := make([]string, 0, len(old)+len(cur))
	for p := range old {
		paths = append(paths, p)
	}
	for p := range cur {
		if _, ok := old[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		ov, hadOld := old[p]
		nv, hasNew := cur[p]
		switch {
		case !hasNew:
			batch.Add(notify.Change{Path: p, Type: notify.ChangeDelete, OldValue: ov, Source: source})
		case !hadOld || ov != nv:
			batch.Set(p, ov, nv, source)
		}
	}
}

// Settings returns a copy of the current settings.
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.settings
	s.Folders = make(map[string]FolderSettings, len(c.settings.Folders))
	for name, fs := range c.settings.Folders {
		s.Folders[name] = fs
	}
	return s
}

// AutoDetect reports whether task detection is enabled for folder.
func (c *Config) AutoDetect(folder workspace.Folder) bool {
	var path string
	if p, ok := folder.LocalPath(); ok {
		path = filepath.Clean(p)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.AutoDetectFor(path, folder.URI, folder.Name)
}

// OnConfigChanged registers fn to run after every reload that changed a
// setting. It returns a function that removes the subscription.
func (c *Config) OnConfigChanged(fn func()) func() {
	sub := c.notifier.Subscribe(func(change notify.Change) {
		if change.Type == notify.ChangeReload {
			fn()
		}
	})
	return sub.Unsubscribe
}

// OnSettingChanged registers fn for changes to path or any setting below it.
// fn receives the new value, nil when the setting was removed.
func (c *Config) OnSettingChanged(path string, fn func(value any)) func() {
	sub := c.notifier.SubscribePath(path, func(change notify.Change) {
		if change.Type != notify.ChangeReload {
			fn(change.NewValue)
		}
	})
	return sub.Unsubscribe
}

// Watch reloads the settings whenever the settings file is created, changed
// or deleted. It does nothing without a settings file.
func (c *Config) Watch(w FileWatcher) error {
	if c.path == "" {
		return nil
	}

	fw, err := w.WatchFiles(c.path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", c.path, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fw.Close()
		return ErrClosed
	}
	prev := c.watch
	c.watch = fw
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	reload := func(string) {
		if err := c.Reload(); err != nil {
			c.logger.Warn("reload settings: %v", err)
		}
	}
	fw.OnChange(reload)
	fw.OnCreate(reload)
	fw.OnDelete(reload)
	return nil
}

// Close stops watching and drops every subscription.
func (c *Config) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	fw := c.watch
	c.watch = nil
	c.mu.Unlock()

	c.notifier.Close()
	if fw != nil {
		return fw.Close()
	}
	return nil
}
