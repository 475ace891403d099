package detect

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/project/watcher"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

// Common errors.
var (
	ErrDisposed          = errors.New("detector is disposed")
	ErrMissingDependency = errors.New("missing required dependency")
)

// FolderSource supplies the workspace folders and their changes.
type FolderSource interface {
	Folders() []workspace.Folder
	OnFoldersChanged(fn func(added, removed []workspace.Folder)) (unsubscribe func())
}

// ConfigNotifier reports settings changes.
type ConfigNotifier interface {
	OnConfigChanged(fn func()) (unsubscribe func())
}

// FileWatcher creates file watches for a pattern.
type FileWatcher interface {
	WatchFiles(pattern string) (watcher.FileWatch, error)
}

// TaskRegistry is where the aggregator makes itself visible.
type TaskRegistry interface {
	Register(tool string, provider task.Provider) task.Registration
}

// TaskComputer computes the tasks of one folder.
type TaskComputer interface {
	ComputeTasks(ctx context.Context, folder workspace.Folder) ([]*task.Task, error)
}

// ComputeFunc adapts a function to TaskComputer.
type ComputeFunc func(ctx context.Context, folder workspace.Folder) ([]*task.Task, error)

// ComputeTasks calls f.
func (f ComputeFunc) ComputeTasks(ctx context.Context, folder workspace.Folder) ([]*task.Task, error) {
	return f(ctx, folder)
}

// Enablement reports whether auto detection is on for a folder.
type Enablement interface {
	AutoDetect(folder workspace.Folder) bool
}

// WatchPattern returns the pattern matching the configuration files of the
// folder at path.
func WatchPattern(path string) string {
	return filepath.Join(path, task.ConfigDir, "{"+task.PropertiesFile+","+task.BuildStepsFile+"}")
}
