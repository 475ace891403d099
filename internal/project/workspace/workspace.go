// Package workspace provides workspace management for multi-root project support.
// It tracks the ordered set of workspace folders and notifies subscribers when
// folders are added or removed.
package workspace

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
)

// Common errors.
var (
	ErrNoFolders       = errors.New("workspace has no folders")
	ErrFolderNotFound  = errors.New("folder not found in workspace")
	ErrFolderExists    = errors.New("folder already in workspace")
	ErrInvalidPath     = errors.New("invalid folder path")
	ErrWorkspaceClosed = errors.New("workspace is closed")
)

// FileScheme is the URI scheme of folders on the local file system.
const FileScheme = "file"

// Workspace represents a collection of folders being edited.
// It supports both single-root and multi-root workspaces.
type Workspace struct {
	mu      sync.RWMutex
	folders []Folder
	closed  bool

	nextID    uint64
	listeners map[uint64]func(added, removed []Folder)
}

// Folder represents a single folder in the workspace.
type Folder struct {
	// URI identifies the folder (file:// for local folders).
	URI string
	// Path is the local file system path, empty for non-local folders.
	Path string
	// Name is the display name for the folder
	Name string
}

// LocalPath returns the folder's file system path when the folder lives on
// the local file system.
func (f Folder) LocalPath() (string, bool) {
	u, err := url.Parse(f.URI)
	if err != nil || u.Scheme != FileScheme {
		return "", false
	}
	if f.Path != "" {
		return f.Path, true
	}
	path, err := URIToPath(f.URI)
	if err != nil {
		return "", false
	}
	return path, true
}

// FolderFromPath builds a local folder from a file system path.
func FolderFromPath(path string) (Folder, error) {
	if path == "" {
		return Folder{}, ErrInvalidPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Folder{}, err
	}
	return Folder{
		Path: absPath,
		URI:  PathToURI(absPath),
		Name: filepath.Base(absPath),
	}, nil
}

// FolderFromURI builds a folder from a URI. Local file URIs get their Path set.
func FolderFromURI(uri, name string) (Folder, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return Folder{}, ErrInvalidPath
	}
	if u.Scheme == FileScheme {
		path, err := URIToPath(uri)
		if err != nil {
			return Folder{}, err
		}
		f, err := FolderFromPath(path)
		if err != nil {
			return Folder{}, err
		}
		if name != "" {
			f.Name = name
		}
		return f, nil
	}
	if name == "" {
		name = strings.TrimSuffix(u.Path, "/")
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
	}
	return Folder{URI: uri, Name: name}, nil
}

// New creates a new empty workspace.
func New() *Workspace {
	return &Workspace{
		folders:   make([]Folder, 0),
		listeners: make(map[uint64]func(added, removed []Folder)),
	}
}

// NewFromPaths creates a multi-root workspace from multiple paths.
func NewFromPaths(paths ...string) (*Workspace, error) {
	if len(paths) == 0 {
		return nil, ErrNoFolders
	}

	ws := New()
	for _, path := range paths {
		folder, err := FolderFromPath(path)
		if err != nil {
			return nil, err
		}
		if ws.indexOf(folder.URI) >= 0 {
			continue
		}
		ws.folders = append(ws.folders, folder)
	}
	return ws, nil
}

// Close closes the workspace. Listeners are dropped without notification.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.folders = nil
	w.listeners = make(map[uint64]func(added, removed []Folder))
	return nil
}

// IsClosed returns whether the workspace is closed.
func (w *Workspace) IsClosed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.closed
}

// Folders returns all workspace folders in workspace order.
func (w *Workspace) Folders() []Folder {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]Folder, len(w.folders))
	copy(result, w.folders)
	return result
}

// FolderCount returns the number of folders in the workspace.
func (w *Workspace) FolderCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.folders)
}

// IsMultiRoot returns true if the workspace has more than one root folder.
func (w *Workspace) IsMultiRoot() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.folders) > 1
}

// AddFolder adds a local folder to the workspace.
func (w *Workspace) AddFolder(ctx context.Context, path string) error {
	folder, err := FolderFromPath(path)
	if err != nil {
		return err
	}
	return w.Update(ctx, []Folder{folder}, nil)
}

// RemoveFolder removes the local folder at path from the workspace.
func (w *Workspace) RemoveFolder(ctx context.Context, path string) error {
	folder, err := FolderFromPath(path)
	if err != nil {
		return err
	}
	return w.Update(ctx, nil, []Folder{folder})
}

// AddFolders adds several local folders as one change.
func (w *Workspace) AddFolders(ctx context.Context, paths ...string) error {
	folders, err := foldersFromPaths(paths)
	if err != nil {
		return err
	}
	return w.Update(ctx, folders, nil)
}

// RemoveFolders removes several local folders as one change.
func (w *Workspace) RemoveFolders(ctx context.Context, paths ...string) error {
	folders, err := foldersFromPaths(paths)
	if err != nil {
		return err
	}
	return w.Update(ctx, nil, folders)
}

func foldersFromPaths(paths []string) ([]Folder, error) {
	folders := make([]Folder, 0, len(paths))
	for _, path := range paths {
		folder, err := FolderFromPath(path)
		if err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, nil
}

// Update removes and adds folders as one change. Removals are applied first.
// The update is rejected as a whole when a removed folder is missing or an
// added folder is already present. Listeners are notified once, outside the
// lock, with the folders that were actually added and removed.
func (w *Workspace) Update(ctx context.Context, added, removed []Folder) error {
	w.mu.Lock()

	if w.closed {
		w.mu.Unlock()
		return ErrWorkspaceClosed
	}

	next := make([]Folder, len(w.folders))
	copy(next, w.folders)

	removedFolders := make([]Folder, 0, len(removed))
	for _, r := range removed {
		idx := -1
		for i, f := range next {
			if f.URI == r.URI {
				idx = i
				break
			}
		}
		if idx == -1 {
			w.mu.Unlock()
			return ErrFolderNotFound
		}
		removedFolders = append(removedFolders, next[idx])
		next = append(next[:idx], next[idx+1:]...)
	}

	addedFolders := make([]Folder, 0, len(added))
	for _, a := range added {
		if a.URI == "" {
			w.mu.Unlock()
			return ErrInvalidPath
		}
		for _, f := range next {
			if f.URI == a.URI {
				w.mu.Unlock()
				return ErrFolderExists
			}
		}
		next = append(next, a)
		addedFolders = append(addedFolders, a)
	}

	w.folders = next

	// Copy callbacks before releasing lock
	callbacks := w.listenersLocked()

	w.mu.Unlock()

	if len(addedFolders) == 0 && len(removedFolders) == 0 {
		return nil
	}

	// Notify listeners (outside lock)
	for _, cb := range callbacks {
		cb(addedFolders, removedFolders)
	}
	return nil
}

// GetFolder returns the folder at the given path.
func (w *Workspace) GetFolder(path string) (Folder, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Folder{}, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, f := range w.folders {
		if f.Path == absPath {
			return f, true
		}
	}
	return Folder{}, false
}

// GetFolderByURI returns the folder with the given URI.
func (w *Workspace) GetFolderByURI(uri string) (Folder, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if idx := w.indexOf(uri); idx >= 0 {
		return w.folders[idx], true
	}
	return Folder{}, false
}

// ContainingFolder returns the workspace folder that contains the given path.
func (w *Workspace) ContainingFolder(path string) (Folder, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Folder{}, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, f := range w.folders {
		if f.Path != "" && isSubPath(f.Path, absPath) {
			return f, true
		}
	}
	return Folder{}, false
}

// OnFoldersChanged registers a callback for folder additions and removals.
// The returned function removes the callback.
func (w *Workspace) OnFoldersChanged(fn func(added, removed []Folder)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	w.listeners[id] = fn

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

// listenersLocked returns the callbacks in subscription order.
// Callers must hold w.mu.
func (w *Workspace) listenersLocked() []func(added, removed []Folder) {
	callbacks := make([]func(added, removed []Folder), 0, len(w.listeners))
	for id := uint64(0); id < w.nextID; id++ {
		if cb, ok := w.listeners[id]; ok {
			callbacks = append(callbacks, cb)
		}
	}
	return callbacks
}

// indexOf returns the index of the folder with uri or -1.
// Callers must hold w.mu.
func (w *Workspace) indexOf(uri string) int {
	for i, f := range w.folders {
		if f.URI == uri {
			return i
		}
	}
	return -1
}

// PathToURI converts a file path to a file:// URI.
func PathToURI(path string) string {
	// Ensure path is absolute
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	// Convert to forward slashes
	absPath = filepath.ToSlash(absPath)
	if !strings.HasPrefix(absPath, "/") {
		absPath = "/" + absPath
	}

	// URL-encode the path
	u := url.URL{
		Scheme: FileScheme,
		Path:   absPath,
	}
	return u.String()
}

// URIToPath converts a file:// URI to a file path.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}

	if u.Scheme != FileScheme {
		return "", ErrInvalidPath
	}

	// Convert URL path to native path
	path := filepath.FromSlash(u.Path)

	// On Windows, remove leading slash if path starts with drive letter
	if len(path) >= 3 && (path[0] == '/' || path[0] == '\\') && path[2] == ':' {
		path = path[1:]
	}

	return path, nil
}

// isSubPath checks if child is a subpath of parent.
func isSubPath(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	if child == parent {
		return true
	}
	if !strings.HasSuffix(parent, string(filepath.Separator)) {
		parent += string(filepath.Separator)
	}
	return strings.HasPrefix(child, parent)
}
