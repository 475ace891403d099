package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WorkspaceFile represents a .code-workspace file format.
// This is compatible with VS Code workspace files.
type WorkspaceFile struct {
	// Folders is the list of workspace folders.
	Folders []WorkspaceFolderEntry `json:"folders"`

	// Settings contains workspace-level settings. They are kept so that a
	// round trip through SaveWorkspaceFile does not lose them.
	Settings map[string]any `json:"settings,omitempty"`
}

// WorkspaceFolderEntry represents a folder entry in a workspace file.
type WorkspaceFolderEntry struct {
	// Path is the folder path (relative or absolute).
	Path string `json:"path,omitempty"`

	// URI is used instead of Path for folders outside the local file system.
	URI string `json:"uri,omitempty"`

	// Name is an optional display name for the folder.
	Name string `json:"name,omitempty"`
}

// LoadWorkspaceFile loads a .code-workspace file.
func LoadWorkspaceFile(path string) (*WorkspaceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wsFile WorkspaceFile
	if err := json.Unmarshal(data, &wsFile); err != nil {
		return nil, fmt.Errorf("parse workspace file %s: %w", path, err)
	}

	return &wsFile, nil
}

// SaveWorkspaceFile saves a .code-workspace file.
func SaveWorkspaceFile(path string, wsFile *WorkspaceFile) error {
	data, err := json.MarshalIndent(wsFile, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// FoldersFromFile converts workspace file entries to folders. Relative paths
// are resolved against baseDir. Duplicate entries are dropped.
func FoldersFromFile(wsFile *WorkspaceFile, baseDir string) ([]Folder, error) {
	folders := make([]Folder, 0, len(wsFile.Folders))
	seen := make(map[string]bool)

	for _, entry := range wsFile.Folders {
		var (
			folder Folder
			err    error
		)
		switch {
		case entry.URI != "":
			folder, err = FolderFromURI(entry.URI, entry.Name)
		case entry.Path != "":
			folderPath := entry.Path
			if !filepath.IsAbs(folderPath) {
				folderPath = filepath.Join(baseDir, folderPath)
			}
			folder, err = FolderFromPath(filepath.Clean(folderPath))
			if err == nil && entry.Name != "" {
				folder.Name = entry.Name
			}
		default:
			err = ErrInvalidPath
		}
		if err != nil {
			return nil, err
		}
		if seen[folder.URI] {
			continue
		}
		seen[folder.URI] = true
		folders = append(folders, folder)
	}

	return folders, nil
}

// OpenFromWorkspaceFile creates a Workspace from a .code-workspace file.
func OpenFromWorkspaceFile(workspaceFilePath string) (*Workspace, error) {
	wsFile, err := LoadWorkspaceFile(workspaceFilePath)
	if err != nil {
		return nil, err
	}

	folders, err := FoldersFromFile(wsFile, filepath.Dir(workspaceFilePath))
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, ErrNoFolders
	}

	ws := New()
	ws.folders = folders
	return ws, nil
}

// SaveToWorkspaceFile saves a Workspace to a .code-workspace file.
func (w *Workspace) SaveToWorkspaceFile(workspaceFilePath string) error {
	folders := w.Folders()
	baseDir := filepath.Dir(workspaceFilePath)

	entries := make([]WorkspaceFolderEntry, len(folders))
	for i, folder := range folders {
		if folder.Path == "" {
			entries[i] = WorkspaceFolderEntry{URI: folder.URI, Name: folder.Name}
			continue
		}

		// Try to make path relative to workspace file
		relPath, err := filepath.Rel(baseDir, folder.Path)
		if err != nil {
			relPath = folder.Path
		}

		entries[i] = WorkspaceFolderEntry{
			Path: filepath.ToSlash(relPath), // Use forward slashes for cross-platform
			Name: folder.Name,
		}
	}

	return SaveWorkspaceFile(workspaceFilePath, &WorkspaceFile{Folders: entries})
}
