package sources

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultToolCommand is used when no local installation is found.
const DefaultToolCommand = "cppbuild"

// toolEnv is what the locator needs from the host.
type toolEnv struct {
	goos   string
	getenv func(string) string
	exists func(string) bool
}

func hostToolEnv() toolEnv {
	return toolEnv{
		goos:   runtime.GOOS,
		getenv: os.Getenv,
		exists: fileExists,
	}
}

// FindToolCommand returns the cppbuild command for a folder root.
//
// On Windows a project-local install under node_modules makes the global npm
// install under %APPDATA% preferred when it exists, falling back to the
// local one. On Linux and macOS the local install is used when present.
// Otherwise the command is looked up on PATH.
func FindToolCommand(root string) string {
	return findToolCommand(root, hostToolEnv())
}

func findToolCommand(root string, env toolEnv) string {
	switch env.goos {
	case "windows":
		local := filepath.Join("node_modules", ".bin", "cppbuild.cmd")
		if !env.exists(filepath.Join(root, local)) {
			break
		}
		if appData := env.getenv("APPDATA"); appData != "" {
			global := filepath.Join(appData, "npm", "cppbuild.cmd")
			if env.exists(global) {
				return `"` + global + `"`
			}
		}
		return `.\` + local
	case "linux", "darwin":
		if env.exists(filepath.Join(root, "node_modules", ".bin", "cppbuild")) {
			return "./node_modules/.bin/cppbuild"
		}
	}
	return DefaultToolCommand
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
