// Package main is the entry point for the cpptasks command.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/cpptasks/internal/app"
	"github.com/dshills/cpptasks/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	configPath    string
	folders       []string
	workspaceFile string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "cpptasks",
	Short: "Detect cppbuild tasks in C/C++ workspace folders",
	Long: `cpptasks reads the .vscode/c_cpp_build.json file of every workspace folder
and lists one build task per configuration and build type.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultPath(), "path to the settings file")
	flags.StringArrayVarP(&folders, "workspace", "w", nil, "workspace folder (repeatable, default: current directory)")
	flags.StringVar(&workspaceFile, "workspace-file", "", "path to a .code-workspace file")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(listCmd, watchCmd, initCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp builds the application from the root flags.
func newApp(noWatch bool) (*app.Application, error) {
	paths := folders
	if len(paths) == 0 && workspaceFile == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("current directory: %w", err)
		}
		paths = []string{cwd}
	}

	return app.New(app.Options{
		ConfigPath:    configPath,
		Folders:       paths,
		WorkspaceFile: workspaceFile,
		LogLevel:      logLevel,
		LogOutput:     os.Stderr,
		OutputLog:     os.Stderr,
		Warn:          warn,
		NoWatch:       noWatch,
	})
}

func warn(msg string) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", yellow("Warning:"), msg)
}
